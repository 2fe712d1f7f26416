// Package config loads application configuration from config.yaml and
// DEDUPE_-prefixed environment variables, and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Detect DetectConfig `yaml:"detect" mapstructure:"detect"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// DetectConfig configures the duplicate detection run.
type DetectConfig struct {
	Column               string  `yaml:"column" mapstructure:"column"`
	Threshold            float64 `yaml:"threshold" mapstructure:"threshold"`
	HighConfidenceCutoff int     `yaml:"high_confidence_cutoff" mapstructure:"high_confidence_cutoff"`
	Workers              int     `yaml:"workers" mapstructure:"workers"`
	IgnoreCase           bool    `yaml:"ignore_case" mapstructure:"ignore_case"`
}

// ServerConfig configures the detection HTTP server.
type ServerConfig struct {
	Port          int     `yaml:"port" mapstructure:"port"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	MaxUploadMB   int     `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEDUPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("detect.column", "Company Name")
	v.SetDefault("detect.threshold", 80)
	v.SetDefault("detect.high_confidence_cutoff", 95)
	v.SetDefault("detect.workers", 1)
	v.SetDefault("detect.ignore_case", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_per_second", 10)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks configuration values that would otherwise fail mid-run.
func (c *Config) Validate() error {
	if c.Detect.Threshold < 0 || c.Detect.Threshold > 100 {
		return eris.Errorf("config: detect.threshold must be in [0, 100] (got %v)", c.Detect.Threshold)
	}
	if c.Detect.HighConfidenceCutoff < 0 || c.Detect.HighConfidenceCutoff > 100 {
		return eris.Errorf("config: detect.high_confidence_cutoff must be in [0, 100] (got %d)", c.Detect.HighConfidenceCutoff)
	}
	if c.Detect.Workers < 0 {
		return eris.Errorf("config: detect.workers must be >= 0 (got %d)", c.Detect.Workers)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return eris.Errorf("config: server.port must be in (0, 65535] (got %d)", c.Server.Port)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
