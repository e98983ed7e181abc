// Package config loads application configuration from file and
// environment and owns the global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/koral-tools/eltunt-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Collector CollectorConfig `yaml:"collector" mapstructure:"collector"`
	Diff      DiffConfig      `yaml:"diff" mapstructure:"diff"`
	Merge     MergeConfig     `yaml:"merge" mapstructure:"merge"`
	Store     store.Config    `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// CollectorConfig configures the police.hu scraper.
type CollectorConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	DetailConcurrency int     `yaml:"detail_concurrency" mapstructure:"detail_concurrency"`
}

// DiffConfig configures snapshot comparison.
type DiffConfig struct {
	SortByName bool `yaml:"sort_by_name" mapstructure:"sort_by_name"`
}

// MergeConfig configures ledger merging.
type MergeConfig struct {
	KeyColumns []string `yaml:"key_columns" mapstructure:"key_columns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("collector.base_url", "https://www.police.hu/hu/koral/eltunt-szemelyek")
	v.SetDefault("collector.timeout_secs", 30)
	v.SetDefault("collector.max_retries", 3)
	v.SetDefault("collector.requests_per_second", 2.0)
	v.SetDefault("collector.burst", 2)
	v.SetDefault("collector.detail_concurrency", 5)
	v.SetDefault("diff.sort_by_name", true)
	v.SetDefault("merge.key_columns", []string{"Név", "Születési dátum"})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "eltunt-cli.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ELTUNT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

// DefaultYAML renders the default configuration as YAML, for writing a
// starter config file.
func DefaultYAML() ([]byte, error) {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal defaults")
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "config: marshal defaults")
	}
	return out, nil
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
