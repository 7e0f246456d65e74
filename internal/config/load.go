package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. IMAGEBATCH_SERVER_PORT.
const EnvPrefix = "IMAGEBATCH"

// defaults lists every known key. Viper only resolves environment variables
// for keys it has seen, so each setting needs an entry here.
var defaults = map[string]interface{}{
	"server.port":             3000,
	"server.log_level":        "info",
	"server.shutdown_timeout": 30 * time.Second,

	"batch.default_size": 30,
	"batch.max_size":     100,
	"batch.max_prompts":  1000,
	"batch.pause":        5 * time.Second,
	"batch.max_parallel": 0,

	"task.max_attempts":     5,
	"task.cooldown":         3 * time.Second,
	"task.prepare_timeout":  60 * time.Second,
	"task.submit_timeout":   60 * time.Second,
	"task.await_timeout":    5 * time.Minute,
	"task.download_timeout": 60 * time.Second,

	"generator.gemini_api_key":      "",
	"generator.model":               "gemini-2.0-flash-preview-image-generation",
	"generator.response_modalities": []string{"TEXT", "IMAGE"},

	"storage.minio.endpoint":   "",
	"storage.minio.access_key": "",
	"storage.minio.secret_key": "",
	"storage.minio.bucket":     "imagebatch",
	"storage.minio.use_ssl":    false,

	"database.url": "",

	"retention.ttl":            24 * time.Hour,
	"retention.sweep_schedule": "@every 10m",
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return load(viper.New())
}

// LoadFile behaves like Load but reads the given config file instead of
// searching the default locations.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/imagebatch")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// PORT is honoured for compatibility with container platforms.
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind port environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct tags of cfg and a few cross-field rules.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Batch.MaxSize > 0 && cfg.Batch.DefaultSize > cfg.Batch.MaxSize {
		return fmt.Errorf("config validation failed: batch.default_size %d exceeds batch.max_size %d",
			cfg.Batch.DefaultSize, cfg.Batch.MaxSize)
	}

	hasImage := false
	for _, m := range cfg.Generator.ResponseModalities {
		if m == "IMAGE" {
			hasImage = true
		}
	}
	if !hasImage {
		return errors.New("config validation failed: generator.response_modalities must include IMAGE")
	}

	return nil
}
