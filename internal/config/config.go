package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Batch     BatchConfig     `mapstructure:"batch"     validate:"required"`
	Task      TaskConfig      `mapstructure:"task"      validate:"required"`
	Generator GeneratorConfig `mapstructure:"generator" validate:"required"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// ShutdownTimeout bounds graceful shutdown of HTTP and in-flight sessions.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// BatchConfig controls how submitted prompt lists are partitioned and paced.
type BatchConfig struct {
	// DefaultSize is used when a submission does not specify a batch size.
	DefaultSize int `mapstructure:"default_size" validate:"required,gte=1"`
	// MaxSize caps the batch size a client may request. Zero means no cap.
	MaxSize int `mapstructure:"max_size" validate:"gte=0"`
	// MaxPrompts caps the number of prompts per submission. Zero means no cap.
	MaxPrompts int `mapstructure:"max_prompts" validate:"gte=0"`
	// Pause is the wait between consecutive batches.
	Pause time.Duration `mapstructure:"pause" validate:"gte=0"`
	// MaxParallel limits concurrently running tasks within a batch. Zero means unlimited.
	MaxParallel int `mapstructure:"max_parallel" validate:"gte=0"`
}

// TaskConfig holds the per-prompt retry policy and step timeouts.
type TaskConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"     validate:"required,gte=1,lte=20"`
	Cooldown        time.Duration `mapstructure:"cooldown"         validate:"gte=0"`
	PrepareTimeout  time.Duration `mapstructure:"prepare_timeout"  validate:"required"`
	SubmitTimeout   time.Duration `mapstructure:"submit_timeout"   validate:"required"`
	AwaitTimeout    time.Duration `mapstructure:"await_timeout"    validate:"required"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout" validate:"required"`
}

// GeneratorConfig contains the image generation backend settings.
type GeneratorConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	Model        string `mapstructure:"model"          validate:"required"`
	// ResponseModalities requested from the model; must include IMAGE.
	ResponseModalities []string `mapstructure:"response_modalities" validate:"required,min=1,dive,oneof=TEXT IMAGE"`
}

// StorageConfig selects where materialized images are kept.
type StorageConfig struct {
	MinIO MinIOConfig `mapstructure:"minio"`
}

// MinIOConfig holds S3-compatible object storage settings. An empty endpoint
// keeps images in process memory.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key" validate:"required_with=Endpoint"`
	SecretKey string `mapstructure:"secret_key" validate:"required_with=Endpoint"`
	Bucket    string `mapstructure:"bucket"     validate:"required_with=Endpoint"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Enabled reports whether object storage is configured.
func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != ""
}

// DatabaseConfig contains the optional session archive database settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// RetentionConfig controls how long finished sessions stay in memory.
type RetentionConfig struct {
	// TTL after which finished sessions are evicted. Zero keeps them forever.
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0"`
	// SweepSchedule is a cron spec (e.g. "@every 10m") for eviction sweeps.
	SweepSchedule string `mapstructure:"sweep_schedule"`
}
