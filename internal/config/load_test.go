package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEnv sets environment variables for the duration of the test.
func setupEnv(t *testing.T, envVars map[string]string) {
	t.Helper()
	for name, value := range envVars {
		t.Setenv(name, value)
	}
}

// TestLoadDefaults verifies that the Load function fills in the documented
// defaults when only the required settings are provided.
func TestLoadDefaults(t *testing.T) {
	setupEnv(t, map[string]string{
		"IMAGEBATCH_GENERATOR_GEMINI_API_KEY": "test-api-key",
	})

	cfg, err := Load()

	require.NoError(t, err, "Load() should not return an error with default values")
	require.NotNil(t, cfg)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, 30, cfg.Batch.DefaultSize)
	assert.Equal(t, 5*time.Second, cfg.Batch.Pause)
	assert.Equal(t, 5, cfg.Task.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Task.Cooldown)
	assert.Equal(t, 5*time.Minute, cfg.Task.AwaitTimeout)
	assert.Equal(t, []string{"TEXT", "IMAGE"}, cfg.Generator.ResponseModalities)
	assert.Equal(t, 24*time.Hour, cfg.Retention.TTL)
	assert.False(t, cfg.Storage.MinIO.Enabled())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	setupEnv(t, map[string]string{
		"IMAGEBATCH_GENERATOR_GEMINI_API_KEY": "test-api-key",
		"IMAGEBATCH_SERVER_LOG_LEVEL":         "debug",
		"IMAGEBATCH_BATCH_DEFAULT_SIZE":       "10",
		"IMAGEBATCH_BATCH_PAUSE":              "250ms",
		"IMAGEBATCH_TASK_MAX_ATTEMPTS":        "3",
		"PORT":                                "4100",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 10, cfg.Batch.DefaultSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.Pause)
	assert.Equal(t, 3, cfg.Task.MaxAttempts)
	assert.Equal(t, 4100, cfg.Server.Port)
}

func TestLoadMissingAPIKey(t *testing.T) {
	setupEnv(t, map[string]string{
		"IMAGEBATCH_GENERATOR_GEMINI_API_KEY": "",
	})

	cfg, err := Load()

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "GeminiAPIKey")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "imagebatch.yaml")
	content := []byte(`
server:
  port: 9090
batch:
  default_size: 5
  max_parallel: 2
generator:
  gemini_api_key: file-key
storage:
  minio:
    endpoint: localhost:9000
    access_key: minio
    secret_key: minio123
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Batch.DefaultSize)
	assert.Equal(t, 2, cfg.Batch.MaxParallel)
	assert.Equal(t, "file-key", cfg.Generator.GeminiAPIKey)
	assert.True(t, cfg.Storage.MinIO.Enabled())
	assert.Equal(t, "imagebatch", cfg.Storage.MinIO.Bucket)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 3000, LogLevel: "info"},
			Batch:  BatchConfig{DefaultSize: 30, MaxSize: 100},
			Task: TaskConfig{
				MaxAttempts:     5,
				PrepareTimeout:  time.Second,
				SubmitTimeout:   time.Second,
				AwaitTimeout:    time.Second,
				DownloadTimeout: time.Second,
			},
			Generator: GeneratorConfig{
				GeminiAPIKey:       "key",
				Model:              "model",
				ResponseModalities: []string{"TEXT", "IMAGE"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "default size above max",
			mutate:  func(c *Config) { c.Batch.DefaultSize = 200 },
			wantErr: "exceeds batch.max_size",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Batch.DefaultSize = 0 },
			wantErr: "DefaultSize",
		},
		{
			name:    "text only modality",
			mutate:  func(c *Config) { c.Generator.ResponseModalities = []string{"TEXT"} },
			wantErr: "must include IMAGE",
		},
		{
			name:    "minio endpoint without credentials",
			mutate:  func(c *Config) { c.Storage.MinIO.Endpoint = "localhost:9000" },
			wantErr: "AccessKey",
		},
		{
			name:    "bad database url",
			mutate:  func(c *Config) { c.Database.URL = "not a url" },
			wantErr: "URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
