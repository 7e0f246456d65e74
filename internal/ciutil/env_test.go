package ciutil

import (
	"testing"

	"github.com/phrazzld/imagebatch/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearCI(t *testing.T) {
	for _, name := range []string{EnvCI, EnvGitHubActions, EnvGitLabCI, EnvJenkinsURL} {
		t.Setenv(name, "")
	}
}

func TestIsCI(t *testing.T) {
	clearCI(t)
	assert.False(t, IsCI())

	t.Setenv(EnvGitHubActions, "true")
	assert.True(t, IsCI())
}

func TestGetEnvWithFallbacks(t *testing.T) {
	t.Setenv("IMAGEBATCH_TEST_PRIMARY", "")
	t.Setenv("IMAGEBATCH_TEST_FALLBACK", "")

	names := []string{"IMAGEBATCH_TEST_PRIMARY", "IMAGEBATCH_TEST_FALLBACK"}
	assert.Equal(t, "default", GetEnvWithFallbacks(names, "default", nil))

	log, logs := logger.NewCapture()
	t.Setenv("IMAGEBATCH_TEST_FALLBACK", "postgres://app:s3cret@db:5432/app")
	assert.Equal(t, "postgres://app:s3cret@db:5432/app", GetEnvWithFallbacks(names, "", log))

	entries, err := logs.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "IMAGEBATCH_TEST_FALLBACK", entries[0]["used_var"])
	assert.NotContains(t, logs.String(), "s3cret")

	t.Setenv("IMAGEBATCH_TEST_PRIMARY", "primary")
	assert.Equal(t, "primary", GetEnvWithFallbacks(names, "", log))
}

func TestDatabaseURL(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "")
	t.Setenv(EnvImagebatchDatabaseURL, "")
	assert.Empty(t, DatabaseURL(nil))

	t.Setenv(EnvImagebatchDatabaseURL, "postgres://localhost/imagebatch")
	assert.Equal(t, "postgres://localhost/imagebatch", DatabaseURL(nil))
}
