package ciutil

import (
	"log/slog"
	"os"

	"github.com/phrazzld/imagebatch/internal/redact"
)

// Environment variable names shared across the codebase.
const (
	EnvCI            = "CI"
	EnvGitHubActions = "GITHUB_ACTIONS"
	EnvGitLabCI      = "GITLAB_CI"
	EnvJenkinsURL    = "JENKINS_URL"

	// EnvDatabaseURL is the preferred name for the test database URL.
	EnvDatabaseURL = "DATABASE_URL"
	// EnvImagebatchDatabaseURL is the server's own setting, accepted as a
	// fallback.
	EnvImagebatchDatabaseURL = "IMAGEBATCH_DATABASE_URL"
)

// IsCI returns true if the current environment is a CI environment.
func IsCI() bool {
	return os.Getenv(EnvCI) != "" ||
		os.Getenv(EnvGitHubActions) != "" ||
		os.Getenv(EnvGitLabCI) != "" ||
		os.Getenv(EnvJenkinsURL) != ""
}

// GetEnvWithFallbacks returns the value of the first non-empty variable in
// envVars, or defaultValue. Using any but the first name logs a warning with
// the value redacted.
func GetEnvWithFallbacks(envVars []string, defaultValue string, logger *slog.Logger) string {
	for i, name := range envVars {
		val := os.Getenv(name)
		if val == "" {
			continue
		}
		if i > 0 && logger != nil {
			logger.Warn("using fallback environment variable",
				"used_var", name,
				"preferred_var", envVars[0],
				"value", redact.String(val))
		}
		return val
	}
	return defaultValue
}

// DatabaseURL returns the archive database URL for tests, or "" when none is
// configured.
func DatabaseURL(logger *slog.Logger) string {
	return GetEnvWithFallbacks([]string{EnvDatabaseURL, EnvImagebatchDatabaseURL}, "", logger)
}
