// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to the settings of the HTTP server, the batch scheduler, the per-task
// retry policy, the generation backend and the optional storage layers.
package config
