// Package testdb opens the Postgres database used by integration tests.
//
// Tests built with the integration tag call Open, which skips the test when
// no database is configured locally and fails it in CI, where a database is
// expected to exist.
package testdb
