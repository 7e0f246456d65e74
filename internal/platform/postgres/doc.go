// Package postgres archives finished batch sessions in PostgreSQL so that
// their status and downloads outlive the in-memory registry.
//
// The schema is embedded as goose migrations and applied by Migrate at
// startup. Connections go through database/sql with the pgx driver.
package postgres
