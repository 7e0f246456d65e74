package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/imagebatch/internal/store"
)

// PostgreSQL error codes
const (
	uniqueViolationCode       = "23505"
	checkViolationCode        = "23514"
	notNullViolationCode      = "23502"
	invalidTextRepresentation = "22P02"
)

// MapError translates database errors into store errors, wrapping the
// original for context.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
		case checkViolationCode, notNullViolationCode:
			return fmt.Errorf("%w: constraint %s: %v", store.ErrInvalidEntity, pgErr.ConstraintName, err)
		case invalidTextRepresentation:
			// A malformed uuid cannot match any row.
			return fmt.Errorf("%w: %v", store.ErrNotFound, err)
		}
	}

	return err
}
