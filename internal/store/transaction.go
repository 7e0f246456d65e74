package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/phrazzld/imagebatch/internal/platform/logger"
)

// TxFn is a unit of work executed inside a transaction.
type TxFn func(ctx context.Context, tx DBTX) error

// TxBeginner starts transactions. *sql.DB satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// RunInTransaction executes fn in a transaction, committing when it returns
// nil and rolling back otherwise. A panic in fn rolls back and is re-raised.
func RunInTransaction(ctx context.Context, db TxBeginner, fn TxFn) error {
	log := logger.FromContext(ctx)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to roll back transaction after panic",
					"error", rbErr,
					"panic", p)
			}
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error("failed to roll back transaction",
				"rollback_error", rbErr,
				"error", err)
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	return nil
}
