package repository

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"
)

// TxFn represents a function that will be executed within a transaction
type TxFn func(*sql.Tx) error

// WithTransaction executes fn within a transaction, committing on success and
// rolling back on error or panic.
func WithTransaction(ctx context.Context, db *sql.DB, log *zap.Logger, fn TxFn) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // re-throw panic after rollback
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && log != nil {
			log.Error("failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	return tx.Commit()
}
