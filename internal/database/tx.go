package database

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"gorm.io/gorm"

	"github.com/emilythestrangee/posts/backend/internal/logging"
)

// WithTx runs fn inside a transaction on db. The transaction is committed
// when fn returns nil and rolled back otherwise, including when fn panics
// (the panic is re-raised after the rollback).
func WithTx(ctx context.Context, db *gorm.DB, l *slog.Logger, reason string, fn func(tx *gorm.DB) error) (err error) {
	l = logging.OrDiscard(l).With(slog.String("tx", reason))
	l.Debug("starting transaction")

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("error starting transaction: %w", tx.Error)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		p := recover()
		if p != nil {
			l.Error("panic in transaction", slog.Any("panic", p), slog.String("stack", string(debug.Stack())))
		}
		if rbErr := tx.Rollback().Error; rbErr != nil {
			l.Error("transaction rollback error", slog.String("error", rbErr.Error()))
		} else {
			l.Info("transaction rolled back")
		}
		if p != nil {
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		l.Warn("error in transaction", slog.String("error", err.Error()))
		return err
	}

	if err = tx.Commit().Error; err != nil {
		l.Error("error committing transaction", slog.String("error", err.Error()))
		return fmt.Errorf("error committing transaction: %w", err)
	}
	committed = true

	l.Debug("committed transaction")
	return nil
}
