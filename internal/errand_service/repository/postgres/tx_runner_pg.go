package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/municipio/support-management/internal/errand_service/domain"
)

// PgTxRunner opens one database transaction per invocation and hands the
// callback a set of repositories bound to it. Workers use it to scope each
// ingested item to its own transaction: a failure on one item rolls back
// only that item.
type PgTxRunner struct {
	db     TxBeginner
	logger *slog.Logger
}

func NewPgTxRunner(db TxBeginner, logger *slog.Logger) *PgTxRunner {
	return &PgTxRunner{db: db, logger: logger}
}

// NewStores builds the repository set on top of the given query surface.
// Used with the pool for read paths and with a transaction inside Within.
func NewStores(db DB, logger *slog.Logger) domain.Stores {
	return domain.Stores{
		Errands:        NewPgErrandRepository(db, logger),
		Communications: NewPgCommunicationRepository(db, logger),
		Shadows:        NewPgConversationShadowRepository(db, logger),
		Cursors:        NewPgSyncCursorRepository(db, logger),
		Notifications:  NewPgNotificationRepository(db, logger),
	}
}

func (r *PgTxRunner) Within(ctx context.Context, fn func(ctx context.Context, stores domain.Stores) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to begin transaction", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// No-op when the transaction committed.
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.logger.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr)
		}
	}()

	if err := fn(ctx, NewStores(tx, r.logger)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
