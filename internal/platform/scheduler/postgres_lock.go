package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// LockDB is the subset of pgxpool.Pool the lock repository needs.
// Satisfied by *pgxpool.Pool and by pgxmock in tests.
type LockDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgLockRepository implements Locker on a scheduler_locks table:
//
//	scheduler_locks(name text primary key, locked_by text not null, locked_until timestamptz not null)
//
// A row whose locked_until has passed is free to be overtaken.
type PgLockRepository struct {
	db     LockDB
	logger *slog.Logger
}

func NewPgLockRepository(db LockDB, logger *slog.Logger) *PgLockRepository {
	return &PgLockRepository{db: db, logger: logger}
}

func (r *PgLockRepository) Acquire(ctx context.Context, name string, holder string, maxHold time.Duration) (bool, error) {
	query := `
		INSERT INTO scheduler_locks (name, locked_by, locked_until)
		VALUES ($1, $2, now() + $3)
		ON CONFLICT (name) DO UPDATE
		SET locked_by = EXCLUDED.locked_by, locked_until = EXCLUDED.locked_until
		WHERE scheduler_locks.locked_until < now()
	`
	tag, err := r.db.Exec(ctx, query, name, holder, maxHold)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error acquiring scheduler lock", "error", err, "lock_name", name)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgLockRepository) Release(ctx context.Context, name string, holder string) error {
	// Expire the hold rather than deleting the row; only the current holder
	// may release.
	query := `
		UPDATE scheduler_locks
		SET locked_until = now()
		WHERE name = $1 AND locked_by = $2 AND locked_until > now()
	`
	tag, err := r.db.Exec(ctx, query, name, holder)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error releasing scheduler lock", "error", err, "lock_name", name)
		return err
	}
	if tag.RowsAffected() == 0 {
		// Hold already expired and possibly overtaken. Expected after a run
		// exceeding its max hold; nothing to do.
		r.logger.WarnContext(ctx, "Scheduler lock hold had already expired at release", "lock_name", name)
	}
	return nil
}
