package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// serializationFailure is the SQLSTATE raised when a serializable
// transaction conflicts with a concurrent one.
const serializationFailure = "40001"

const maxNumberRetries = 3

// TxBeginner is the subset of pgxpool.Pool needed to open transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PgErrandNumberGenerator issues human-readable errand numbers of the form
// <shortcode>-<YYMM>-<4-digit-seq> from a per-tenant sequence table:
//
//	errand_number_sequences(namespace, municipality_id, year_month,
//	        last_sequence, pk (namespace, municipality_id))
//
// The sequence resets to 1 on month rollover. Generation runs in its own
// serializable transaction so concurrent creators never share a number;
// serialization conflicts are retried.
type PgErrandNumberGenerator struct {
	db     TxBeginner
	logger *slog.Logger
}

func NewPgErrandNumberGenerator(db TxBeginner, logger *slog.Logger) *PgErrandNumberGenerator {
	return &PgErrandNumberGenerator{db: db, logger: logger}
}

func (g *PgErrandNumberGenerator) Next(ctx context.Context, namespace, municipalityID, shortcode string, now time.Time) (string, error) {
	yearMonth := now.Format("0601")

	var lastErr error
	for attempt := 0; attempt < maxNumberRetries; attempt++ {
		sequence, err := g.nextSequence(ctx, namespace, municipalityID, yearMonth)
		if err == nil {
			return fmt.Sprintf("%s-%s-%04d", shortcode, yearMonth, sequence), nil
		}
		lastErr = err

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == serializationFailure {
			g.logger.WarnContext(ctx, "Errand number generation serialization conflict, retrying",
				"namespace", namespace, "municipality_id", municipalityID, "attempt", attempt+1)
			continue
		}
		break
	}
	g.logger.ErrorContext(ctx, "Failed to generate errand number", "error", lastErr,
		"namespace", namespace, "municipality_id", municipalityID)
	return "", fmt.Errorf("failed to generate errand number: %w", lastErr)
}

func (g *PgErrandNumberGenerator) nextSequence(ctx context.Context, namespace, municipalityID, yearMonth string) (int, error) {
	tx, err := g.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO errand_number_sequences (namespace, municipality_id, year_month, last_sequence)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (namespace, municipality_id) DO UPDATE
		SET last_sequence = CASE
				WHEN errand_number_sequences.year_month = EXCLUDED.year_month
				THEN errand_number_sequences.last_sequence + 1
				ELSE 1
			END,
			year_month = EXCLUDED.year_month
		RETURNING last_sequence
	`
	var sequence int
	if err := tx.QueryRow(ctx, query, namespace, municipalityID, yearMonth).Scan(&sequence); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return sequence, nil
}
