package postgres

import (
	"context"
	"log/slog"

	"github.com/municipio/support-management/internal/errand_service/domain"
)

// PgSyncCursorRepository persists the conversation exchange watermark.
//
// Schema:
//
//	sync_cursors(namespace, municipality_id, latest_synced_sequence_number,
//	        active, pk (namespace, municipality_id))
type PgSyncCursorRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgSyncCursorRepository(db DB, logger *slog.Logger) *PgSyncCursorRepository {
	return &PgSyncCursorRepository{db: db, logger: logger}
}

func (r *PgSyncCursorRepository) ListActive(ctx context.Context) ([]*domain.SyncCursor, error) {
	query := `
		SELECT namespace, municipality_id, latest_synced_sequence_number, active
		FROM sync_cursors
		WHERE active
		ORDER BY namespace, municipality_id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing active sync cursors", "error", err)
		return nil, err
	}
	defer rows.Close()

	var cursors []*domain.SyncCursor
	for rows.Next() {
		cursor := &domain.SyncCursor{}
		if err := rows.Scan(&cursor.Namespace, &cursor.MunicipalityID, &cursor.LatestSyncedSequenceNumber, &cursor.Active); err != nil {
			r.logger.ErrorContext(ctx, "Error scanning sync cursor row", "error", err)
			return nil, err
		}
		cursors = append(cursors, cursor)
	}
	return cursors, rows.Err()
}

// Advance raises the watermark; the guard in the WHERE clause keeps it
// monotonically non-decreasing regardless of caller ordering.
func (r *PgSyncCursorRepository) Advance(ctx context.Context, namespace, municipalityID string, sequenceNumber int64) error {
	query := `
		UPDATE sync_cursors
		SET latest_synced_sequence_number = $1
		WHERE namespace = $2 AND municipality_id = $3 AND latest_synced_sequence_number < $1
	`
	tag, err := r.db.Exec(ctx, query, sequenceNumber, namespace, municipalityID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error advancing sync cursor", "error", err,
			"namespace", namespace, "municipality_id", municipalityID, "sequence_number", sequenceNumber)
		return err
	}
	if tag.RowsAffected() == 0 {
		r.logger.DebugContext(ctx, "Sync cursor already at or beyond sequence number",
			"namespace", namespace, "municipality_id", municipalityID, "sequence_number", sequenceNumber)
	}
	return nil
}
