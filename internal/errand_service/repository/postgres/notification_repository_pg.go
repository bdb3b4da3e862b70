package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/municipio/support-management/internal/errand_service/domain"
)

// PgNotificationRepository persists worker-raised notifications.
//
// Schema:
//
//	notifications(id uuid pk, owner_id, owner_display_name, type, subtype,
//	        description, errand_id fk, expires, acknowledged,
//	        global_acknowledged, created_at)
type PgNotificationRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgNotificationRepository(db DB, logger *slog.Logger) *PgNotificationRepository {
	return &PgNotificationRepository{db: db, logger: logger}
}

func (r *PgNotificationRepository) Create(ctx context.Context, notification *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, owner_id, owner_display_name, type, subtype, description, errand_id, expires, acknowledged, global_acknowledged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		notification.ID, notification.OwnerID, notification.OwnerDisplayName,
		notification.Type, notification.Subtype, notification.Description,
		notification.ErrandID, notification.Expires,
		notification.Acknowledged, notification.GlobalAcknowledged, notification.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating notification", "error", err, "errand_id", notification.ErrandID)
		return err
	}
	r.logger.InfoContext(ctx, "Notification created",
		"notification_id", notification.ID, "errand_id", notification.ErrandID, "owner_id", notification.OwnerID)
	return nil
}

func (r *PgNotificationRepository) ExistsUnacknowledged(ctx context.Context, ownerID string, errandID uuid.UUID, description string, createdAfter time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE owner_id = $1 AND errand_id = $2 AND description = $3
			  AND created_at > $4 AND NOT acknowledged
		)`,
		ownerID, errandID, description, createdAfter,
	).Scan(&exists)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error checking for existing notification", "error", err,
			"owner_id", ownerID, "errand_id", errandID)
		return false, err
	}
	return exists, nil
}

func (r *PgNotificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM notifications
		WHERE expires < $1
		  AND (
			(global_acknowledged AND (owner_id IS NULL OR owner_id = ''))
			OR (acknowledged AND global_acknowledged)
		  )
	`
	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error deleting expired notifications", "error", err)
		return 0, err
	}
	return tag.RowsAffected(), nil
}
