package postgres

import (
	"context"
	"log/slog"

	"github.com/municipio/support-management/internal/errand_service/domain"
)

// PgCommunicationRepository persists communication records and attachments.
//
// Schema:
//
//	communications(id uuid pk, errand_number, direction, channel_type,
//	        external_id, sender, subject, body, sent_at,
//	        unique (channel_type, external_id))
//	communication_attachments(id uuid pk, communication_id fk, file_name,
//	        content_type, content bytea nullable, external_attachment_id)
type PgCommunicationRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgCommunicationRepository(db DB, logger *slog.Logger) *PgCommunicationRepository {
	return &PgCommunicationRepository{db: db, logger: logger}
}

func (r *PgCommunicationRepository) ExistsByExternalID(ctx context.Context, channel domain.ChannelType, externalID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM communications WHERE channel_type = $1 AND external_id = $2)`,
		channel, externalID,
	).Scan(&exists)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error checking communication existence", "error", err, "channel", channel, "external_id", externalID)
		return false, err
	}
	return exists, nil
}

func (r *PgCommunicationRepository) Create(ctx context.Context, record *domain.CommunicationRecord) error {
	query := `
		INSERT INTO communications (id, errand_number, direction, channel_type, external_id, sender, subject, body, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		record.ID, record.ErrandNumber, record.Direction, record.ChannelType,
		record.ExternalID, record.Sender, record.Subject, record.Body, record.SentAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating communication record", "error", err, "external_id", record.ExternalID)
		return err
	}

	attachmentQuery := `
		INSERT INTO communication_attachments (id, communication_id, file_name, content_type, content, external_attachment_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, attachment := range record.Attachments {
		if _, err := r.db.Exec(ctx, attachmentQuery,
			attachment.ID, record.ID, attachment.FileName, attachment.ContentType,
			attachment.Content, attachment.ExternalAttachmentID,
		); err != nil {
			r.logger.ErrorContext(ctx, "Error creating communication attachment", "error", err,
				"communication_id", record.ID, "file_name", attachment.FileName)
			return err
		}
	}

	r.logger.InfoContext(ctx, "Communication record created",
		"communication_id", record.ID, "errand_number", record.ErrandNumber,
		"channel", record.ChannelType, "attachments", len(record.Attachments))
	return nil
}

func (r *PgCommunicationRepository) SetAttachmentContent(ctx context.Context, externalAttachmentID string, contentType string, content []byte) error {
	query := `
		UPDATE communication_attachments
		SET content = $1, content_type = $2
		WHERE external_attachment_id = $3
	`
	tag, err := r.db.Exec(ctx, query, content, contentType, externalAttachmentID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error setting attachment content", "error", err, "external_attachment_id", externalAttachmentID)
		return err
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Attachment not found for content update", "external_attachment_id", externalAttachmentID)
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgCommunicationRepository) AttachmentContentExists(ctx context.Context, externalAttachmentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM communication_attachments WHERE external_attachment_id = $1 AND content IS NOT NULL)`,
		externalAttachmentID,
	).Scan(&exists)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error checking attachment content", "error", err, "external_attachment_id", externalAttachmentID)
		return false, err
	}
	return exists, nil
}
