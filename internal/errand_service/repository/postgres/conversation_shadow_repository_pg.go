package postgres

import (
	"context"
	"log/slog"

	"github.com/municipio/support-management/internal/errand_service/domain"
)

// PgConversationShadowRepository persists local reflections of externally
// owned conversations.
//
// Schema:
//
//	conversation_shadows(id uuid pk, external_conversation_id, errand_id fk,
//	        namespace, municipality_id, target_relation_id, type, topic,
//	        unique (external_conversation_id, target_relation_id))
type PgConversationShadowRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgConversationShadowRepository(db DB, logger *slog.Logger) *PgConversationShadowRepository {
	return &PgConversationShadowRepository{db: db, logger: logger}
}

func (r *PgConversationShadowRepository) ExistsForRelation(ctx context.Context, externalConversationID, targetRelationID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversation_shadows WHERE external_conversation_id = $1 AND target_relation_id = $2)`,
		externalConversationID, targetRelationID,
	).Scan(&exists)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error checking conversation shadow existence", "error", err,
			"external_conversation_id", externalConversationID, "target_relation_id", targetRelationID)
		return false, err
	}
	return exists, nil
}

func (r *PgConversationShadowRepository) Create(ctx context.Context, shadow *domain.ConversationShadow) error {
	// ON CONFLICT DO NOTHING keeps creation idempotent under at-least-once
	// delivery from the conversation exchange.
	query := `
		INSERT INTO conversation_shadows (id, external_conversation_id, errand_id, namespace, municipality_id, target_relation_id, type, topic)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (external_conversation_id, target_relation_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query,
		shadow.ID, shadow.ExternalConversationID, shadow.ErrandID,
		shadow.Namespace, shadow.MunicipalityID, shadow.TargetRelationID, shadow.Type, shadow.Topic,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating conversation shadow", "error", err,
			"external_conversation_id", shadow.ExternalConversationID)
		return err
	}
	r.logger.InfoContext(ctx, "Conversation shadow created",
		"shadow_id", shadow.ID,
		"external_conversation_id", shadow.ExternalConversationID,
		"errand_id", shadow.ErrandID)
	return nil
}
