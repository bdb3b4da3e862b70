package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/municipio/support-management/internal/errand_service/domain"
)

// errandNumberPattern matches the errand number grammar
// <shortcode>-<YYMM>-<4-digit-seq> anchored on the literal '#' marker in an
// email subject, e.g. "Ärende #KC-2405-0001 Follow-up". Case-insensitive.
var errandNumberPattern = regexp.MustCompile(`(?i)#\s*([A-Z]+-\d{4}-\d{4})`)

// ParseErrandNumber extracts an errand number token from an email subject.
// The returned number is normalized to upper case.
func ParseErrandNumber(subject string) (string, bool) {
	match := errandNumberPattern.FindStringSubmatch(subject)
	if match == nil {
		return "", false
	}
	return strings.ToUpper(match[1]), true
}

// Matcher derives a correlation key from an inbound event and resolves it to
// zero or one existing errand. One strategy per channel.
type Matcher struct {
	namespace      string
	municipalityID string
	relations      RelationsClient
	logger         *slog.Logger
}

func NewMatcher(namespace, municipalityID string, relationsClient RelationsClient, logger *slog.Logger) *Matcher {
	return &Matcher{
		namespace:      namespace,
		municipalityID: municipalityID,
		relations:      relationsClient,
		logger:         logger,
	}
}

// MatchEmail resolves an email subject to an existing errand. A missing
// token or an unknown errand number both signal the create-new-errand path
// by returning nil without error.
func (m *Matcher) MatchEmail(ctx context.Context, errands domain.ErrandRepository, subject string) (*domain.Errand, error) {
	errandNumber, ok := ParseErrandNumber(subject)
	if !ok {
		return nil, nil
	}
	errand, err := errands.GetByErrandNumber(ctx, m.namespace, m.municipalityID, errandNumber)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			m.logger.WarnContext(ctx, "Email references unknown errand number, treating as new errand",
				"errand_number", errandNumber)
			return nil, nil
		}
		return nil, err
	}
	return errand, nil
}

// MatchWebMessage resolves a web message's external case id against errand
// external tags. An unknown case id is a correlation miss, not an error:
// the message is skipped.
func (m *Matcher) MatchWebMessage(ctx context.Context, errands domain.ErrandRepository, externalCaseID string) (*domain.Errand, error) {
	if externalCaseID == "" {
		return nil, nil
	}
	errand, err := errands.GetByExternalTag(ctx, m.namespace, m.municipalityID, domain.ExternalTagCaseID, externalCaseID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			m.logger.DebugContext(ctx, "No errand matches external case id, skipping web message",
				"external_case_id", externalCaseID)
			return nil, nil
		}
		return nil, err
	}
	return errand, nil
}

// AcceptedRelation is a conversation relation resolved to a local errand.
type AcceptedRelation struct {
	RelationID string
	ErrandID   uuid.UUID
}

// ResolveConversationRelations filters a conversation's relation ids down to
// the ones that target this service, identify a locally known errand, and
// are not yet shadowed for the conversation. A relation targeting this
// service whose errand is locally unknown is a data-integrity violation and
// fails the conversation.
func (m *Matcher) ResolveConversationRelations(
	ctx context.Context,
	errands domain.ErrandRepository,
	shadows domain.ConversationShadowRepository,
	externalConversationID string,
	relationIDs []string,
) ([]AcceptedRelation, error) {
	var accepted []AcceptedRelation
	for _, relationID := range relationIDs {
		shadowed, err := shadows.ExistsForRelation(ctx, externalConversationID, relationID)
		if err != nil {
			return nil, err
		}
		if shadowed {
			continue
		}

		relation, err := m.relations.GetRelation(ctx, m.municipalityID, relationID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				m.logger.WarnContext(ctx, "Conversation references unknown relation, skipping",
					"relation_id", relationID, "external_conversation_id", externalConversationID)
				continue
			}
			return nil, err
		}
		if !relation.TargetsSupportManagement() {
			continue
		}

		errandID, err := uuid.Parse(relation.Target.ResourceID)
		if err != nil {
			return nil, fmt.Errorf("relation %s target %q: %w", relationID, relation.Target.ResourceID, domain.ErrRelationTargetMissing)
		}
		exists, err := errands.ExistsByID(ctx, errandID)
		if err != nil {
			return nil, err
		}
		if !exists {
			// The relation matched the service filter but the errand is gone
			// locally. Surface it, do not silently ignore.
			return nil, fmt.Errorf("relation %s target %s: %w", relationID, errandID, domain.ErrRelationTargetMissing)
		}

		accepted = append(accepted, AcceptedRelation{RelationID: relationID, ErrandID: errandID})
	}
	return accepted, nil
}
