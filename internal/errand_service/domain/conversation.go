package domain

import "github.com/google/uuid"

// ConversationType distinguishes locally initiated conversations from ones
// mirrored in from the conversation exchange.
type ConversationType string

const (
	ConversationTypeInternal ConversationType = "INTERNAL"
	ConversationTypeExternal ConversationType = "EXTERNAL"
)

// ConversationShadow is the local reflection of an externally owned
// conversation, keyed by the relation that links it to a local errand.
// An external conversation may fan out to several errands through several
// relations, but never duplicates a shadow for the same relation.
type ConversationShadow struct {
	ID                     uuid.UUID        `json:"id"`
	ExternalConversationID string           `json:"external_conversation_id"`
	ErrandID               uuid.UUID        `json:"errand_id"`
	Namespace              string           `json:"namespace"`
	MunicipalityID         string           `json:"municipality_id"`
	TargetRelationID       string           `json:"target_relation_id"`
	Type                   ConversationType `json:"type"`
	Topic                  string           `json:"topic,omitempty"`
}

// NewConversationShadow creates a shadow for one (conversation, relation)
// pair.
func NewConversationShadow(externalConversationID string, errandID uuid.UUID, namespace, municipalityID, targetRelationID, topic string) *ConversationShadow {
	return &ConversationShadow{
		ID:                     uuid.New(),
		ExternalConversationID: externalConversationID,
		ErrandID:               errandID,
		Namespace:              namespace,
		MunicipalityID:         municipalityID,
		TargetRelationID:       targetRelationID,
		Type:                   ConversationTypeExternal,
		Topic:                  topic,
	}
}
