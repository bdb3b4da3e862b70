package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ErrandRepository persists the errand aggregate including its owned
// external tags and time measure ledger.
type ErrandRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Errand, error)
	GetByErrandNumber(ctx context.Context, namespace, municipalityID, errandNumber string) (*Errand, error)
	// GetByExternalTag resolves an errand whose external tags contain the
	// given key/value pair.
	GetByExternalTag(ctx context.Context, namespace, municipalityID, key, value string) (*Errand, error)
	ExistsByID(ctx context.Context, id uuid.UUID) (bool, error)
	Create(ctx context.Context, errand *Errand) error
	// Update persists the errand row, closes ledger entries whose stop time
	// was set and inserts newly appended ones.
	Update(ctx context.Context, errand *Errand) error
	// FindExpiredSuspensions lists errands whose suspension window elapsed
	// before now.
	FindExpiredSuspensions(ctx context.Context, namespace, municipalityID string, now time.Time) ([]*Errand, error)
}

// ErrandNumberGenerator produces the next human-readable errand number for a
// tenant, <shortcode>-<YYMM>-<4-digit-seq>, under serializable isolation.
// The sequence resets to 1 on month rollover.
type ErrandNumberGenerator interface {
	Next(ctx context.Context, namespace, municipalityID, shortcode string, now time.Time) (string, error)
}

// CommunicationRepository persists communication records and their
// attachments.
type CommunicationRepository interface {
	ExistsByExternalID(ctx context.Context, channel ChannelType, externalID string) (bool, error)
	Create(ctx context.Context, record *CommunicationRecord) error
	// SetAttachmentContent fills in a lazily fetched attachment binary.
	SetAttachmentContent(ctx context.Context, externalAttachmentID string, contentType string, content []byte) error
	AttachmentContentExists(ctx context.Context, externalAttachmentID string) (bool, error)
}

// ConversationShadowRepository persists local reflections of externally
// owned conversations.
type ConversationShadowRepository interface {
	ExistsForRelation(ctx context.Context, externalConversationID, targetRelationID string) (bool, error)
	Create(ctx context.Context, shadow *ConversationShadow) error
}

// SyncCursorRepository persists the conversation exchange watermark.
type SyncCursorRepository interface {
	ListActive(ctx context.Context) ([]*SyncCursor, error)
	// Advance raises the watermark to sequenceNumber; a lower or equal value
	// is a no-op, the cursor never moves backwards.
	Advance(ctx context.Context, namespace, municipalityID string, sequenceNumber int64) error
}

// NotificationRepository persists worker-raised notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification *Notification) error
	// ExistsUnacknowledged reports whether an unacknowledged notification
	// with the given description already exists for owner+errand created
	// after the given time.
	ExistsUnacknowledged(ctx context.Context, ownerID string, errandID uuid.UUID, description string, createdAfter time.Time) (bool, error)
	// DeleteExpired removes notifications whose expiry passed and that are
	// either globally acknowledged with no identifiable owner, or both
	// acknowledged and globally acknowledged. Returns the number deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Stores bundles the repositories bound to one transaction.
type Stores struct {
	Errands        ErrandRepository
	Communications CommunicationRepository
	Shadows        ConversationShadowRepository
	Cursors        SyncCursorRepository
	Notifications  NotificationRepository
}

// TxRunner runs fn inside a single database transaction. Each ingested item
// gets its own transaction so a failure on item N does not roll back items
// already committed.
type TxRunner interface {
	Within(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}
