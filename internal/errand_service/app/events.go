package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/municipio/support-management/internal/errand_service/domain"
)

// NATS subjects for domain events emitted after successful persistence.
const (
	SubjectErrandStatusChanged = "errand.status.changed"
	SubjectNotificationCreated = "errand.notification.created"
)

// EventPublisher is satisfied by the platform NATS client.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// ErrandStatusChangedEvent announces a status transition.
type ErrandStatusChangedEvent struct {
	ErrandID       uuid.UUID     `json:"errand_id"`
	ErrandNumber   string        `json:"errand_number"`
	Namespace      string        `json:"namespace"`
	MunicipalityID string        `json:"municipality_id"`
	PreviousStatus domain.Status `json:"previous_status"`
	NewStatus      domain.Status `json:"new_status"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// NotificationCreatedEvent announces a new worker-raised notification.
type NotificationCreatedEvent struct {
	NotificationID uuid.UUID `json:"notification_id"`
	OwnerID        string    `json:"owner_id,omitempty"`
	ErrandID       uuid.UUID `json:"errand_id"`
	Description    string    `json:"description"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// publishEvent emits a domain event. Event emission is best effort: a
// publish failure is logged but never fails the already-committed work.
func publishEvent(ctx context.Context, logger *slog.Logger, publisher EventPublisher, subject string, event any) {
	if publisher == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to marshal domain event", "subject", subject, "error", err)
		return
	}
	if err := publisher.Publish(ctx, subject, data); err != nil {
		logger.ErrorContext(ctx, "Failed to publish domain event", "subject", subject, "error", err)
	}
}

func statusChangedEvent(errand *domain.Errand, now time.Time) ErrandStatusChangedEvent {
	return ErrandStatusChangedEvent{
		ErrandID:       errand.ID,
		ErrandNumber:   errand.ErrandNumber,
		Namespace:      errand.Namespace,
		MunicipalityID: errand.MunicipalityID,
		PreviousStatus: errand.PreviousStatus,
		NewStatus:      errand.Status,
		OccurredAt:     now,
	}
}
