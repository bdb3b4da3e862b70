package domain

import (
	"time"

	"github.com/google/uuid"
)

// SuspensionLiftedDescription is the fixed description used for suspension
// expiry notifications; the dedupe check matches on it verbatim.
const SuspensionLiftedDescription = "Parkering av ärendet har upphört"

// UnknownDisplayName is recorded when the employee directory cannot resolve
// the administrator behind a notification.
const UnknownDisplayName = "UNKNOWN"

// Notification is an in-application alert raised by a worker on a state
// event. Acknowledgement is owned by an external surface; this service only
// creates notifications and purges acknowledged/expired ones.
type Notification struct {
	ID                 uuid.UUID `json:"id"`
	OwnerID            string    `json:"owner_id,omitempty"`
	OwnerDisplayName   string    `json:"owner_display_name,omitempty"`
	Type               string    `json:"type"`
	Subtype            string    `json:"subtype,omitempty"`
	Description        string    `json:"description"`
	ErrandID           uuid.UUID `json:"errand_id"`
	Expires            time.Time `json:"expires"`
	Acknowledged       bool      `json:"acknowledged"`
	GlobalAcknowledged bool      `json:"global_acknowledged"`
	CreatedAt          time.Time `json:"created_at"`
}

// NewSuspensionLiftedNotification creates the notification raised when a
// suspension window has elapsed and the errand status has been restored.
func NewSuspensionLiftedNotification(ownerID, ownerDisplayName string, errandID uuid.UUID, now time.Time) *Notification {
	return &Notification{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		OwnerDisplayName: ownerDisplayName,
		Type:             "UPDATE",
		Subtype:          "SUSPENSION",
		Description:      SuspensionLiftedDescription,
		ErrandID:         errandID,
		Expires:          now.AddDate(0, 0, 30),
		CreatedAt:        now,
	}
}
