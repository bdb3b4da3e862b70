package domain

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is one of the small fixed set of errand lifecycle states.
type Status string

const (
	StatusNew       Status = "NEW"
	StatusOngoing   Status = "ONGOING"
	StatusAssigned  Status = "ASSIGNED"
	StatusSuspended Status = "SUSPENDED"
	StatusSolved    Status = "SOLVED"
)

// ExternalTagCaseID is the tag key used to correlate web messages with the
// upstream case identifier.
const ExternalTagCaseID = "CaseId"

// ExternalTag is a key/value pair used for correlating an errand with an
// externally owned case. Order is irrelevant; keys are unique per errand.
type ExternalTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Errand is the case record, the core aggregate of the system. External tags
// and time measures are owned sub-collections with no independent lifecycle.
type Errand struct {
	ID             uuid.UUID    `json:"id"`
	Namespace      string       `json:"namespace"`
	MunicipalityID string       `json:"municipality_id"`
	ErrandNumber   string       `json:"errand_number"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Status         Status       `json:"status"`
	PreviousStatus Status       `json:"previous_status,omitempty"`
	SuspendedFrom  sql.NullTime `json:"suspended_from,omitempty"`
	SuspendedTo    sql.NullTime `json:"suspended_to,omitempty"`

	// AssignedUserID is the administrator currently responsible; recorded on
	// every time measure entry.
	AssignedUserID string `json:"assigned_user_id,omitempty"`

	StakeholderName    string `json:"stakeholder_name,omitempty"`
	StakeholderContact string `json:"stakeholder_contact,omitempty"`

	ExternalTags []ExternalTag      `json:"external_tags,omitempty"`
	TimeMeasures []TimeMeasureEntry `json:"time_measures,omitempty"`

	// TouchedAt is the last time anything meaningful happened to the errand;
	// drives the reactivation grace window.
	TouchedAt time.Time `json:"touched_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewErrand creates an errand in status NEW. The initial time measure entry
// is opened by the StateLedger, not here.
func NewErrand(namespace, municipalityID, errandNumber, title, description string) *Errand {
	now := time.Now().UTC()
	return &Errand{
		ID:             uuid.New(),
		Namespace:      namespace,
		MunicipalityID: municipalityID,
		ErrandNumber:   errandNumber,
		Title:          title,
		Description:    description,
		Status:         StatusNew,
		TouchedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TagValue returns the value of the external tag with the given key.
// Key comparison is case-insensitive.
func (e *Errand) TagValue(key string) (string, bool) {
	for _, tag := range e.ExternalTags {
		if strings.EqualFold(tag.Key, key) {
			return tag.Value, true
		}
	}
	return "", false
}

// TouchedBefore reports whether the errand was last touched before the given
// cutoff point.
func (e *Errand) TouchedBefore(cutoff time.Time) bool {
	return e.TouchedAt.Before(cutoff)
}
