package domain

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// StateLedger maintains an errand's status and its time-in-status ledger.
// Pure state-transition logic, no I/O; persistence of the mutated aggregate
// is the caller's transaction boundary. The service layer invokes these
// functions explicitly at every mutation site, there are no hidden
// persistence callbacks.
type StateLedger struct {
	logger *slog.Logger
}

func NewStateLedger(logger *slog.Logger) *StateLedger {
	return &StateLedger{logger: logger}
}

// OpenInitial opens the single initial ledger entry on errand creation.
func (l *StateLedger) OpenInitial(errand *Errand, administrator string, now time.Time) {
	errand.TimeMeasures = append(errand.TimeMeasures, TimeMeasureEntry{
		ID:            uuid.New(),
		Status:        errand.Status,
		Administrator: administrator,
		StartTime:     now,
	})
	errand.TouchedAt = now
	errand.UpdatedAt = now
}

// ApplyTransition moves the errand to newStatus as one atomic unit: the open
// ledger entry is closed and a new open entry is appended for newStatus.
// Equal status is a no-op.
//
// A missing open entry is a data-integrity anomaly that should not occur; a
// synthetic entry is opened in its place so the transition still succeeds,
// and the anomaly is logged rather than silently hidden.
func (l *StateLedger) ApplyTransition(ctx context.Context, errand *Errand, newStatus Status, administrator string, now time.Time) {
	if newStatus == errand.Status {
		return
	}

	idx := OpenEntryIndex(errand.TimeMeasures)
	if idx < 0 {
		l.logger.WarnContext(ctx, "No open time measure entry found, synthesizing one",
			"errand_id", errand.ID,
			"errand_number", errand.ErrandNumber,
			"status", errand.Status,
		)
		errand.TimeMeasures = append(errand.TimeMeasures, TimeMeasureEntry{
			ID:            uuid.New(),
			Status:        errand.Status,
			Administrator: administrator,
			StartTime:     now,
		})
		idx = len(errand.TimeMeasures) - 1
	}
	errand.TimeMeasures[idx].StopTime = sql.NullTime{Time: now, Valid: true}

	errand.TimeMeasures = append(errand.TimeMeasures, TimeMeasureEntry{
		ID:            uuid.New(),
		Status:        newStatus,
		Administrator: administrator,
		StartTime:     now,
	})

	errand.PreviousStatus = errand.Status
	errand.Status = newStatus
	errand.TouchedAt = now
	errand.UpdatedAt = now
}

// Suspend parks the errand for the given window and transitions it to
// SUSPENDED. The previous status is preserved for the suspension expiry
// worker to restore.
func (l *StateLedger) Suspend(ctx context.Context, errand *Errand, from, to time.Time, administrator string, now time.Time) {
	l.ApplyTransition(ctx, errand, StatusSuspended, administrator, now)
	errand.SuspendedFrom = sql.NullTime{Time: from, Valid: true}
	errand.SuspendedTo = sql.NullTime{Time: to, Valid: true}
}

// Resume restores the status held before suspension and clears the window.
func (l *StateLedger) Resume(ctx context.Context, errand *Errand, administrator string, now time.Time) {
	previous := errand.PreviousStatus
	if previous == "" {
		previous = StatusOngoing
	}
	l.ApplyTransition(ctx, errand, previous, administrator, now)
	errand.SuspendedFrom = sql.NullTime{}
	errand.SuspendedTo = sql.NullTime{}
}

// CloseForRemoval closes the open entry ahead of errand deletion so the
// ledger is complete for auditing. The errand itself is not persisted
// further after this.
func (l *StateLedger) CloseForRemoval(errand *Errand, now time.Time) {
	if idx := OpenEntryIndex(errand.TimeMeasures); idx >= 0 {
		errand.TimeMeasures[idx].StopTime = sql.NullTime{Time: now, Valid: true}
	}
}
