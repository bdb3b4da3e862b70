package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// TimeMeasureEntry is one row of the append-only time-in-status ledger.
// The entry with a null StopTime is the "open" entry and represents dwell
// time in the current status. Invariant: at most one open entry per errand.
type TimeMeasureEntry struct {
	ID            uuid.UUID    `json:"id"`
	Status        Status       `json:"status"`
	Administrator string       `json:"administrator,omitempty"`
	StartTime     time.Time    `json:"start_time"`
	StopTime      sql.NullTime `json:"stop_time,omitempty"`
}

// OpenEntryIndex returns the index of the open time measure entry, or -1
// when none is open.
func OpenEntryIndex(entries []TimeMeasureEntry) int {
	for i := range entries {
		if !entries[i].StopTime.Valid {
			return i
		}
	}
	return -1
}
