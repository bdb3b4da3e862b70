package domain

// SyncCursor is the per-tenant watermark into the conversation exchange
// feed. LatestSyncedSequenceNumber is monotonically non-decreasing and is
// advanced only after the corresponding page has been fully processed.
type SyncCursor struct {
	Namespace                  string `json:"namespace"`
	MunicipalityID             string `json:"municipality_id"`
	LatestSyncedSequenceNumber int64  `json:"latest_synced_sequence_number"`
	Active                     bool   `json:"active"`
}
