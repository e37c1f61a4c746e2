package models

// URLStatus is the processing state of a URLRecord.
type URLStatus string

const (
	URLStatusPending    URLStatus = "pending"
	URLStatusInProgress URLStatus = "in_progress"
	URLStatusCompleted  URLStatus = "completed"
	URLStatusFailed     URLStatus = "failed"
)

// Valid reports whether s is one of the known URL statuses.
func (s URLStatus) Valid() bool {
	switch s {
	case URLStatusPending, URLStatusInProgress, URLStatusCompleted, URLStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state for the current run.
func (s URLStatus) Terminal() bool {
	return s == URLStatusCompleted || s == URLStatusFailed
}

// IndexState marks the secondary-indexing progress of a persisted record.
// A record is durably stored before it is indexed; the two milestones are
// deliberately separate.
type IndexState string

const (
	IndexStatePending   IndexState = "pending"
	IndexStateRequested IndexState = "requested"
)
