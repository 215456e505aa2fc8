package store

// Store defines the interface for run-history persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the run doesn't exist (for Load/Delete)
//   - Return descriptive errors for I/O, serialization, or validation failures
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRun saves a finished run. An existing record with the same RunID is
	// overwritten. Records that fail Validate are rejected.
	SaveRun(record *RunRecord) error

	// LoadRun retrieves the record for the given run.
	// Returns ErrNotFound if no record exists for this runID.
	LoadRun(runID string) (*RunRecord, error)

	// ListRuns returns metadata for all stored runs, oldest first.
	// The returned slice may be empty if no runs exist.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the record and any artifacts (such as the trace) for
	// the given run. Returns ErrNotFound if no record exists for this runID.
	DeleteRun(runID string) error

	// Close releases resources held by the store.
	Close() error
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run record.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
