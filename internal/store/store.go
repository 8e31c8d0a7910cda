package store

// Store persists completed fit results.
// Implementations must be safe for concurrent use.
//
// Load and Delete return ErrNotFound for unknown IDs; other failures are
// wrapped with context.
type Store interface {
	// SaveFit atomically writes a record, replacing any record with the same ID.
	SaveFit(record *FitRecord) error

	// LoadFit returns the record with the given ID.
	LoadFit(id string) (*FitRecord, error)

	// ListFits returns metadata for every readable record.
	ListFits() ([]FitInfo, error)

	// DeleteFit removes a record together with its trace.
	DeleteFit(id string) error
}

// ErrNotFound is returned when a requested fit does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing fit record.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return "fit not found: " + e.ID
	}
	return "fit not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
