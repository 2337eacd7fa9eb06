package store

// Store persists benchmark reports.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if a report doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveReport atomically writes a report, replacing any report with the
	// same ID. The report is validated first.
	SaveReport(report *Report) error

	// LoadReport returns the report with the given ID.
	LoadReport(id string) (*Report, error)

	// ListReports returns metadata for all stored reports, newest first.
	ListReports() ([]ReportInfo, error)

	// DeleteReport removes a report and its trace.
	DeleteReport(id string) error
}

// ErrNotFound is returned when a requested report does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing report.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return "report not found: " + e.ID
	}
	return "report not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
