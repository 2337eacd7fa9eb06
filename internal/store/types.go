package store

import (
	"fmt"
	"time"
)

// Report is the persisted result of one benchmark run.
type Report struct {
	// ID is unique per run (a UUID when created by the harness)
	ID string `json:"id"`

	// Name of the scenario that produced the report
	Name string `json:"name"`

	CreatedAt time.Time `json:"createdAt"`

	// Backend is the kernel backend used for construction and row scans
	Backend string `json:"backend"`

	// CPU is the processor brand string, if known
	CPU string `json:"cpu,omitempty"`

	Duration time.Duration `json:"durationNs"`

	Cases []CaseResult `json:"cases"`
}

// CaseResult holds one engine/dataset combination compared against the oracle.
type CaseResult struct {
	Name    string `json:"name"`
	Engine  string `json:"engine"`
	Pattern string `json:"pattern"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Seed    int64  `json:"seed,omitempty"`

	// Fingerprint identifies the pixel data (hex siphash)
	Fingerprint string `json:"fingerprint"`

	// BuildTime is the engine construction time; for the SAT engine this
	// includes building both tables
	BuildTime time.Duration `json:"buildNs"`

	// QueryTime is the total time the candidate engine spent answering
	QueryTime time.Duration `json:"queryNs"`

	Passed int `json:"passed"`
	Failed int `json:"failed"`

	// Failures keeps the failed checks only; the trace holds all of them
	Failures []Check `json:"failures,omitempty"`
}

// Check is one comparison of a candidate result against the oracle.
type Check struct {
	Query string  `json:"query"`
	X0    int     `json:"x0"`
	Y0    int     `json:"y0"`
	X1    int     `json:"x1"`
	Y1    int     `json:"y1"`
	Op    string  `json:"op"`
	Want  float64 `json:"want"`
	Got   float64 `json:"got"`
	OK    bool    `json:"ok"`

	Duration time.Duration `json:"durationNs"`
}

// ReportInfo is the listing view of a report.
type ReportInfo struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"createdAt"`
	Backend   string        `json:"backend"`
	Cases     int           `json:"cases"`
	Checks    int           `json:"checks"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"durationNs"`
}

// Checks returns the number of comparisons over all cases.
func (r *Report) Checks() int {
	n := 0
	for _, c := range r.Cases {
		n += c.Passed + c.Failed
	}
	return n
}

// Failed returns the number of failed comparisons over all cases.
func (r *Report) Failed() int {
	n := 0
	for _, c := range r.Cases {
		n += c.Failed
	}
	return n
}

// OK reports whether every check passed.
func (r *Report) OK() bool {
	return r.Failed() == 0
}

// ToInfo converts a Report to its listing metadata.
func (r *Report) ToInfo() ReportInfo {
	return ReportInfo{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		Backend:   r.Backend,
		Cases:     len(r.Cases),
		Checks:    r.Checks(),
		Failed:    r.Failed(),
		Duration:  r.Duration,
	}
}

// Validate checks that the report is complete enough to be stored.
func (r *Report) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if r.CreatedAt.IsZero() {
		return &ValidationError{Field: "CreatedAt", Reason: "cannot be zero"}
	}
	if r.Duration < 0 {
		return &ValidationError{Field: "Duration", Reason: "cannot be negative"}
	}
	for i, c := range r.Cases {
		field := fmt.Sprintf("Cases[%d]", i)
		if c.Engine == "" {
			return &ValidationError{Field: field + ".Engine", Reason: "cannot be empty"}
		}
		if c.Width <= 0 || c.Height <= 0 {
			return &ValidationError{
				Field:  field,
				Reason: fmt.Sprintf("invalid dimensions %dx%d", c.Width, c.Height),
			}
		}
		if c.Passed < 0 || c.Failed < 0 {
			return &ValidationError{Field: field, Reason: "check counts cannot be negative"}
		}
	}
	return nil
}

// ValidationError represents a report validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
