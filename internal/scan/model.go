package scan

import (
	"fmt"
	"time"

	"github.com/mproctor/adsweep/internal/device"
	"github.com/mproctor/adsweep/internal/policy"
)

// Request describes one scan. It is immutable once started.
type Request struct {
	Mode                 policy.Mode `json:"mode"`
	ThresholdDays        int         `json:"threshold_days,omitempty"`
	IncludeNeverLoggedOn bool        `json:"include_never_logged_on,omitempty"`
	ScopePath            string      `json:"scope_path,omitempty"`
}

// Validate rejects malformed requests before any job is created.
func (r Request) Validate() error {
	if !r.Mode.Valid() {
		return &ConfigurationError{Reason: fmt.Sprintf("unknown scan mode %q", r.Mode)}
	}
	if r.Mode == policy.ModeInactiveOnly && r.ThresholdDays <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("threshold must be a positive number of days, got %d", r.ThresholdDays)}
	}
	if r.Mode == policy.ModeDisabledOnly && r.IncludeNeverLoggedOn {
		return &ConfigurationError{Reason: "include-never-logged-on applies only to inactivity scans"}
	}
	return nil
}

// ConfigurationError rejects a scan before any job is created.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid scan configuration: " + e.Reason
}

// State is a scan job's lifecycle state.
type State string

// Job states. A job moves Running -> {Completed, Failed, Cancelled} and is
// destroyed when a poll observes the terminal state.
const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s is an end state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Status is a snapshot of a job as seen by Poll. Rows are only populated
// on the poll that observes StateCompleted.
type Status struct {
	Handle      string          `json:"handle"`
	State       State           `json:"state"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	RowCount    int             `json:"row_count"`
	Error       string          `json:"error,omitempty"`
	Rows        []device.Record `json:"-"`
}
