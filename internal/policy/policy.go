// Package policy decides which machine accounts count as stale. It is
// pure: no clock, no directory, no state beyond its inputs.
package policy

import "time"

// Mode selects what a scan looks for.
type Mode string

// Known scan modes.
const (
	ModeInactiveOnly Mode = "inactive"
	ModeDisabledOnly Mode = "disabled"
)

// Valid reports whether m is a recognized mode.
func (m Mode) Valid() bool {
	return m == ModeInactiveOnly || m == ModeDisabledOnly
}

// Classification is the outcome of evaluating one object.
type Classification struct {
	Included     bool
	InactiveDays *int // nil when the object has no logon information
}

// Classify evaluates one object under a mode and cutoff.
//
// ModeDisabledOnly includes exactly the objects whose enabled flag is an
// explicit false; the directory query already filtered on the server side,
// so the inactive-day count here is for display only. ModeInactiveOnly
// includes objects whose last activity predates the cutoff; objects with
// no activity at all are included only when includeNeverLoggedOn is set.
func Classify(enabled *bool, lastActivity *time.Time, now, cutoff time.Time, mode Mode, includeNeverLoggedOn bool) Classification {
	var days *int
	if lastActivity != nil {
		d := wholeDays(now.Sub(*lastActivity))
		days = &d
	}

	switch mode {
	case ModeDisabledOnly:
		included := enabled != nil && !*enabled
		return Classification{Included: included, InactiveDays: days}
	case ModeInactiveOnly:
		if lastActivity == nil {
			return Classification{Included: includeNeverLoggedOn}
		}
		return Classification{Included: lastActivity.Before(cutoff), InactiveDays: days}
	default:
		return Classification{}
	}
}

// Cutoff derives the inactivity cutoff from a threshold in days.
func Cutoff(now time.Time, thresholdDays int) time.Time {
	return now.AddDate(0, 0, -thresholdDays)
}

func wholeDays(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}
