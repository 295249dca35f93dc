// Package device holds the machine-account records discovered by scans or
// imported from name lists, and the ResultSet that backs bulk actions.
package device

import "time"

// Origin tags where a record came from.
type Origin string

// Known origins.
const (
	OriginScanned  Origin = "scanned"
	OriginImported Origin = "imported"
)

// Action is a lifecycle mutation applied to machine accounts.
type Action string

// Known actions.
const (
	ActionDisable Action = "disable"
	ActionEnable  Action = "enable"
	ActionDelete  Action = "delete"
)

// Valid reports whether a is a recognized action.
func (a Action) Valid() bool {
	return a == ActionDisable || a == ActionEnable || a == ActionDelete
}

// Record is one machine account as tracked by the tool. UniquePath is empty
// only for imported records that have not yet been resolved against the
// directory. A nil Enabled means the state is unknown; a nil LastActivity
// means the directory has no logon information for the object.
type Record struct {
	Name          string     `json:"name"`
	UniquePath    string     `json:"unique_path,omitempty"`
	Enabled       *bool      `json:"enabled,omitempty"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
	InactiveDays  *int       `json:"inactive_days,omitempty"`
	FriendlyScope string     `json:"friendly_scope,omitempty"`
	Origin        Origin     `json:"origin"`
	Selected      bool       `json:"selected"`
}
