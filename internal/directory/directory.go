// Package directory defines the narrow contract adsweep needs from a
// directory service: enumerate containers, query machine accounts, and
// mutate a single object by its distinguished name. The concrete LDAP
// implementation lives in the ldapdir subpackage.
package directory

import (
	"context"
	"time"
)

// Filter narrows a computer query server-side.
type Filter string

// Known query filters.
const (
	FilterAll          Filter = "all"
	FilterDisabledOnly Filter = "disabled"
)

// Computer is one machine-account object as returned by a query.
type Computer struct {
	Name              string     `json:"name"`
	DistinguishedName string     `json:"distinguished_name"`
	Enabled           *bool      `json:"enabled,omitempty"`    // nil when the account-control state could not be read
	LastLogon         *time.Time `json:"last_logon,omitempty"` // nil when the object has no logon information
}

// Client is the capability adsweep consumes from the directory service.
// Implementations own their own timeout behavior; callers see timeouts as
// ordinary errors.
type Client interface {
	// ResolveRootPath returns the distinguished name of the directory
	// root (the default naming context).
	ResolveRootPath(ctx context.Context) (string, error)

	// ListOrganizationalUnits returns the raw distinguished names of all
	// OU objects under rootPath.
	ListOrganizationalUnits(ctx context.Context, rootPath string) ([]string, error)

	// QueryComputers returns computer objects under scopePath (the entire
	// tree when scopePath is empty) matching the filter.
	QueryComputers(ctx context.Context, scopePath string, filter Filter) ([]Computer, error)

	// FindComputerByName resolves a single computer by its name within
	// scopePath. Returns ErrNotFound when no object matches.
	FindComputerByName(ctx context.Context, name, scopePath string) (*Computer, error)

	// SetEnabled enables or disables the object at dn.
	SetEnabled(ctx context.Context, dn string, enabled bool) error

	// DeleteObject removes the object at dn.
	DeleteObject(ctx context.Context, dn string) error
}
