package ldapdir

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/mproctor/adsweep/internal/directory"
)

const (
	attrName               = "name"
	attrSAMAccountName     = "sAMAccountName"
	attrDistinguishedName  = "distinguishedName"
	attrUserAccountControl = "userAccountControl"
	attrLastLogonTimestamp = "lastLogonTimestamp"
)

// uacAccountDisable is the ACCOUNTDISABLE bit of userAccountControl.
const uacAccountDisable = 0x2

var computerAttributes = []string{
	attrName, attrSAMAccountName, attrDistinguishedName,
	attrUserAccountControl, attrLastLogonTimestamp,
}

// filetimeEpoch is January 1, 1601 UTC, the origin of Windows FILETIME.
var filetimeEpoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

// computerFilter builds the LDAP filter for a computer query.
func computerFilter(f directory.Filter) string {
	if f == directory.FilterDisabledOnly {
		// The 1.2.840.113556.1.4.803 matching rule is a bitwise AND.
		return fmt.Sprintf("(&(objectCategory=computer)(userAccountControl:1.2.840.113556.1.4.803:=%d))", uacAccountDisable)
	}
	return "(objectCategory=computer)"
}

// nameFilter builds the LDAP filter resolving a computer by name. Computer
// sAMAccountNames carry a trailing dollar sign; match either form.
func nameFilter(name string) string {
	escaped := ldap.EscapeFilter(name)
	return fmt.Sprintf("(&(objectCategory=computer)(|(name=%s)(sAMAccountName=%s$)(sAMAccountName=%s)))",
		escaped, escaped, escaped)
}

// entryToComputer maps an LDAP entry onto the directory model.
func entryToComputer(e *ldap.Entry) directory.Computer {
	comp := directory.Computer{
		Name:              e.GetAttributeValue(attrName),
		DistinguishedName: e.GetAttributeValue(attrDistinguishedName),
	}
	if comp.Name == "" {
		comp.Name = trimDollar(e.GetAttributeValue(attrSAMAccountName))
	}
	if comp.DistinguishedName == "" {
		comp.DistinguishedName = e.DN
	}

	if raw := e.GetAttributeValue(attrUserAccountControl); raw != "" {
		enabled := parseUAC(raw)&uacAccountDisable == 0
		comp.Enabled = &enabled
	}
	if ts := parseFiletime(e.GetAttributeValue(attrLastLogonTimestamp)); ts != nil {
		comp.LastLogon = ts
	}
	return comp
}

func trimDollar(s string) string {
	if len(s) > 0 && s[len(s)-1] == '$' {
		return s[:len(s)-1]
	}
	return s
}

// parseUAC parses a userAccountControl value, returning 0 on garbage.
func parseUAC(raw string) int64 {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// setDisabledBit returns uac with ACCOUNTDISABLE set or cleared.
func setDisabledBit(uac int64, disabled bool) int64 {
	if disabled {
		return uac | uacAccountDisable
	}
	return uac &^ uacAccountDisable
}

// parseFiletime converts an AD FILETIME string (100-nanosecond intervals
// since 1601-01-01 UTC) into a time. Zero, empty, and unparseable values
// mean "never logged on" and yield nil.
func parseFiletime(raw string) *time.Time {
	if raw == "" || raw == "0" {
		return nil
	}
	ticks, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ticks <= 0 {
		return nil
	}
	// Split ticks into whole seconds and remainder so the nanosecond
	// component never overflows a time.Duration.
	secs := ticks / 10_000_000
	nanos := (ticks % 10_000_000) * 100
	t := filetimeEpoch.Add(time.Duration(secs) * time.Second).Add(time.Duration(nanos) * time.Nanosecond)
	return &t
}
