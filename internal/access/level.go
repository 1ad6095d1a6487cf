// Package access resolves how much of an admin module the current session may
// use. The answer is always one of three levels and defaults to NoAccess.
package access

import "strings"

// Level is an access level for one admin module.
type Level int

const (
	NoAccess Level = iota
	ViewOnly
	FullAccess
)

// Canonical spellings, as stored by current clients.
const (
	noAccessName   = "no access"
	viewOnlyName   = "only view"
	fullAccessName = "all access"
)

func (l Level) String() string {
	switch l {
	case ViewOnly:
		return viewOnlyName
	case FullAccess:
		return fullAccessName
	default:
		return noAccessName
	}
}

// MarshalText encodes the canonical spelling.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// CanView reports whether the module's data may be listed.
func (l Level) CanView() bool { return l >= ViewOnly }

// CanEdit reports whether the module's data may be created, updated, or deleted.
func (l Level) CanEdit() bool { return l == FullAccess }

// legacyNames maps every spelling found in stored permission maps to a level.
var legacyNames = map[string]Level{
	"no access":   NoAccess,
	"denied":      NoAccess,
	"none":        NoAccess,
	"only view":   ViewOnly,
	"view":        ViewOnly,
	"view only":   ViewOnly,
	"view-only":   ViewOnly,
	"read":        ViewOnly,
	"all access":  FullAccess,
	"full":        FullAccess,
	"full access": FullAccess,
}

// ParseLevel maps a stored permission value to a Level. Unknown values yield
// NoAccess and false.
func ParseLevel(s string) (Level, bool) {
	key := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	l, ok := legacyNames[key]
	if !ok {
		return NoAccess, false
	}
	return l, true
}
