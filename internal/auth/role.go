// Package auth implements access control for the registry: the server
// auth mode, the ordered role hierarchy, user and API credential storage
// with salted-hash verification, and cookie sessions.
package auth

import (
	"fmt"
)

// Mode is the server-wide authentication mode. It is immutable for the
// process lifetime.
type Mode string

const (
	// ModeNone disables all checks.
	ModeNone Mode = "none"
	// ModePublish gates only mutating and admin endpoints.
	ModePublish Mode = "publish"
	// ModeFull gates every endpoint including reads.
	ModeFull Mode = "full"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNone, ModePublish, ModeFull:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid auth mode %q", s)
}

// Role is a totally ordered permission level: read < publish < admin.
type Role int

const (
	RoleRead Role = iota
	RolePublish
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleRead:    "read",
	RolePublish: "publish",
	RoleAdmin:   "admin",
}

// ParseRole converts a role name to its ordered value.
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return RoleRead, fmt.Errorf("invalid role %q", s)
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// MarshalJSON encodes the role by name.
func (r Role) MarshalJSON() ([]byte, error) {
	name, ok := roleNames[r]
	if !ok {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(`"` + name + `"`), nil
}

// UnmarshalJSON decodes a role name.
func (r *Role) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid role value %s", data)
	}
	parsed, err := ParseRole(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Authorize reports whether role satisfies the required level.
func Authorize(role, required Role) bool {
	return role >= required
}
