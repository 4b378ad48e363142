package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// Scope is the applicability level of a terminal state. It is a closed set:
// values outside the declared constants are rejected by ParseScope and UnmarshalText,
// and every switch over Scope in this module ends with an error default.
type Scope uint8

const (
	scopeInvalid Scope = iota
	ScopeProject
	ScopeContact
	ScopeGlobal
)

var scopeNames = [...]string{
	scopeInvalid: "",
	ScopeProject: "project",
	ScopeContact: "contact",
	ScopeGlobal:  "global",
}

func (s Scope) String() string {
	if int(s) < len(scopeNames) {
		return scopeNames[s]
	}
	return fmt.Sprintf("Scope(%d)", uint8(s))
}

func (s Scope) Valid() bool {
	return s == ScopeProject || s == ScopeContact || s == ScopeGlobal
}

func ParseScope(v string) (Scope, error) {
	switch v {
	case "project":
		return ScopeProject, nil
	case "contact":
		return ScopeContact, nil
	case "global":
		return ScopeGlobal, nil
	default:
		return scopeInvalid, fmt.Errorf("unknown scope %q", v)
	}
}

func (s Scope) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid scope %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Scope) UnmarshalText(b []byte) error {
	v, err := ParseScope(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Value stores the scope as text.
func (s Scope) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid scope %d", uint8(s))
	}
	return s.String(), nil
}

func (s *Scope) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into Scope", src)
	}
}

// CheckKeys enforces the scope/key invariant of terminal sessions:
//   - global: neither key
//   - contact: contact key only
//   - project: project key, optionally narrowed to one contact
func (s Scope) CheckKeys(projectID, contactID *uuid.UUID) error {
	switch s {
	case ScopeGlobal:
		if projectID != nil || contactID != nil {
			return fmt.Errorf("global scope must not reference a project or contact")
		}
		return nil
	case ScopeContact:
		if contactID == nil {
			return fmt.Errorf("contact scope requires a contact")
		}
		if projectID != nil {
			return fmt.Errorf("contact scope must not reference a project")
		}
		return nil
	case ScopeProject:
		if projectID == nil {
			return fmt.Errorf("project scope requires a project")
		}
		return nil
	default:
		return fmt.Errorf("invalid scope %d", uint8(s))
	}
}
