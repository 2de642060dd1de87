package s2s

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Role is a marketplace role
type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
	RoleAdmin   Role = "admin"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleTutor, RoleAdmin:
		return true
	default:
		return false
	}
}

// Roles is the set of roles a user holds. The zero value is an empty set.
type Roles []Role

// NewRoles builds a set, dropping blanks and duplicates
func NewRoles(roles ...Role) Roles {
	out := make(Roles, 0, len(roles))
	for _, r := range roles {
		out = out.Add(r)
	}
	return out
}

// ParseRoles accepts raw strings, e.g. from a query or token claims
func ParseRoles(values ...string) Roles {
	out := make(Roles, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			out = out.Add(Role(strings.ToLower(strings.TrimSpace(part))))
		}
	}
	return out
}

// Add returns the set with r included
func (rs Roles) Add(r Role) Roles {
	if r == "" || rs.Has(r) {
		return rs
	}
	return append(rs, r)
}

func (rs Roles) Has(r Role) bool {
	for _, v := range rs {
		if v == r {
			return true
		}
	}
	return false
}

// HasAny is true when at least one of the given roles is in the set
func (rs Roles) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if rs.Has(r) {
			return true
		}
	}
	return false
}

// Validate reports the first role that is not known
func (rs Roles) Validate() error {
	if len(rs) == 0 {
		return fmt.Errorf("at least one role is required")
	}
	for _, r := range rs {
		if !r.IsValid() {
			return fmt.Errorf("unknown role %q", r)
		}
	}
	return nil
}

func (rs Roles) Strings() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	sort.Strings(out)
	return out
}

// UnmarshalJSON accepts either a single role or a list of roles.
func (rs *Roles) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*rs = ParseRoles(single)
		return nil
	}

	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("roles: expected string or array: %w", err)
	}
	*rs = ParseRoles(many...)
	return nil
}

func (rs Roles) Value() (driver.Value, error) {
	if rs == nil {
		rs = Roles{}
	}
	b, err := json.Marshal([]Role(rs))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (rs *Roles) Scan(src any) error {
	return scanJSON(src, rs)
}

// StatusValue is the per role account status
type StatusValue string

const (
	StatusActive   StatusValue = "active"
	StatusInactive StatusValue = "inactive"
)

// UserStatus maps each role a user holds to its status
type UserStatus map[Role]StatusValue

// DefaultStatus marks every role as active
func DefaultStatus(roles Roles) UserStatus {
	status := UserStatus{}
	for _, r := range roles {
		status[r] = StatusActive
	}
	return status
}

// Merge applies the given changes and returns the result
func (s UserStatus) Merge(changes UserStatus) UserStatus {
	out := UserStatus{}
	for k, v := range s {
		out[k] = v
	}
	for k, v := range changes {
		out[k] = v
	}
	return out
}

// IsActive reports the status for one role; unknown roles are inactive
func (s UserStatus) IsActive(r Role) bool {
	return s[r] == StatusActive
}

func (s UserStatus) Value() (driver.Value, error) {
	if s == nil {
		s = UserStatus{}
	}
	b, err := json.Marshal(map[Role]StatusValue(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *UserStatus) Scan(src any) error {
	return scanJSON(src, s)
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	default:
		return fmt.Errorf("unsupported scan type %T", src)
	}
}
