package models

import (
	"encoding/json"
	"sort"
)

// PermissionAll satisfies every permission requirement.
const PermissionAll = "all"

// PermissionSet is an unordered set of capability strings granted by a role.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from the given capabilities, ignoring blanks.
func NewPermissionSet(perms ...string) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		if p != "" {
			set[p] = struct{}{}
		}
	}
	return set
}

func (s PermissionSet) Has(perm string) bool {
	_, ok := s[perm]
	return ok
}

// Intersects reports whether s and other share at least one capability.
func (s PermissionSet) Intersects(other PermissionSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for p := range small {
		if large.Has(p) {
			return true
		}
	}
	return false
}

// Slice returns the capabilities in sorted order.
func (s PermissionSet) Slice() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// Principal is the resolved caller of one request. The only implementations
// are SuperAdmin and TenantUser.
type Principal interface {
	Subject() int64
	principal()
}

// SuperAdmin is exempt from tenant scoping.
type SuperAdmin struct {
	SubjectID int64 `json:"subject_id"`
}

func (p *SuperAdmin) Subject() int64 { return p.SubjectID }
func (*SuperAdmin) principal()       {}

// TenantUser is a user resolved inside exactly one tenant partition.
type TenantUser struct {
	SubjectID   int64         `json:"subject_id"`
	TenantID    int64         `json:"tenant_id"`
	Email       string        `json:"email"`
	FullName    string        `json:"full_name,omitempty"`
	RoleName    string        `json:"role"`
	Permissions PermissionSet `json:"permissions"`
	Branding    Branding      `json:"branding"`
}

func (p *TenantUser) Subject() int64 { return p.SubjectID }
func (*TenantUser) principal()       {}

// Permits reports whether p satisfies a gate requiring any one of required.
// An empty requirement admits every resolved principal.
func Permits(p Principal, required PermissionSet) bool {
	switch v := p.(type) {
	case *SuperAdmin:
		return v != nil
	case *TenantUser:
		if v == nil {
			return false
		}
		if v.Permissions.Has(PermissionAll) || len(required) == 0 {
			return true
		}
		return v.Permissions.Intersects(required)
	default:
		return false
	}
}
