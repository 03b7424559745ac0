package role

import (
	"fmt"
	"sort"
	"strings"
)

// Role is one of the fixed account roles. The zero value is not a valid role.
type Role string

const (
	Admin         Role = "admin"
	Doctor        Role = "doctor"
	Patient       Role = "patient"
	LabTechnician Role = "lab_technician"
	Pharmacist    Role = "pharmacist"
	Staff         Role = "staff"
)

var all = []Role{Admin, Doctor, Patient, LabTechnician, Pharmacist, Staff}

// All returns every role in a stable order.
func All() []Role {
	out := make([]Role, len(all))
	copy(out, all)
	return out
}

// Parse trims and lowercases s and returns the matching role.
func Parse(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case Admin, Doctor, Patient, LabTechnician, Pharmacist, Staff:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Set is a set of roles. An empty set means any authenticated role.
type Set map[Role]struct{}

// NewSet builds a set from the given roles.
func NewSet(roles ...Role) Set {
	s := make(Set, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

func (s Set) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}

func (s Set) Empty() bool {
	return len(s) == 0
}

// Slice returns the members sorted by name.
func (s Set) Slice() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s Set) String() string {
	if s.Empty() {
		return "any"
	}
	parts := make([]string, 0, len(s))
	for _, r := range s.Slice() {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, ",")
}
