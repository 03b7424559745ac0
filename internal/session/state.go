package session

import (
	"github.com/google/uuid"

	"github.com/hms/hms/pkg/role"
)

type Status int

const (
	Resolving Status = iota
	Authenticated
	Anonymous
)

func (s Status) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	}
	return "unknown"
}

// User is the account summary kept alongside the token.
type User struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  role.Role `json:"role"`
}

// Credentials is everything an authenticated session holds.
type Credentials struct {
	Token string
	Role  role.Role
	User  User
}

// State is a session snapshot. Credentials exist only in the Authenticated
// status; the other two carry nothing.
type State struct {
	status Status
	creds  *Credentials
}

func ResolvingState() State { return State{status: Resolving} }

func AnonymousState() State { return State{status: Anonymous} }

func AuthenticatedState(c Credentials) State {
	return State{status: Authenticated, creds: &c}
}

func (s State) Status() Status { return s.status }

// Loading reports whether the session is still being resolved.
func (s State) Loading() bool { return s.status == Resolving }

func (s State) Credentials() (Credentials, bool) {
	if s.status != Authenticated || s.creds == nil {
		return Credentials{}, false
	}
	return *s.creds, true
}

// Role returns the session role, or "" when not authenticated.
func (s State) Role() role.Role {
	c, ok := s.Credentials()
	if !ok {
		return ""
	}
	return c.Role
}
