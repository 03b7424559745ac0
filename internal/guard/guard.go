package guard

import (
	"net/url"
	"path"
	"strings"

	"github.com/hms/hms/internal/session"
	"github.com/hms/hms/pkg/role"
)

const (
	LoginPath        = "/login"
	UnauthorizedPath = "/unauthorized"
)

type Kind int

const (
	// Pending means the session is still resolving; render nothing.
	Pending Kind = iota
	Allow
	RedirectToLogin
	RedirectToUnauthorized
)

func (k Kind) String() string {
	switch k {
	case Pending:
		return "pending"
	case Allow:
		return "allow"
	case RedirectToLogin:
		return "redirect_to_login"
	case RedirectToUnauthorized:
		return "redirect_to_unauthorized"
	}
	return "unknown"
}

// Decision is the outcome of a navigation check. From is set only for
// RedirectToLogin and holds the location originally requested.
type Decision struct {
	Kind Kind
	From string
}

// Target returns where the client should go, or "" when it should stay.
func (d Decision) Target() string {
	switch d.Kind {
	case RedirectToLogin:
		if d.From == "" {
			return LoginPath
		}
		return LoginPath + "?from=" + url.QueryEscape(d.From)
	case RedirectToUnauthorized:
		return UnauthorizedPath
	}
	return ""
}

// Authorize decides whether the session in st may see a route that requires
// one of required. An empty set admits any authenticated role.
func Authorize(st session.State, required role.Set, requested string) Decision {
	switch st.Status() {
	case session.Resolving:
		return Decision{Kind: Pending}
	case session.Authenticated:
		creds, ok := st.Credentials()
		if !ok {
			return Decision{Kind: RedirectToLogin, From: requested}
		}
		if !required.Empty() && !required.Contains(creds.Role) {
			return Decision{Kind: RedirectToUnauthorized}
		}
		return Decision{Kind: Allow}
	default:
		return Decision{Kind: RedirectToLogin, From: requested}
	}
}

// Route is a protected area of the portal.
type Route struct {
	Prefix   string
	Required role.Set
}

type Routes []Route

// DefaultRoutes lists the portal areas and the roles that may enter them.
func DefaultRoutes() Routes {
	return Routes{
		{Prefix: "/patient", Required: role.NewSet(role.Patient)},
		{Prefix: "/doctor", Required: role.NewSet(role.Doctor)},
		{Prefix: "/lab", Required: role.NewSet(role.LabTechnician)},
		{Prefix: "/pharmacy", Required: role.NewSet(role.Pharmacist)},
		{Prefix: "/billing", Required: role.NewSet(role.Staff, role.Admin)},
		{Prefix: "/staff", Required: role.NewSet(role.Staff)},
		{Prefix: "/admin", Required: role.NewSet(role.Admin)},
		{Prefix: "/profile", Required: role.NewSet()},
	}
}

// Match returns the required roles for the longest route prefix covering
// path. The second result is false for public paths.
func (rs Routes) Match(path string) (role.Set, bool) {
	path = cleanPath(path)
	best := -1
	for i, r := range rs {
		if path != r.Prefix && !strings.HasPrefix(path, r.Prefix+"/") {
			continue
		}
		if best < 0 || len(r.Prefix) > len(rs[best].Prefix) {
			best = i
		}
	}
	if best < 0 {
		return nil, false
	}
	return rs[best].Required, true
}

// Navigate runs Authorize for path against rs. Paths outside every route are
// public and always allowed.
func (rs Routes) Navigate(st session.State, path string) Decision {
	required, ok := rs.Match(path)
	if !ok {
		return Decision{Kind: Allow}
	}
	return Authorize(st, required, path)
}

// cleanPath reduces p to the lowercase, dot-free form routes are matched against.
func cleanPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	return strings.ToLower(path.Clean("/" + p))
}

// Landing returns the dashboard a role lands on after login.
func Landing(r role.Role) string {
	switch r {
	case role.Admin:
		return "/admin/dashboard"
	case role.Doctor:
		return "/doctor/dashboard"
	case role.Patient:
		return "/patient/dashboard"
	case role.LabTechnician:
		return "/lab/dashboard"
	case role.Pharmacist:
		return "/pharmacy/dashboard"
	case role.Staff:
		return "/staff/dashboard"
	}
	return LoginPath
}
