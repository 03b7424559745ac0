package guard

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hms/hms/internal/session"
	"github.com/hms/hms/pkg/role"
)

func authenticated(r role.Role) session.State {
	return session.AuthenticatedState(session.Credentials{
		Token: "tok",
		Role:  r,
		User:  session.User{ID: uuid.New(), Name: "U", Email: "u@example.com", Role: r},
	})
}

func TestAuthorize_ResolvingIsPending(t *testing.T) {
	for _, required := range []role.Set{role.NewSet(), role.NewSet(role.Admin)} {
		d := Authorize(session.ResolvingState(), required, "/admin/dashboard")
		assert.Equal(t, Pending, d.Kind)
		assert.Empty(t, d.Target())
	}
}

func TestAuthorize_AnonymousRedirectsToLogin(t *testing.T) {
	sets := []role.Set{role.NewSet(), role.NewSet(role.Admin), role.NewSet(role.Patient, role.Doctor)}
	for _, r := range role.All() {
		sets = append(sets, role.NewSet(r))
	}

	for _, required := range sets {
		d := Authorize(session.AnonymousState(), required, "/doctor/patients?id=7")
		assert.Equal(t, RedirectToLogin, d.Kind, "required=%s", required)
		assert.Equal(t, "/doctor/patients?id=7", d.From)
	}
	d := Authorize(session.AnonymousState(), role.NewSet(role.Admin), "/doctor/patients?id=7")
	assert.Equal(t, "/login?from=%2Fdoctor%2Fpatients%3Fid%3D7", d.Target())
}

func TestAuthorize_RoleMismatch(t *testing.T) {
	d := Authorize(authenticated(role.Doctor), role.NewSet(role.Admin), "/admin/dashboard")
	assert.Equal(t, RedirectToUnauthorized, d.Kind)
	assert.Equal(t, UnauthorizedPath, d.Target())
}

func TestAuthorize_Matrix(t *testing.T) {
	for _, have := range role.All() {
		for _, want := range role.All() {
			d := Authorize(authenticated(have), role.NewSet(want), "/x")
			if have == want {
				assert.Equal(t, Allow, d.Kind, "%s on %s", have, want)
			} else {
				assert.Equal(t, RedirectToUnauthorized, d.Kind, "%s on %s", have, want)
			}
		}
		assert.Equal(t, Allow, Authorize(authenticated(have), role.NewSet(), "/profile").Kind)
	}
}

func TestRoutes_Match(t *testing.T) {
	routes := DefaultRoutes()
	tests := []struct {
		path      string
		protected bool
		want      role.Set
	}{
		{"/patient/dashboard", true, role.NewSet(role.Patient)},
		{"/patient", true, role.NewSet(role.Patient)},
		{"/Patient/Dashboard/", true, role.NewSet(role.Patient)},
		{"/admin/users?page=2", true, role.NewSet(role.Admin)},
		{"/billing/invoices", true, role.NewSet(role.Staff, role.Admin)},
		{"/profile", true, role.NewSet()},
		{"/patients", false, nil},
		{"/login", false, nil},
		{"/", false, nil},
		{"admin", true, role.NewSet(role.Admin)},
		{"//admin/dashboard", true, role.NewSet(role.Admin)},
		{"/./admin/dashboard", true, role.NewSet(role.Admin)},
		{"/patient/../admin/dashboard", true, role.NewSet(role.Admin)},
		{"/%61dmin/dashboard", true, role.NewSet(role.Admin)},
		{"/admin/../about", false, nil},
	}
	for _, tt := range tests {
		got, ok := routes.Match(tt.path)
		assert.Equal(t, tt.protected, ok, tt.path)
		if tt.protected {
			assert.Equal(t, tt.want, got, tt.path)
		}
	}
}

func TestRoutes_MatchLongestPrefix(t *testing.T) {
	routes := Routes{
		{Prefix: "/admin", Required: role.NewSet(role.Admin)},
		{Prefix: "/admin/reports", Required: role.NewSet(role.Admin, role.Staff)},
	}
	got, ok := routes.Match("/admin/reports/daily")
	require.True(t, ok)
	assert.True(t, got.Contains(role.Staff))
}

func TestScenario_PatientNavigation(t *testing.T) {
	routes := DefaultRoutes()
	st := authenticated(role.Patient)

	assert.Equal(t, Allow, routes.Navigate(st, "/patient/dashboard").Kind)
	assert.Equal(t, RedirectToUnauthorized, routes.Navigate(st, "/admin/dashboard").Kind)
	assert.Equal(t, Allow, routes.Navigate(st, "/profile").Kind)
	assert.Equal(t, Allow, routes.Navigate(st, "/about").Kind)
}

func TestNavigate_NonCanonicalPaths(t *testing.T) {
	routes := DefaultRoutes()
	paths := []string{
		"//admin/dashboard",
		"/./admin/dashboard",
		"/patient/../admin/dashboard",
		"/patient/%2e%2e/admin/dashboard",
		"/admin//dashboard/.",
	}
	for _, p := range paths {
		d := routes.Navigate(session.AnonymousState(), p)
		assert.Equal(t, RedirectToLogin, d.Kind, p)
		assert.Equal(t, p, d.From, p)

		assert.Equal(t, RedirectToUnauthorized, routes.Navigate(authenticated(role.Patient), p).Kind, p)
		assert.Equal(t, Allow, routes.Navigate(authenticated(role.Admin), p).Kind, p)
	}
}

func TestScenario_ClearedRoleKey(t *testing.T) {
	store := session.NewMemoryStorage()
	m := session.NewManager(store, zerologDiscard())
	_, err := m.Login("tok", "patient", session.User{ID: uuid.New(), Name: "Alice", Email: "alice@example.com"})
	require.NoError(t, err)
	require.NoError(t, store.Remove(session.KeyRole))

	st := session.NewManager(store, zerologDiscard()).Restore()
	routes := DefaultRoutes()
	for _, path := range []string{"/patient/dashboard", "/doctor/dashboard", "/admin", "/profile"} {
		d := routes.Navigate(st, path)
		assert.Equal(t, RedirectToLogin, d.Kind, path)
		assert.Equal(t, path, d.From)
	}
}

func TestLanding(t *testing.T) {
	routes := DefaultRoutes()
	for _, r := range role.All() {
		path := Landing(r)
		assert.NotEqual(t, LoginPath, path, "role %s has no landing page", r)
		assert.Equal(t, Allow, routes.Navigate(authenticated(r), path).Kind,
			"role %s cannot enter its own landing page %s", r, path)
	}
	assert.Equal(t, LoginPath, Landing("nobody"))
}
