package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/pkg/role"
)

type contextKey string

const PrincipalKey contextKey = "principal"

// Verifier checks a bearer token and returns the identity it carries.
type Verifier interface {
	Verify(token string) (*Principal, error)
}

// Skipper reports whether a request bypasses authentication.
type Skipper func(c echo.Context) bool

// JWTMiddleware authenticates requests with a bearer token. Requests matched
// by skip pass through without a principal.
func JWTMiddleware(v Verifier, skip Skipper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip != nil && skip(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			p, err := v.Verify(strings.TrimSpace(parts[1]))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set("user_id", p.ID.String())
			c.Set("user_role", string(p.Role))
			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), *p)))

			return next(c)
		}
	}
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) uuid.UUID {
	p, _ := PrincipalFromContext(ctx)
	return p.ID
}

func RoleFromContext(ctx context.Context) role.Role {
	p, _ := PrincipalFromContext(ctx)
	return p.Role
}
