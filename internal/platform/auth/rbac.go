package auth

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/pkg/role"
)

// RequireRole returns middleware that checks the caller holds one of roles.
// Admin passes every check.
func RequireRole(roles ...role.Role) echo.MiddlewareFunc {
	allowed := role.NewSet(roles...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if p.Role == role.Admin || allowed.Contains(p.Role) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", allowed))
		}
	}
}
