package auth

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that lets through callers holding one of
// roles.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !p.HasRole(roles...) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("insufficient permissions: requires one of %v", roles))
			}
			return next(c)
		}
	}
}

// RequireStaffRole gates a route to doctors and assistants.
func RequireStaffRole() echo.MiddlewareFunc {
	return RequireRole(StaffRoles...)
}
