package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// JWTMiddleware verifies the bearer token and stores the caller's
// Principal on the request context. Requests matched by skip pass through
// unauthenticated.
func JWTMiddleware(tokens *Tokens, skip func(c echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip != nil && skip(c) {
				return next(c)
			}

			p, err := principalFromHeader(c, tokens)
			if err != nil {
				return err
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}

// DevAuthMiddleware lets requests without an Authorization header through
// as a doctor. A presented token is still verified.
func DevAuthMiddleware(tokens *Tokens) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") == "" {
				setPrincipal(c, Principal{Username: "dev", Role: RoleDoctor})
				return next(c)
			}
			p, err := principalFromHeader(c, tokens)
			if err != nil {
				return err
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}

func principalFromHeader(c echo.Context, tokens *Tokens) (Principal, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	scheme, tokenStr, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tokenStr) == "" {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	p, err := tokens.Parse(strings.TrimSpace(tokenStr))
	if err != nil {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return p, nil
}

func setPrincipal(c echo.Context, p Principal) {
	c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
	c.Set("user", p.Username)
}

// FromEcho returns the request principal, or 401 when none was set.
func FromEcho(c echo.Context) (Principal, error) {
	p, ok := PrincipalFromContext(c.Request().Context())
	if !ok {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return p, nil
}
