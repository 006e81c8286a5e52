package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	apiCSP = "default-src 'none'; frame-ancestors 'none'"
	// Attachments (x-rays, scans, PDFs) are opened directly in a browser tab.
	fileCSP = "default-src 'none'; img-src 'self'; object-src 'self'; plugin-types application/pdf; frame-ancestors 'none'"

	hstsValue = "max-age=31536000; includeSubDomains"
)

// SecurityHeaders sets response headers for a JSON API that serves patient
// records and their attachments. HSTS is only sent over HTTPS, directly or
// behind a proxy that sets X-Forwarded-Proto.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			// Patient records must not be cached by browsers or proxies.
			h.Set("Cache-Control", "no-store")

			if isFilePath(c.Request().URL.Path) {
				h.Set("Content-Security-Policy", fileCSP)
			} else {
				h.Set("Content-Security-Policy", apiCSP)
			}
			if c.Scheme() == "https" {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			return next(c)
		}
	}
}

func isFilePath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/files/")
}
