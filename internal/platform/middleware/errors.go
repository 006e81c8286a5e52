package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperr.HTTPStatus(err)
}

// HTTPErrorHandler renders echo and domain errors as ErrorResponse.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		rid, _ := c.Get("request_id").(string)
		resp := ErrorResponse{RequestID: rid}
		status := statusOf(err)

		var he *echo.HTTPError
		var ae *apperr.Error
		switch {
		case errors.As(err, &he):
			resp.Error = http.StatusText(he.Code)
			if msg, ok := he.Message.(string); ok {
				resp.Error = msg
			}
		case errors.As(err, &ae):
			resp.Error = apperr.PublicMessage(err)
			resp.Details = ae.Details
		default:
			resp.Error = apperr.PublicMessage(err)
		}

		if status >= 500 {
			logger.Error().Err(err).Str("request_id", rid).Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, resp)
		}
		if werr != nil {
			logger.Error().Err(werr).Str("request_id", rid).Msg("write error response")
		}
	}
}
