// Package pagination reads list parameters from a request and wraps a
// page of results for the response.
package pagination

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100

	// MaxQueryLen caps the search term passed to ILIKE filters.
	MaxQueryLen = 100
)

// Params holds the page window and the optional search term ("q").
type Params struct {
	Limit  int
	Offset int
	Query  string
}

// FromContext reads limit, offset and q. Out-of-range values are clamped
// rather than rejected.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	q := strings.TrimSpace(c.QueryParam("q"))
	if len(q) > MaxQueryLen {
		q = q[:MaxQueryLen]
	}
	return Params{Limit: limit, Offset: offset, Query: q}
}

// HasNext reports whether rows remain after this page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// Response is the envelope of every list endpoint.
type Response struct {
	Data    any  `json:"data"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// NewResponse wraps one page of results.
func NewResponse(data any, total, limit, offset int) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: Params{Limit: limit, Offset: offset}.HasNext(total),
	}
}
