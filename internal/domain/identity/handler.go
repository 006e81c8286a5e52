package identity

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
	"github.com/dentaleditapp/tdeclinic-emr/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Public; listed in auth.AuthSkipper.
	api.POST("/auth/login", h.Login)

	staff := api.Group("", auth.RequireStaffRole())
	staff.GET("/patient-logins", h.ListPatientLogins)

	api.GET("/me", h.Me)
}

func (h *Handler) Login(c echo.Context) error {
	var cred Credentials
	if err := c.Bind(&cred); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.Authenticate(c.Request().Context(), cred)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) ListPatientLogins(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatientLogins(c.Request().Context(), p, pg.Query, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// Me echoes the verified principal.
func (h *Handler) Me(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
