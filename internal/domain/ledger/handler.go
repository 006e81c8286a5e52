package ledger

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireStaffRole())
	staff.GET("/dashboard", h.Dashboard)
	staff.GET("/treatments/:id/summary", h.TreatmentSummary)

	// Patients read their own records; ownership is checked by the service.
	readers := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleAssistant, auth.RolePatient))
	readers.GET("/patients/:id/summary", h.PatientSummary)
	readers.GET("/visits/:id/invoice", h.VisitSummary)

	me := api.Group("/me", auth.RequireRole(auth.RolePatient))
	me.GET("/summary", h.MySummary)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Dashboard(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Dashboard(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) PatientSummary(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sum, err := h.svc.PatientSummary(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) MySummary(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	sum, err := h.svc.MySummary(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) VisitSummary(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sum, err := h.svc.VisitSummary(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) TreatmentSummary(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sum, err := h.svc.TreatmentSummary(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}
