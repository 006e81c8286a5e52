package formulary

import (
	"net/http"
	"strconv"

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
	g := api.Group("/medicines", auth.RequireStaffRole())
	g.GET("", h.ListMedicines)
	g.GET("/:id", h.GetMedicine)
	g.POST("", h.AddMedicine)
	g.PUT("/:id", h.UpdateMedicine)
	g.DELETE("/:id", h.DeleteMedicine)
	g.POST("/defaults", h.LoadDefaults)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) ListMedicines(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMedicines(c.Request().Context(), p, pg.Query, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetMedicine(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.GetMedicine(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) AddMedicine(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	var in MedicineInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.AddMedicine(c.Request().Context(), p, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) UpdateMedicine(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in MedicineInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.UpdateMedicine(c.Request().Context(), p, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedicine(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMedicine(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) LoadDefaults(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	res, err := h.svc.LoadDefaults(c.Request().Context(), p)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if res.Inserted > 0 {
		status = http.StatusCreated
	}
	return c.JSON(status, res)
}
