package reference

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
)

type Handler struct {
	p *Provider
}

func NewHandler(p *Provider) *Handler {
	return &Handler{p: p}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reference", auth.RequireStaffRole())
	g.GET("/risk", h.ListSystems)
	g.GET("/risk/:system", h.ListConditions)
	g.GET("/risk/:system/:condition", h.GetRiskProtocol)
	g.GET("/conditions", h.ListConditionGroups)
	g.GET("/conditions/protocol", h.GetConditionProtocol)
	g.GET("/canals/:tooth", h.GetCanals)
}

func (h *Handler) ListSystems(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"systems": h.p.Systems()})
}

func (h *Handler) ListConditions(c echo.Context) error {
	conds, err := h.p.Conditions(c.Param("system"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"system": c.Param("system"), "conditions": conds})
}

func (h *Handler) GetRiskProtocol(c echo.Context) error {
	prot, err := h.p.LookupRiskProtocol(c.Param("system"), c.Param("condition"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, prot)
}

func (h *Handler) ListConditionGroups(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"groups": h.p.ConditionGroups()})
}

// GetConditionProtocol takes the label as a query parameter since labels
// contain slashes.
func (h *Handler) GetConditionProtocol(c echo.Context) error {
	label := c.QueryParam("label")
	return c.JSON(http.StatusOK, map[string]any{"label": label, "items": h.p.LookupConditionProtocol(label)})
}

func (h *Handler) GetCanals(c echo.Context) error {
	tooth := c.Param("tooth")
	return c.JSON(http.StatusOK, map[string]any{"tooth": tooth, "canals": LookupCanals(tooth)})
}
