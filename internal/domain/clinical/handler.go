package clinical

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/blobstore"
	"github.com/dentaleditapp/tdeclinic-emr/pkg/pagination"
)

// Handler exposes the record store over HTTP. Domain errors are returned
// as-is and rendered by the server's error handler.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints - doctor, assistant
	readGroup := api.Group("", auth.RequireStaffRole())
	readGroup.GET("/patients", h.ListPatients)
	readGroup.GET("/patients/:id", h.GetPatient)
	readGroup.GET("/patients/:id/cases", h.ListCases)
	readGroup.GET("/patients/:id/visits", h.ListVisits)
	readGroup.GET("/patients/:id/files", h.ListFiles)
	readGroup.GET("/cases/:id", h.GetCase)
	readGroup.GET("/visits/:id", h.GetVisit)
	readGroup.GET("/visits/:id/prescription", h.GetPrescription)
	readGroup.GET("/treatments/:id", h.GetTreatment)
	readGroup.GET("/treatments/:id/followups", h.ListFollowUps)
	readGroup.GET("/dentists", h.ListDentists)
	readGroup.GET("/dentists/workload", h.DentistWorkload)
	readGroup.GET("/appointments/due", h.DueAppointments)

	// Write endpoints - doctor, assistant
	writeGroup := api.Group("", auth.RequireStaffRole())
	writeGroup.POST("/patients", h.RegisterPatient)
	writeGroup.PATCH("/patients/:id", h.UpdatePatient)
	writeGroup.DELETE("/patients/:id", h.DeletePatient)
	writeGroup.POST("/patients/:id/files", h.UploadFiles)
	writeGroup.POST("/cases", h.CreateCase)
	writeGroup.PUT("/cases/:id", h.UpdateCase)
	writeGroup.DELETE("/cases/:id", h.DeleteCase)
	writeGroup.POST("/visits", h.CreateVisit)
	writeGroup.DELETE("/visits/:id", h.DeleteVisit)
	writeGroup.PUT("/visits/:id/prescription", h.SavePrescription)
	writeGroup.POST("/treatments", h.CreateTreatment)
	writeGroup.PUT("/treatments/:id", h.UpdateTreatment)
	writeGroup.DELETE("/treatments/:id", h.DeleteTreatment)
	writeGroup.POST("/payments", h.RecordPayment)
	writeGroup.DELETE("/payments/:id", h.DeletePayment)
	writeGroup.POST("/followups", h.AddFollowUp)
	writeGroup.DELETE("/followups/:id", h.DeleteFollowUp)
	writeGroup.DELETE("/radiographs/:id", h.DeleteFile)
	writeGroup.POST("/complete/:type/:id", h.MarkComplete)
	writeGroup.POST("/dentists", h.RegisterDentist)
	writeGroup.DELETE("/dentists/:id", h.DeleteDentist)

	// Downloads - staff and the owning patient
	fileGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleAssistant, auth.RolePatient))
	fileGroup.GET("/files/:name", h.DownloadFile)
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// bindWithAttachment binds a JSON body, or a multipart body whose "data"
// field holds the JSON and whose "attachment" part is the optional file.
// The returned release func closes the file.
func bindWithAttachment(c echo.Context, dst any) (*Upload, func(), error) {
	noop := func() {}
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		if err := c.Bind(dst); err != nil {
			return nil, noop, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return nil, noop, nil
	}
	if data := c.FormValue("data"); data != "" {
		if err := json.Unmarshal([]byte(data), dst); err != nil {
			return nil, noop, echo.NewHTTPError(http.StatusBadRequest, "invalid data field: "+err.Error())
		}
	}
	fh, err := c.FormFile("attachment")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := fh.Open()
	if err != nil {
		return nil, noop, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return &Upload{Name: fh.Filename, Content: f}, func() { f.Close() }, nil
}

// -- Patient Handlers --

func (h *Handler) RegisterPatient(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	var in PatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	reg, err := h.svc.RegisterPatient(c.Request().Context(), p, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, reg)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var upd PatientUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pt, err := h.svc.UpdatePatient(c.Request().Context(), p, id, upd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pt)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	pt, err := h.svc.GetPatient(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pt)
}

func (h *Handler) ListPatients(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), p, pg.Query, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeletePatient(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Case Handlers --

func (h *Handler) CreateCase(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	var in CaseInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cs, err := h.svc.CreateCase(c.Request().Context(), p, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cs)
}

func (h *Handler) UpdateCase(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var upd CaseUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cs, err := h.svc.UpdateCase(c.Request().Context(), p, id, upd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cs)
}

func (h *Handler) GetCase(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	detail, err := h.svc.GetCase(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) ListCases(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListCases(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) DeleteCase(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteCase(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Visit Handlers --

func (h *Handler) CreateVisit(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	var in VisitInput
	att, release, err := bindWithAttachment(c, &in)
	if err != nil {
		return err
	}
	defer release()
	v, err := h.svc.CreateVisit(c.Request().Context(), p, in, att)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetVisit(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	v, err := h.svc.GetVisit(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListVisits(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListVisits(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) DeleteVisit(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteVisit(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type prescriptionRequest struct {
	Notes string             `json:"notes"`
	Items []PrescriptionItem `json:"items"`
}

func (h *Handler) SavePrescription(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req prescriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rx, err := h.svc.SaveVisitPrescription(c.Request().Context(), p, id, req.Notes, req.Items)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rx)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	rx, err := h.svc.GetVisitPrescription(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rx)
}

// -- Treatment Handlers --

func (h *Handler) CreateTreatment(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	var in TreatmentInput
	att, release, err := bindWithAttachment(c, &in)
	if err != nil {
		return err
	}
	defer release()
	res, err := h.svc.CreateTreatment(c.Request().Context(), p, in, att)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) UpdateTreatment(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var upd TreatmentUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t, err := h.svc.UpdateTreatment(c.Request().Context(), p, id, upd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) GetTreatment(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.svc.GetTreatment(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTreatment(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteTreatment(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Payment and Follow-up Handlers --

func (h *Handler) RecordPayment(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	var in PaymentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pay, err := h.svc.RecordPayment(c.Request().Context(), p, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, pay)
}

func (h *Handler) DeletePayment(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeletePayment(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AddFollowUp(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	var in FollowUpInput
	att, release, err := bindWithAttachment(c, &in)
	if err != nil {
		return err
	}
	defer release()
	f, err := h.svc.AddFollowUp(c.Request().Context(), p, in, att)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) ListFollowUps(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListFollowUps(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) DeleteFollowUp(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteFollowUp(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) MarkComplete(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	target, err := ParseCompletionTarget(c.Param("type"))
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.MarkComplete(c.Request().Context(), p, target, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DueAppointments(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	items, err := h.svc.DueAppointments(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

// -- File Handlers --

func (h *Handler) UploadFiles(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "expected a multipart form")
	}
	in := UploadInput{PatientID: id}
	if v := c.FormValue("treatment_id"); v != "" {
		tid, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid treatment_id")
		}
		in.TreatmentID = &tid
	}
	if v := c.FormValue("case_ref"); v != "" {
		cid, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid case_ref")
		}
		in.CaseRef = &cid
	}

	var uploads []*Upload
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		defer f.Close()
		uploads = append(uploads, &Upload{Name: fh.Filename, Content: f})
	}
	items, err := h.svc.UploadFiles(c.Request().Context(), p, in, uploads)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, items)
}

func (h *Handler) ListFiles(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListFiles(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) DownloadFile(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	name := c.Param("name")
	rc, err := h.svc.OpenFile(c.Request().Context(), p, name)
	if err != nil {
		return err
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="`+name+`"`)
	return c.Stream(http.StatusOK, blobstore.ContentType(name), rc)
}

func (h *Handler) DeleteFile(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteFile(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Dentist Handlers --

func (h *Handler) RegisterDentist(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	var in DentistInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.RegisterDentist(c.Request().Context(), p, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) ListDentists(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListDentists(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) DeleteDentist(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDentist(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DentistWorkload(c echo.Context) error {
	p, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	items, err := h.svc.DentistWorkload(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}
