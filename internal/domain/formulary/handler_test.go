package formulary

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
)

func newRequestContext(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, "/", nil)
	}
	req = req.WithContext(auth.WithPrincipal(req.Context(), doctor))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_AddMedicine(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	c, rec := newRequestContext(echo.New(), http.MethodPost, `{"category":"Antivirals","drug_name":" Acyclovir ","strength":"400 mg"}`)

	if err := h.AddMedicine(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var m Medicine
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.DrugName != "Acyclovir" {
		t.Errorf("drug_name = %q", m.DrugName)
	}
}

func TestHandler_LoadDefaults(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	c, rec := newRequestContext(e, http.MethodPost, "")
	if err := h.LoadDefaults(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("first load: expected 201, got %d", rec.Code)
	}

	c, rec = newRequestContext(e, http.MethodPost, "")
	if err := h.LoadDefaults(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("second load: expected 200, got %d", rec.Code)
	}
	var res LoadResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Existing == 0 || res.Inserted != 0 {
		t.Errorf("second load = %+v", res)
	}
}

func TestHandler_ListMedicines(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	c, _ := newRequestContext(e, http.MethodPost, "")
	if err := h.LoadDefaults(c); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/?limit=5", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), doctor))
	rec := httptest.NewRecorder()
	if err := h.ListMedicines(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data    []Medicine `json:"data"`
		Total   int        `json:"total"`
		HasMore bool       `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 5 || body.Total != 50 || !body.HasMore {
		t.Errorf("page = %d items of %d, has_more=%v", len(body.Data), body.Total, body.HasMore)
	}
	if body.Data[0].Category != "Antibiotics (Adults)" {
		t.Errorf("first category = %q", body.Data[0].Category)
	}
}

func TestHandler_GetMedicine_InvalidID(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	c, _ := newRequestContext(echo.New(), http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues("abc")

	err := h.GetMedicine(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
