package ledger_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dentaleditapp/tdeclinic-emr/internal/domain/clinical"
	"github.com/dentaleditapp/tdeclinic-emr/internal/domain/clinical/clinicaltest"
	"github.com/dentaleditapp/tdeclinic-emr/internal/domain/ledger"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/blobstore"
)

var doctor = auth.Principal{UserID: 1, Username: "doctor", Role: auth.RoleDoctor}

type env struct {
	clinic *clinical.Service
	ledger *ledger.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := clinicaltest.New()
	clinic := clinical.NewService(store.Stores(), store, blobstore.NewInMemoryStore(), zerolog.Nop())
	clinic.SetClock(func() time.Time { return time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC) })
	return &env{clinic: clinic, ledger: ledger.NewService(clinic.Stores(), zerolog.Nop())}
}

func (e *env) patient(t *testing.T, name string) *clinical.Patient {
	t.Helper()
	reg, err := e.clinic.RegisterPatient(context.Background(), doctor, clinical.PatientInput{
		Demographics: clinical.Demographics{FullName: name},
		Medical:      clinical.MedicalHistory{Diabetes: "Yes", Asthma: "No"},
	})
	if err != nil {
		t.Fatalf("RegisterPatient: %v", err)
	}
	return reg.Patient
}

func (e *env) visit(t *testing.T, patientID int64, dentistID *int64) *clinical.Visit {
	t.Helper()
	v, err := e.clinic.CreateVisit(context.Background(), doctor, clinical.VisitInput{PatientID: patientID, DentistID: dentistID}, nil)
	if err != nil {
		t.Fatalf("CreateVisit: %v", err)
	}
	return v
}

func (e *env) treat(t *testing.T, patientID, visitID int64, fee, paid float64) *clinical.TreatmentResult {
	t.Helper()
	res, err := e.clinic.CreateTreatment(context.Background(), doctor, clinical.TreatmentInput{
		PatientID: patientID, VisitID: visitID, Type: "Filling", Amount: fee, AmountPaid: paid,
	}, nil)
	if err != nil {
		t.Fatalf("CreateTreatment: %v", err)
	}
	return res
}

func TestCompute(t *testing.T) {
	b := ledger.Compute(
		[]*clinical.Treatment{{Amount: 1200.5}, {Amount: 300}},
		[]*clinical.Payment{{AmountPaid: 500}, {AmountPaid: 0.25}},
	)
	want := ledger.Balance{TotalFee: 1500.5, TotalPaid: 500.25, Remaining: 1000.25}
	if b != want {
		t.Errorf("got %+v, want %+v", b, want)
	}
	if got := ledger.Compute(nil, []*clinical.Payment{{AmountPaid: 50}}); got.Remaining != -50 {
		t.Errorf("overpayment should stay negative, got %v", got.Remaining)
	}
}

func TestOutstanding_ClampsEachPatient(t *testing.T) {
	fees := map[int64]float64{1: 100, 2: 100, 3: 0}
	paid := map[int64]float64{1: 150, 2: 0, 4: 30}
	if got := ledger.Outstanding(fees, paid); got != 100 {
		t.Errorf("outstanding = %v, want 100", got)
	}
	if got := ledger.Outstanding(nil, nil); got != 0 {
		t.Errorf("empty outstanding = %v", got)
	}
}

func TestPatientSummary_IsLive(t *testing.T) {
	e := newEnv(t)
	pt := e.patient(t, "Ali")
	v := e.visit(t, pt.ID, nil)
	e.treat(t, pt.ID, v.ID, 5000, 2000)
	e.treat(t, pt.ID, v.ID, 1000, 0)
	pay, err := e.clinic.RecordPayment(context.Background(), doctor, clinical.PaymentInput{PatientID: pt.ID, AmountPaid: 500})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	sum, err := e.ledger.PatientSummary(context.Background(), doctor, pt.ID)
	if err != nil {
		t.Fatalf("PatientSummary: %v", err)
	}
	if sum.Balance != (ledger.Balance{TotalFee: 6000, TotalPaid: 2500, Remaining: 3500}) {
		t.Errorf("balance = %+v", sum.Balance)
	}
	if len(sum.Treatments) != 2 || len(sum.Payments) != 3 || len(sum.Visits) != 1 || len(sum.Cases) != 2 {
		t.Errorf("unexpected summary sizes: %d treatments %d payments %d visits %d cases",
			len(sum.Treatments), len(sum.Payments), len(sum.Visits), len(sum.Cases))
	}
	if len(sum.MedicalFlags) != 1 || sum.MedicalFlags[0] != "diabetes" {
		t.Errorf("flags = %v", sum.MedicalFlags)
	}

	if err := e.clinic.DeletePayment(context.Background(), doctor, pay.ID); err != nil {
		t.Fatalf("DeletePayment: %v", err)
	}
	sum, _ = e.ledger.PatientSummary(context.Background(), doctor, pt.ID)
	if sum.Balance.Remaining != 4000 {
		t.Errorf("remaining after delete = %v, want 4000", sum.Balance.Remaining)
	}
}

func TestPatientSummary_FollowsTreatmentEdits(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.patient(t, "Ali")
	b := e.patient(t, "Bushra")
	va := e.visit(t, a.ID, nil)
	vb := e.visit(t, b.ID, nil)
	first := e.treat(t, a.ID, va.ID, 1000, 500)
	second := e.treat(t, a.ID, va.ID, 500, 100)
	e.treat(t, b.ID, vb.ID, 100, 0)

	if _, err := e.clinic.UpdateTreatment(ctx, doctor, first.Treatment.ID, clinical.TreatmentUpdate{Type: "Filling", Amount: 300}); err != nil {
		t.Fatalf("UpdateTreatment: %v", err)
	}
	sum, err := e.ledger.PatientSummary(ctx, doctor, a.ID)
	if err != nil {
		t.Fatalf("PatientSummary: %v", err)
	}
	if sum.Balance != (ledger.Balance{TotalFee: 800, TotalPaid: 600, Remaining: 200}) {
		t.Errorf("after fee edit: balance = %+v", sum.Balance)
	}
	// The snapshot taken when the second treatment was paid is not rewritten.
	for _, p := range sum.Payments {
		if p.ID == second.Payment.ID && p.RemainingBalance != 1000 {
			t.Errorf("snapshot = %v, want 1000", p.RemainingBalance)
		}
	}

	if err := e.clinic.DeleteTreatment(ctx, doctor, first.Treatment.ID); err != nil {
		t.Fatalf("DeleteTreatment: %v", err)
	}
	sum, _ = e.ledger.PatientSummary(ctx, doctor, a.ID)
	if sum.Balance != (ledger.Balance{TotalFee: 500, TotalPaid: 100, Remaining: 400}) {
		t.Errorf("after delete: balance = %+v", sum.Balance)
	}

	if _, err := e.clinic.RecordPayment(ctx, doctor, clinical.PaymentInput{PatientID: a.ID, AmountPaid: 450}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	sum, _ = e.ledger.PatientSummary(ctx, doctor, a.ID)
	if sum.Balance.Remaining != -50 {
		t.Errorf("overpaid remaining = %v, want -50", sum.Balance.Remaining)
	}
	d, err := e.ledger.Dashboard(ctx, doctor)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	want := ledger.Dashboard{TotalPatients: 2, TotalRevenue: 550, TotalOutstanding: 100}
	if *d != want {
		t.Errorf("dashboard = %+v, want %+v", *d, want)
	}
}

func TestPatientSummary_PatientSeesOnlyOwn(t *testing.T) {
	e := newEnv(t)
	a := e.patient(t, "Ali")
	b := e.patient(t, "Bushra")
	me := auth.Principal{Username: a.FileNo, Role: auth.RolePatient}

	if _, err := e.ledger.PatientSummary(context.Background(), me, a.ID); err != nil {
		t.Errorf("own summary: %v", err)
	}
	if _, err := e.ledger.PatientSummary(context.Background(), me, b.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("other summary: expected forbidden, got %v", err)
	}
	if _, err := e.ledger.PatientSummary(context.Background(), me, 999); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("unknown id: expected forbidden, got %v", err)
	}
	sum, err := e.ledger.MySummary(context.Background(), me)
	if err != nil || sum.Patient.ID != a.ID {
		t.Errorf("MySummary = %+v, %v", sum, err)
	}
	if _, err := e.ledger.MySummary(context.Background(), doctor); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("staff MySummary: expected forbidden, got %v", err)
	}
}

func TestVisitSummary(t *testing.T) {
	e := newEnv(t)
	d, err := e.clinic.RegisterDentist(context.Background(), doctor, clinical.DentistInput{Name: "Dr. Farah"})
	if err != nil {
		t.Fatalf("RegisterDentist: %v", err)
	}
	pt := e.patient(t, "Ali")
	v1 := e.visit(t, pt.ID, &d.ID)
	v2 := e.visit(t, pt.ID, nil)
	res := e.treat(t, pt.ID, v1.ID, 3000, 1000)
	e.treat(t, pt.ID, v2.ID, 800, 800)
	if _, err := e.clinic.RecordPayment(context.Background(), doctor, clinical.PaymentInput{
		PatientID: pt.ID, TreatmentID: &res.Treatment.ID, AmountPaid: 500,
	}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	// Not linked to a treatment, so not part of any visit.
	if _, err := e.clinic.RecordPayment(context.Background(), doctor, clinical.PaymentInput{PatientID: pt.ID, AmountPaid: 100}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	sum, err := e.ledger.VisitSummary(context.Background(), doctor, v1.ID)
	if err != nil {
		t.Fatalf("VisitSummary: %v", err)
	}
	if sum.Balance != (ledger.Balance{TotalFee: 3000, TotalPaid: 1500, Remaining: 1500}) {
		t.Errorf("balance = %+v", sum.Balance)
	}
	if sum.Visit.Provider != "Dr. Farah" || sum.Prescription != nil {
		t.Errorf("unexpected visit %+v", sum.Visit)
	}

	if err := e.clinic.DeleteDentist(context.Background(), doctor, d.ID); err != nil {
		t.Fatalf("DeleteDentist: %v", err)
	}
	sum, _ = e.ledger.VisitSummary(context.Background(), doctor, v1.ID)
	if sum.Visit.Provider != clinical.UnknownProvider {
		t.Errorf("provider = %q", sum.Visit.Provider)
	}
}

func TestTreatmentSummary(t *testing.T) {
	e := newEnv(t)
	pt := e.patient(t, "Ali")
	v := e.visit(t, pt.ID, nil)
	res := e.treat(t, pt.ID, v.ID, 2000, 2500)
	sum, err := e.ledger.TreatmentSummary(context.Background(), doctor, res.Treatment.ID)
	if err != nil {
		t.Fatalf("TreatmentSummary: %v", err)
	}
	if sum.Balance.Remaining != -500 || len(sum.Payments) != 1 {
		t.Errorf("unexpected summary %+v", sum.Balance)
	}
	if _, err := e.ledger.TreatmentSummary(context.Background(), doctor, 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDashboard(t *testing.T) {
	e := newEnv(t)
	a := e.patient(t, "Ali")
	b := e.patient(t, "Bushra")
	e.patient(t, "Chand")
	va := e.visit(t, a.ID, nil)
	vb := e.visit(t, b.ID, nil)
	e.treat(t, a.ID, va.ID, 100, 150)
	e.treat(t, b.ID, vb.ID, 100, 0)

	d, err := e.ledger.Dashboard(context.Background(), doctor)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	want := ledger.Dashboard{TotalPatients: 3, TotalRevenue: 150, TotalOutstanding: 100}
	if *d != want {
		t.Errorf("got %+v, want %+v", *d, want)
	}
	if _, err := e.ledger.Dashboard(context.Background(), auth.Principal{Username: a.FileNo, Role: auth.RolePatient}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("patient dashboard: expected forbidden, got %v", err)
	}
}

func TestHandler_Dashboard(t *testing.T) {
	env := newEnv(t)
	h := ledger.NewHandler(env.ledger)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), doctor))
	rec := httptest.NewRecorder()

	if err := h.Dashboard(echo.New().NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_PatientSummary_InvalidID(t *testing.T) {
	env := newEnv(t)
	h := ledger.NewHandler(env.ledger)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), doctor))
	c := echo.New().NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("0")

	err := h.PatientSummary(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
