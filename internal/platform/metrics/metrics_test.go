package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCreated(t *testing.T) {
	before := testutil.ToFloat64(recordsCreated.WithLabelValues("case"))
	RecordCreated("case")
	if got := testutil.ToFloat64(recordsCreated.WithLabelValues("case")); got != before+1 {
		t.Errorf("expected %v, got %v", before+1, got)
	}
}

func TestRecordDeleted_IgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(recordsDeleted.WithLabelValues("payment"))
	RecordDeleted("payment", 0)
	RecordDeleted("payment", 3)
	if got := testutil.ToFloat64(recordsDeleted.WithLabelValues("payment")); got != before+3 {
		t.Errorf("expected %v, got %v", before+3, got)
	}
}

func TestPaymentRecorded_IgnoresNonPositive(t *testing.T) {
	before := testutil.ToFloat64(paymentsAmount)
	PaymentRecorded(-5)
	PaymentRecorded(250)
	if got := testutil.ToFloat64(paymentsAmount); got != before+250 {
		t.Errorf("expected %v, got %v", before+250, got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveHTTP(http.MethodGet, "/api/v1/patients", http.StatusOK, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "clinic_http_requests_total") {
		t.Error("expected clinic_http_requests_total in exposition")
	}
}
