package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dentaleditapp/tdeclinic-emr/internal/config"
	"github.com/dentaleditapp/tdeclinic-emr/internal/domain/reference"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
)

func testConfig(env string) *config.Config {
	return &config.Config{
		Env:                env,
		JWTSigningKey:      "0123456789abcdef0123456789abcdef",
		JWTIssuer:          "test",
		TokenTTL:           time.Hour,
		TempPasswordLength: 6,
		MaxUploadBytes:     1 << 20,
		UploadDir:          "uploads",
		CORSOrigins:        []string{"http://localhost:3000"},
	}
}

func okHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func serve(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestNewEcho_ProductionAuth(t *testing.T) {
	cfg := testConfig("production")
	tokens := newTokens(cfg)
	e := newEcho(cfg, zerolog.Nop(), tokens, okHealth, reference.NewHandler(reference.MustNew()))

	if rec := serve(e, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("/health: expected 200, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Errorf("/metrics: expected 200, got %d", rec.Code)
	}

	rec := serve(e, http.MethodGet, "/api/v1/reference/canals/UR6", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "missing authorization header") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}

	token, _, err := tokens.Issue(auth.Principal{UserID: 1, Username: "doctor", Role: auth.RoleDoctor})
	if err != nil {
		t.Fatal(err)
	}
	rec = serve(e, http.MethodGet, "/api/v1/reference/canals/UR6", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("doctor: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "MB2") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}

	patientToken, _, _ := tokens.Issue(auth.Principal{UserID: 7, Username: "10001", Role: auth.RolePatient})
	if rec := serve(e, http.MethodGet, "/api/v1/reference/canals/UR6", patientToken); rec.Code != http.StatusForbidden {
		t.Errorf("patient: expected 403, got %d", rec.Code)
	}
}

func TestNewEcho_DevAuthActsAsDoctor(t *testing.T) {
	cfg := testConfig("development")
	e := newEcho(cfg, zerolog.Nop(), newTokens(cfg), okHealth, reference.NewHandler(reference.MustNew()))

	if rec := serve(e, http.MethodGet, "/api/v1/reference/risk", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestNewEcho_DomainErrorsRendered(t *testing.T) {
	cfg := testConfig("development")
	e := newEcho(cfg, zerolog.Nop(), newTokens(cfg), okHealth, reference.NewHandler(reference.MustNew()))

	rec := serve(e, http.MethodGet, "/api/v1/reference/risk/Skeletal", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "risk system not found") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestRateLimitConfig(t *testing.T) {
	cfg := testConfig("production")
	rl := rateLimitConfig(cfg)
	if rl.RequestsPerSecond != 20 || rl.BurstSize != 40 {
		t.Errorf("defaults not applied: %+v", rl)
	}

	cfg.RateLimitRPS = 5
	cfg.RateLimitBurst = 10
	rl = rateLimitConfig(cfg)
	if rl.RequestsPerSecond != 5 || rl.BurstSize != 10 || rl.IdleTTL == 0 {
		t.Errorf("overrides not applied: %+v", rl)
	}
}

func TestNewLogger_Level(t *testing.T) {
	cfg := testConfig("production")
	cfg.LogLevel = "warn"
	if got := newLogger(cfg).GetLevel(); got != zerolog.WarnLevel {
		t.Errorf("level = %v", got)
	}
}
