package auth

import (
	"errors"
	"testing"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
)

func TestRequire(t *testing.T) {
	if err := RequireStaff(Principal{Role: RoleDoctor}); err != nil {
		t.Errorf("doctor should pass: %v", err)
	}
	if err := RequireStaff(Principal{Role: RolePatient}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("patient should be forbidden, got %v", err)
	}
	if err := RequireStaff(Principal{}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("anonymous should be unauthorized, got %v", err)
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("assistant"); err != nil || r != RoleAssistant {
		t.Errorf("ParseRole(assistant) = %v, %v", r, err)
	}
	if _, err := ParseRole("admin"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
