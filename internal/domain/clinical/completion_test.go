package clinical

import (
	"errors"
	"testing"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
)

func TestParseCompletionTarget(t *testing.T) {
	tests := map[string]CompletionTarget{
		"case":      CompleteCase,
		"Treatment": CompleteTreatment,
		"followup":  CompleteFollowUp,
		"follow-up": CompleteFollowUp,
		" CASE ":    CompleteCase,
	}
	for in, want := range tests {
		got, err := ParseCompletionTarget(in)
		if err != nil {
			t.Errorf("ParseCompletionTarget(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseCompletionTarget(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseCompletionTarget_Unknown(t *testing.T) {
	for _, in := range []string{"", "visit", "payment"} {
		_, err := ParseCompletionTarget(in)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("ParseCompletionTarget(%q) error = %v, want validation", in, err)
		}
	}
}

func TestCompletionTargetString(t *testing.T) {
	if CompleteFollowUp.String() != "followup" {
		t.Errorf("got %q", CompleteFollowUp.String())
	}
	if CompletionTarget(0).String() != "unknown" {
		t.Errorf("got %q", CompletionTarget(0).String())
	}
}

func TestStatusFor(t *testing.T) {
	if statusFor("2025-02-01") != StatusOngoing {
		t.Error("next appointment should mean ongoing")
	}
	if statusFor("") != StatusCompleted {
		t.Error("no next appointment should mean completed")
	}
}

func TestPrescriptionItemBlank(t *testing.T) {
	if !(PrescriptionItem{DrugName: "  ", Notes: " "}).trimmed().blank() {
		t.Error("whitespace-only row should be blank")
	}
	if (PrescriptionItem{Strength: "500mg"}).trimmed().blank() {
		t.Error("row with strength is not blank")
	}
}
