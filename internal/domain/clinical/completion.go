package clinical

import (
	"strings"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
)

// CompletionTarget names the record kinds that can be marked complete.
type CompletionTarget int

const (
	CompleteCase CompletionTarget = iota + 1
	CompleteTreatment
	CompleteFollowUp
)

func (t CompletionTarget) String() string {
	switch t {
	case CompleteCase:
		return "case"
	case CompleteTreatment:
		return "treatment"
	case CompleteFollowUp:
		return "followup"
	}
	return "unknown"
}

// ParseCompletionTarget maps a request value to a target. Unknown values
// are a validation failure.
func ParseCompletionTarget(s string) (CompletionTarget, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "case":
		return CompleteCase, nil
	case "treatment":
		return CompleteTreatment, nil
	case "followup", "follow-up":
		return CompleteFollowUp, nil
	}
	return 0, apperr.ValidationField("type", "must be one of case, treatment, followup")
}
