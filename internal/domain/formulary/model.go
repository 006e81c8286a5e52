package formulary

import (
	"strings"
	"time"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
)

// Medicine is one entry in the clinic's prescribing library.
type Medicine struct {
	ID         int64     `json:"id"`
	Category   string    `json:"category"`
	DrugName   string    `json:"drug_name"`
	DosageForm string    `json:"dosage_form"`
	Strength   string    `json:"strength"`
	Quantity   string    `json:"quantity"`
	Frequency  string    `json:"frequency"`
	Duration   string    `json:"duration"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
}

// MedicineInput carries the editable fields of a Medicine.
type MedicineInput struct {
	Category   string `json:"category" yaml:"category"`
	DrugName   string `json:"drug_name" yaml:"drug_name"`
	DosageForm string `json:"dosage_form" yaml:"dosage_form"`
	Strength   string `json:"strength" yaml:"strength"`
	Quantity   string `json:"quantity" yaml:"quantity"`
	Frequency  string `json:"frequency" yaml:"frequency"`
	Duration   string `json:"duration" yaml:"duration"`
	Notes      string `json:"notes" yaml:"notes"`
}

func (in MedicineInput) normalized() MedicineInput {
	return MedicineInput{
		Category:   strings.TrimSpace(in.Category),
		DrugName:   strings.TrimSpace(in.DrugName),
		DosageForm: strings.TrimSpace(in.DosageForm),
		Strength:   strings.TrimSpace(in.Strength),
		Quantity:   strings.TrimSpace(in.Quantity),
		Frequency:  strings.TrimSpace(in.Frequency),
		Duration:   strings.TrimSpace(in.Duration),
		Notes:      strings.TrimSpace(in.Notes),
	}
}

// Validate trims the input and checks the drug name.
func (in MedicineInput) Validate() (MedicineInput, error) {
	n := in.normalized()
	if n.DrugName == "" {
		return n, apperr.ValidationField("drug_name", "is required")
	}
	return n, nil
}

func (m *Medicine) apply(in MedicineInput) {
	m.Category = in.Category
	m.DrugName = in.DrugName
	m.DosageForm = in.DosageForm
	m.Strength = in.Strength
	m.Quantity = in.Quantity
	m.Frequency = in.Frequency
	m.Duration = in.Duration
	m.Notes = in.Notes
}

// LoadResult reports what LoadDefaults did.
type LoadResult struct {
	Inserted int `json:"inserted"`
	Existing int `json:"existing"`
}
