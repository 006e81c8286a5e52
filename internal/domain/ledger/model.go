// Package ledger derives balances from the clinical records. Nothing here
// is stored: every figure is recomputed from treatments and payments on
// read, and the remaining_balance snapshot kept on payments is ignored.
package ledger

import (
	"math"

	"github.com/dentaleditapp/tdeclinic-emr/internal/domain/clinical"
)

// Balance is fee against payments. Remaining may be negative when a
// patient paid ahead.
type Balance struct {
	TotalFee  float64 `json:"total_fee"`
	TotalPaid float64 `json:"total_paid"`
	Remaining float64 `json:"remaining"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func newBalance(fee, paid float64) Balance {
	fee, paid = round2(fee), round2(paid)
	return Balance{TotalFee: fee, TotalPaid: paid, Remaining: round2(fee - paid)}
}

// Compute sums the treatment amounts and the payments made.
func Compute(treatments []*clinical.Treatment, payments []*clinical.Payment) Balance {
	var fee, paid float64
	for _, t := range treatments {
		fee += t.Amount
	}
	for _, p := range payments {
		paid += p.AmountPaid
	}
	return newBalance(fee, paid)
}

// Outstanding is the amount still owed across patients. Each patient's
// remaining balance counts only when positive, so credit held by one
// patient never offsets another's debt.
func Outstanding(fees, paid map[int64]float64) float64 {
	var total float64
	for id, fee := range fees {
		if r := fee - paid[id]; r > 0 {
			total += r
		}
	}
	return round2(total)
}

// PatientSummary is the full record of one patient with live totals.
type PatientSummary struct {
	Patient      *clinical.Patient      `json:"patient"`
	MedicalFlags []string               `json:"medical_flags"`
	Cases        []*clinical.Case       `json:"cases"`
	Visits       []*VisitLine           `json:"visits"`
	Treatments   []*clinical.Treatment  `json:"treatments"`
	Payments     []*clinical.Payment    `json:"payments"`
	Radiographs  []*clinical.Radiograph `json:"radiographs"`
	Balance      Balance                `json:"balance"`
}

// VisitLine is a visit with its provider resolved for display.
type VisitLine struct {
	*clinical.Visit
	Provider string `json:"provider,omitempty"`
}

// VisitSummary is the invoice view of one visit: its treatments and the
// payments linked to them.
type VisitSummary struct {
	Patient      *clinical.Patient      `json:"patient"`
	Visit        *VisitLine             `json:"visit"`
	Treatments   []*clinical.Treatment  `json:"treatments"`
	Payments     []*clinical.Payment    `json:"payments"`
	Prescription *clinical.Prescription `json:"prescription,omitempty"`
	Balance      Balance                `json:"balance"`
}

// TreatmentSummary is one treatment against the payments referencing it.
type TreatmentSummary struct {
	Treatment *clinical.Treatment  `json:"treatment"`
	Payments  []*clinical.Payment  `json:"payments"`
	FollowUps []*clinical.FollowUp `json:"followups"`
	Balance   Balance              `json:"balance"`
}

// Dashboard holds the clinic-wide figures shown to staff.
type Dashboard struct {
	TotalPatients    int     `json:"total_patients"`
	TotalRevenue     float64 `json:"total_revenue"`
	TotalOutstanding float64 `json:"total_outstanding"`
}
