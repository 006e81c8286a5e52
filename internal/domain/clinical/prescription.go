package clinical

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
)

// SaveVisitPrescription replaces the visit's prescription with notes and
// items. Rows left entirely blank are dropped; any other row needs a drug
// name.
func (s *Service) SaveVisitPrescription(ctx context.Context, p auth.Principal, visitID int64, notes string, items []PrescriptionItem) (*Prescription, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	kept := make([]PrescriptionItem, 0, len(items))
	for i, it := range items {
		it = it.trimmed()
		if it.blank() {
			continue
		}
		if it.DrugName == "" {
			return nil, apperr.ValidationField(fmt.Sprintf("items[%d].drug_name", i), "is required")
		}
		kept = append(kept, it)
	}

	rx := &Prescription{
		VisitID:   visitID,
		Notes:     strings.TrimSpace(notes),
		Items:     kept,
		UpdatedAt: s.now(),
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.st.Visits.GetByID(ctx, visitID); err != nil {
			return err
		}
		return s.st.Prescriptions.Save(ctx, rx)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("visit_id", visitID).Int("items", len(kept)).Str("by", p.Username).Msg("prescription saved")
	return rx, nil
}

// GetVisitPrescription returns the visit's prescription, or an empty one
// when none was written yet.
func (s *Service) GetVisitPrescription(ctx context.Context, p auth.Principal, visitID int64) (*Prescription, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	if _, err := s.st.Visits.GetByID(ctx, visitID); err != nil {
		return nil, err
	}
	rx, err := s.st.Prescriptions.GetByVisit(ctx, visitID)
	if errors.Is(err, apperr.ErrNotFound) {
		return &Prescription{VisitID: visitID, Items: []PrescriptionItem{}}, nil
	}
	return rx, err
}
