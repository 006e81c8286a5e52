package ledger

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/dentaleditapp/tdeclinic-emr/internal/domain/clinical"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
)

type Service struct {
	st     clinical.Stores
	logger zerolog.Logger
}

func NewService(st clinical.Stores, logger zerolog.Logger) *Service {
	return &Service{st: st, logger: logger.With().Str("component", "ledger").Logger()}
}

// canRead lets staff read any patient and a patient only its own file.
func canRead(p auth.Principal, pt *clinical.Patient) error {
	if err := auth.Require(p, auth.RoleDoctor, auth.RoleAssistant, auth.RolePatient); err != nil {
		return err
	}
	if p.IsStaff() || (pt.FileNo != "" && pt.FileNo == p.Username) {
		return nil
	}
	return apperr.Forbidden("record belongs to another patient")
}

func (s *Service) provider(ctx context.Context, id *int64) string {
	name, err := clinical.ProviderName(ctx, s.st.Dentists, id)
	if err != nil {
		s.logger.Warn().Err(err).Int64("dentist_id", *id).Msg("resolve provider")
	}
	return name
}

// PatientSummary returns everything filed under a patient with the
// balance computed from scratch.
func (s *Service) PatientSummary(ctx context.Context, p auth.Principal, patientID int64) (*PatientSummary, error) {
	if err := auth.Require(p, auth.RoleDoctor, auth.RoleAssistant, auth.RolePatient); err != nil {
		return nil, err
	}
	pt, err := s.st.Patients.GetByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) && !p.IsStaff() {
			return nil, apperr.Forbidden("record belongs to another patient")
		}
		return nil, err
	}
	if err := canRead(p, pt); err != nil {
		return nil, err
	}
	return s.summarize(ctx, pt)
}

// MySummary is PatientSummary for the patient logged in as p.
func (s *Service) MySummary(ctx context.Context, p auth.Principal) (*PatientSummary, error) {
	if err := auth.Require(p, auth.RolePatient); err != nil {
		return nil, err
	}
	pt, err := s.st.Patients.GetByFileNo(ctx, p.Username)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, pt)
}

func (s *Service) summarize(ctx context.Context, pt *clinical.Patient) (*PatientSummary, error) {
	cases, err := s.st.Cases.ListByPatient(ctx, pt.ID)
	if err != nil {
		return nil, err
	}
	visits, err := s.st.Visits.ListByPatient(ctx, pt.ID)
	if err != nil {
		return nil, err
	}
	treatments, err := s.st.Treatments.ListByPatient(ctx, pt.ID)
	if err != nil {
		return nil, err
	}
	payments, err := s.st.Payments.ListByPatient(ctx, pt.ID)
	if err != nil {
		return nil, err
	}
	rads, err := s.st.Radiographs.ListByPatient(ctx, pt.ID)
	if err != nil {
		return nil, err
	}

	lines := make([]*VisitLine, 0, len(visits))
	for _, v := range visits {
		lines = append(lines, &VisitLine{Visit: v, Provider: s.provider(ctx, v.DentistID)})
	}
	return &PatientSummary{
		Patient:      pt,
		MedicalFlags: pt.Medical.Flags(),
		Cases:        cases,
		Visits:       lines,
		Treatments:   treatments,
		Payments:     payments,
		Radiographs:  rads,
		Balance:      Compute(treatments, payments),
	}, nil
}

// VisitSummary returns the visit's treatments and the payments linked to
// them. Payments not tied to one of those treatments are left out.
func (s *Service) VisitSummary(ctx context.Context, p auth.Principal, visitID int64) (*VisitSummary, error) {
	if err := auth.Require(p, auth.RoleDoctor, auth.RoleAssistant, auth.RolePatient); err != nil {
		return nil, err
	}
	v, err := s.st.Visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	pt, err := s.st.Patients.GetByID(ctx, v.PatientID)
	if err != nil {
		return nil, err
	}
	if err := canRead(p, pt); err != nil {
		return nil, err
	}

	treatments, err := s.st.Treatments.ListByVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}
	var payments []*clinical.Payment
	for _, t := range treatments {
		ps, err := s.st.Payments.ListByTreatment(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		payments = append(payments, ps...)
	}
	out := &VisitSummary{
		Patient:    pt,
		Visit:      &VisitLine{Visit: v, Provider: s.provider(ctx, v.DentistID)},
		Treatments: treatments,
		Payments:   payments,
		Balance:    Compute(treatments, payments),
	}
	rx, err := s.st.Prescriptions.GetByVisit(ctx, visitID)
	switch {
	case err == nil:
		out.Prescription = rx
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}
	return out, nil
}

// TreatmentSummary returns a treatment's fee against its payments.
func (s *Service) TreatmentSummary(ctx context.Context, p auth.Principal, treatmentID int64) (*TreatmentSummary, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	t, err := s.st.Treatments.GetByID(ctx, treatmentID)
	if err != nil {
		return nil, err
	}
	payments, err := s.st.Payments.ListByTreatment(ctx, treatmentID)
	if err != nil {
		return nil, err
	}
	fus, err := s.st.FollowUps.ListByTreatment(ctx, treatmentID)
	if err != nil {
		return nil, err
	}
	return &TreatmentSummary{
		Treatment: t,
		Payments:  payments,
		FollowUps: fus,
		Balance:   Compute([]*clinical.Treatment{t}, payments),
	}, nil
}

// Dashboard reports the patient count, all payments received and the
// clamped outstanding total.
func (s *Service) Dashboard(ctx context.Context, p auth.Principal) (*Dashboard, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	_, count, err := s.st.Patients.List(ctx, "", 1, 0)
	if err != nil {
		return nil, err
	}
	fees, err := s.st.Treatments.FeeTotals(ctx)
	if err != nil {
		return nil, err
	}
	paid, err := s.st.Payments.PaidTotals(ctx)
	if err != nil {
		return nil, err
	}
	var revenue float64
	for _, v := range paid {
		revenue += v
	}
	return &Dashboard{
		TotalPatients:    count,
		TotalRevenue:     round2(revenue),
		TotalOutstanding: Outstanding(fees, paid),
	}, nil
}
