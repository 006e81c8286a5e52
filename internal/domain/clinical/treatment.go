package clinical

import (
	"context"
	"errors"
	"strings"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/metrics"
)

// TreatmentInput is everything the treatment form submits. The case is
// resolved as ManualCaseID, else SelectedCaseID, else a generated id.
type TreatmentInput struct {
	PatientID       int64            `json:"patient_id"`
	VisitID         int64            `json:"visit_id"`
	SelectedCaseID  string           `json:"selected_case_id"`
	ManualCaseID    string           `json:"manual_case_id"`
	ParentID        *int64           `json:"parent_id,omitempty"`
	DentistID       *int64           `json:"dentist_id,omitempty"`
	Doctor          string           `json:"doctor"`
	Category        string           `json:"category"`
	Type            string           `json:"treatment_type"`
	ToothNumber     string           `json:"tooth_number"`
	MultiTooth      string           `json:"multi_tooth"`
	Date            string           `json:"date"`
	Notes           string           `json:"notes"`
	PostOp          string           `json:"post_op"`
	Amount          float64          `json:"amount"`
	AmountPaid      float64          `json:"amount_paid"`
	NextAppointment string           `json:"next_appointment"`
	Details         ProcedureDetails `json:"details"`
}

// TreatmentResult is what CreateTreatment wrote.
type TreatmentResult struct {
	Treatment   *Treatment  `json:"treatment"`
	Case        *Case       `json:"case"`
	CaseCreated bool        `json:"case_created"`
	Payment     *Payment    `json:"payment"`
	Radiograph  *Radiograph `json:"radiograph,omitempty"`
}

func validateTreatmentFields(date, next string, amount float64) error {
	if err := checkDate("date", date); err != nil {
		return err
	}
	if err := checkDate("next_appointment", next); err != nil {
		return err
	}
	if amount < 0 {
		return apperr.ValidationField("amount", "must not be negative")
	}
	return nil
}

// CreateTreatment records a procedure within a visit. In one transaction it
// resolves or opens the case, stores the treatment, records the payment
// taken with it and files the optional attachment as a radiograph.
func (s *Service) CreateTreatment(ctx context.Context, p auth.Principal, in TreatmentInput, att *Upload) (*TreatmentResult, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	if in.PatientID == 0 {
		return nil, apperr.ValidationField("patient_id", "is required")
	}
	if in.VisitID == 0 {
		return nil, apperr.ValidationField("visit_id", "select a visit for this treatment")
	}
	in.NextAppointment = strings.TrimSpace(in.NextAppointment)
	if err := validateTreatmentFields(in.Date, in.NextAppointment, in.Amount); err != nil {
		return nil, err
	}
	if in.AmountPaid < 0 {
		return nil, apperr.ValidationField("amount_paid", "must not be negative")
	}
	if err := checkOptionalUpload(att); err != nil {
		return nil, err
	}

	now := s.now()
	res := &TreatmentResult{}
	err := s.mutate(ctx, func(ctx context.Context, pf *pendingFiles) error {
		if _, err := s.st.Patients.GetByID(ctx, in.PatientID); err != nil {
			return err
		}
		v, err := s.st.Visits.GetByID(ctx, in.VisitID)
		if err != nil {
			return err
		}
		if v.PatientID != in.PatientID {
			return apperr.ValidationField("visit_id", "belongs to another patient")
		}
		if in.ParentID != nil {
			parent, err := s.st.Treatments.GetByID(ctx, *in.ParentID)
			if err != nil {
				return err
			}
			if parent.PatientID != in.PatientID {
				return apperr.ValidationField("parent_id", "belongs to another patient")
			}
		}
		doctor := strings.TrimSpace(in.Doctor)
		if in.DentistID != nil {
			d, err := s.st.Dentists.GetByID(ctx, *in.DentistID)
			if err != nil {
				return err
			}
			if doctor == "" {
				doctor = d.Name
			}
		}

		if res.Case, res.CaseCreated, err = s.resolveCase(ctx, in, v); err != nil {
			return err
		}

		t := &Treatment{
			PatientID:       in.PatientID,
			VisitID:         in.VisitID,
			CaseRef:         &res.Case.ID,
			ParentID:        in.ParentID,
			DentistID:       in.DentistID,
			Doctor:          doctor,
			Category:        strings.TrimSpace(in.Category),
			Type:            strings.TrimSpace(in.Type),
			ToothNumber:     strings.TrimSpace(in.ToothNumber),
			MultiTooth:      strings.TrimSpace(in.MultiTooth),
			Date:            in.Date,
			Notes:           in.Notes,
			PostOp:          in.PostOp,
			Amount:          in.Amount,
			NextAppointment: in.NextAppointment,
			Status:          statusFor(in.NextAppointment),
			Details:         in.Details,
			CreatedAt:       now,
		}
		if t.Date == "" {
			t.Date = now.Format(DateLayout)
		}
		if att != nil {
			if t.Attachment, err = s.storeUpload(ctx, pf, att); err != nil {
				return err
			}
		}
		if err := s.st.Treatments.Create(ctx, t); err != nil {
			return err
		}
		res.Treatment = t

		if res.Payment, err = s.insertPayment(ctx, in.PatientID, t, t.Date, in.AmountPaid); err != nil {
			return err
		}

		if t.Attachment != "" {
			r := &Radiograph{
				PatientID:   in.PatientID,
				TreatmentID: &t.ID,
				CaseRef:     t.CaseRef,
				Filename:    t.Attachment,
				UploadedBy:  p.Username,
				UploadedAt:  now,
			}
			if err := s.st.Radiographs.Create(ctx, r); err != nil {
				return err
			}
			res.Radiograph = r
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.CaseCreated {
		metrics.RecordCreated("case")
	}
	metrics.RecordCreated("treatment")
	metrics.RecordCreated("payment")
	metrics.PaymentRecorded(in.AmountPaid)
	s.logger.Info().Int64("treatment_id", res.Treatment.ID).Int64("patient_id", in.PatientID).
		Str("case_id", res.Case.CaseID).Str("by", p.Username).Msg("treatment recorded")
	return res, nil
}

// resolveCase returns the case a new treatment belongs to, opening it when
// the resolved case id does not exist yet.
func (s *Service) resolveCase(ctx context.Context, in TreatmentInput, v *Visit) (*Case, bool, error) {
	code := strings.TrimSpace(in.ManualCaseID)
	if code == "" {
		code = strings.TrimSpace(in.SelectedCaseID)
	}
	if code != "" {
		existing, err := s.st.Cases.GetByCaseID(ctx, code)
		switch {
		case err == nil:
			if existing.PatientID != in.PatientID {
				return nil, false, apperr.ValidationField("case_id", "belongs to another patient")
			}
			return existing, false, nil
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, false, err
		}
	}

	c := &Case{
		CaseID:         code,
		PatientID:      in.PatientID,
		Title:          strings.TrimSpace(in.Type),
		ChiefComplaint: v.ChiefComplaint,
		StartDate:      in.Date,
		Status:         CaseActive,
		CreatedAt:      s.now(),
	}
	if c.StartDate == "" {
		c.StartDate = s.today()
	}
	if err := s.insertCase(ctx, c); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// insertPayment stores a payment with the patient's balance before it was
// applied as the snapshot.
func (s *Service) insertPayment(ctx context.Context, patientID int64, t *Treatment, date string, paid float64) (*Payment, error) {
	fees, err := s.st.Treatments.SumAmountByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	prior, err := s.st.Payments.SumPaidByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	pay := &Payment{
		PatientID:        patientID,
		Date:             date,
		AmountPaid:       paid,
		RemainingBalance: fees - prior,
		CreatedAt:        s.now(),
	}
	if t != nil {
		pay.TreatmentID = &t.ID
		pay.CaseRef = t.CaseRef
		pay.TreatmentFee = t.Amount
	}
	if err := s.st.Payments.Create(ctx, pay); err != nil {
		return nil, err
	}
	return pay, nil
}

// TreatmentUpdate replaces the editable fields of a treatment. Status is
// derived again from NextAppointment.
type TreatmentUpdate struct {
	Doctor          string           `json:"doctor"`
	Category        string           `json:"category"`
	Type            string           `json:"treatment_type"`
	ToothNumber     string           `json:"tooth_number"`
	MultiTooth      string           `json:"multi_tooth"`
	Date            string           `json:"date"`
	Notes           string           `json:"notes"`
	PostOp          string           `json:"post_op"`
	Amount          float64          `json:"amount"`
	NextAppointment string           `json:"next_appointment"`
	Details         ProcedureDetails `json:"details"`
}

func (s *Service) UpdateTreatment(ctx context.Context, p auth.Principal, id int64, upd TreatmentUpdate) (*Treatment, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	upd.NextAppointment = strings.TrimSpace(upd.NextAppointment)
	if err := validateTreatmentFields(upd.Date, upd.NextAppointment, upd.Amount); err != nil {
		return nil, err
	}

	var t *Treatment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if t, err = s.st.Treatments.GetByID(ctx, id); err != nil {
			return err
		}
		t.Doctor = strings.TrimSpace(upd.Doctor)
		t.Category = strings.TrimSpace(upd.Category)
		t.Type = strings.TrimSpace(upd.Type)
		t.ToothNumber = strings.TrimSpace(upd.ToothNumber)
		t.MultiTooth = strings.TrimSpace(upd.MultiTooth)
		if upd.Date != "" {
			t.Date = upd.Date
		}
		t.Notes = upd.Notes
		t.PostOp = upd.PostOp
		t.Amount = upd.Amount
		t.NextAppointment = upd.NextAppointment
		t.Status = statusFor(upd.NextAppointment)
		t.Details = upd.Details
		return s.st.Treatments.Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) GetTreatment(ctx context.Context, p auth.Principal, id int64) (*Treatment, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	return s.st.Treatments.GetByID(ctx, id)
}

// -- Payments --

type PaymentInput struct {
	PatientID   int64   `json:"patient_id"`
	TreatmentID *int64  `json:"treatment_id,omitempty"`
	Date        string  `json:"date"`
	AmountPaid  float64 `json:"amount_paid"`
}

func (s *Service) RecordPayment(ctx context.Context, p auth.Principal, in PaymentInput) (*Payment, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	if in.PatientID == 0 {
		return nil, apperr.ValidationField("patient_id", "is required")
	}
	if in.AmountPaid <= 0 {
		return nil, apperr.ValidationField("amount_paid", "must be greater than zero")
	}
	if err := checkDate("date", in.Date); err != nil {
		return nil, err
	}
	date := in.Date
	if date == "" {
		date = s.today()
	}

	var pay *Payment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.st.Patients.GetByID(ctx, in.PatientID); err != nil {
			return err
		}
		var t *Treatment
		if in.TreatmentID != nil {
			var err error
			if t, err = s.st.Treatments.GetByID(ctx, *in.TreatmentID); err != nil {
				return err
			}
			if t.PatientID != in.PatientID {
				return apperr.ValidationField("treatment_id", "belongs to another patient")
			}
		}
		var err error
		pay, err = s.insertPayment(ctx, in.PatientID, t, date, in.AmountPaid)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordCreated("payment")
	metrics.PaymentRecorded(in.AmountPaid)
	return pay, nil
}

// -- Follow-ups --

type FollowUpInput struct {
	TreatmentID           int64  `json:"treatment_id"`
	Date                  string `json:"date"`
	Notes                 string `json:"notes"`
	Status                string `json:"status"`
	NextAppointment       string `json:"next_appointment"`
	MarkTreatmentComplete bool   `json:"mark_treatment_complete"`
}

// AddFollowUp stores a follow-up and updates its treatment: marking it
// complete clears the treatment's next appointment, otherwise an ongoing
// follow-up with a next appointment overwrites the treatment's.
func (s *Service) AddFollowUp(ctx context.Context, p auth.Principal, in FollowUpInput, att *Upload) (*FollowUp, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	if in.TreatmentID == 0 {
		return nil, apperr.ValidationField("treatment_id", "is required")
	}
	notes := strings.TrimSpace(in.Notes)
	if notes == "" {
		return nil, apperr.ValidationField("notes", "is required")
	}
	status := StatusOngoing
	if in.Status != "" {
		var ok bool
		if status, ok = ParseStatus(in.Status); !ok {
			return nil, apperr.ValidationField("status", "must be Ongoing or Completed")
		}
	}
	next := strings.TrimSpace(in.NextAppointment)
	if err := checkDate("date", in.Date); err != nil {
		return nil, err
	}
	if err := checkDate("next_appointment", next); err != nil {
		return nil, err
	}
	if err := checkOptionalUpload(att); err != nil {
		return nil, err
	}

	f := &FollowUp{
		TreatmentID: in.TreatmentID,
		Date:        in.Date,
		Notes:       notes,
		Status:      status,
		CreatedAt:   s.now(),
	}
	if f.Date == "" {
		f.Date = s.today()
	}
	if status == StatusOngoing {
		f.NextAppointment = next
	}

	err := s.mutate(ctx, func(ctx context.Context, pf *pendingFiles) error {
		t, err := s.st.Treatments.GetByID(ctx, in.TreatmentID)
		if err != nil {
			return err
		}
		if att != nil {
			if f.Attachment, err = s.storeUpload(ctx, pf, att); err != nil {
				return err
			}
		}
		if err := s.st.FollowUps.Create(ctx, f); err != nil {
			return err
		}

		switch {
		case in.MarkTreatmentComplete:
			t.Status = StatusCompleted
			t.NextAppointment = ""
		case f.Status == StatusOngoing && f.NextAppointment != "":
			t.NextAppointment = f.NextAppointment
		default:
			return nil
		}
		return s.st.Treatments.Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordCreated("followup")
	return f, nil
}

func (s *Service) ListFollowUps(ctx context.Context, p auth.Principal, treatmentID int64) ([]*FollowUp, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	return s.st.FollowUps.ListByTreatment(ctx, treatmentID)
}

// MarkComplete moves a case, treatment or follow-up to Completed.
func (s *Service) MarkComplete(ctx context.Context, p auth.Principal, target CompletionTarget, id int64) error {
	if err := auth.RequireStaff(p); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		switch target {
		case CompleteCase:
			c, err := s.st.Cases.GetByID(ctx, id)
			if err != nil {
				return err
			}
			c.Status = CaseCompleted
			return s.st.Cases.Update(ctx, c)
		case CompleteTreatment:
			t, err := s.st.Treatments.GetByID(ctx, id)
			if err != nil {
				return err
			}
			t.Status = StatusCompleted
			t.NextAppointment = ""
			return s.st.Treatments.Update(ctx, t)
		case CompleteFollowUp:
			f, err := s.st.FollowUps.GetByID(ctx, id)
			if err != nil {
				return err
			}
			f.Status = StatusCompleted
			f.NextAppointment = ""
			return s.st.FollowUps.Update(ctx, f)
		default:
			return apperr.ValidationField("type", "unknown completion target")
		}
	})
}

// DueAppointments lists booked next appointments from today on.
func (s *Service) DueAppointments(ctx context.Context, p auth.Principal) ([]*DueAppointment, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	return s.st.Treatments.ListDue(ctx, s.today())
}
