// Package clinical is the clinic record store: patients, cases, visits,
// treatments and the payments, follow-ups, prescriptions and files that
// hang off them. Every operation takes the calling principal explicitly
// and every mutation runs in one transaction.
package clinical

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/blobstore"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/db"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/idgen"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/metrics"
)

// maxCaseIDAttempts bounds retries of a generated case id that collided
// with a concurrently created case.
const maxCaseIDAttempts = 5

// Logins provisions and removes the credential tied to a patient file.
type Logins interface {
	ProvisionPatientLogin(ctx context.Context, username string) (string, error)
	RemoveLogin(ctx context.Context, username string) error
}

type Service struct {
	st     Stores
	tx     db.Transactor
	files  blobstore.FileStore
	logins Logins
	logger zerolog.Logger

	now    func() time.Time
	suffix func() int
}

func NewService(st Stores, tx db.Transactor, files blobstore.FileStore, logger zerolog.Logger) *Service {
	return &Service{
		st:     st,
		tx:     tx,
		files:  files,
		logger: logger.With().Str("component", "clinical").Logger(),
		now:    time.Now,
		suffix: idgen.Suffix,
	}
}

// SetLogins sets the credential provider used at registration and removal.
func (s *Service) SetLogins(l Logins) {
	s.logins = l
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetSuffixSource replaces the random file name suffix generator.
func (s *Service) SetSuffixSource(fn func() int) {
	s.suffix = fn
}

// Stores exposes the repositories for read-side packages.
func (s *Service) Stores() Stores {
	return s.st
}

func (s *Service) today() string {
	return s.now().Format(DateLayout)
}

func checkDate(field, v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, v); err != nil {
		return apperr.ValidationField(field, "must be a date in YYYY-MM-DD form")
	}
	return nil
}

// -- Patients --

type PatientInput struct {
	Demographics
	RegisteredOn string         `json:"registered_on"`
	Medical      MedicalHistory `json:"medical"`
	Dental       DentalHistory  `json:"dental"`
}

// Registration is returned once; the temporary password is not stored in
// plain text anywhere.
type Registration struct {
	Patient           *Patient `json:"patient"`
	Username          string   `json:"username"`
	TemporaryPassword string   `json:"temporary_password,omitempty"`
}

func (s *Service) RegisterPatient(ctx context.Context, p auth.Principal, in PatientInput) (*Registration, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	in.FullName = strings.TrimSpace(in.FullName)
	if in.FullName == "" {
		return nil, apperr.ValidationField("full_name", "is required")
	}
	if err := checkDate("registered_on", in.RegisteredOn); err != nil {
		return nil, err
	}

	pt := &Patient{
		Demographics: in.Demographics,
		RegisteredOn: in.RegisteredOn,
		CreatedBy:    p.Username,
		Medical:      in.Medical,
		Dental:       in.Dental,
		CreatedAt:    s.now(),
	}
	if pt.RegisteredOn == "" {
		pt.RegisteredOn = s.today()
	}

	reg := &Registration{Patient: pt}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.st.Patients.Create(ctx, pt); err != nil {
			return err
		}
		pt.FileNo = idgen.FileNo(pt.ID)
		if err := s.st.Patients.SetFileNo(ctx, pt.ID, pt.FileNo); err != nil {
			return err
		}
		reg.Username = pt.FileNo
		if s.logins == nil {
			return nil
		}
		pw, err := s.logins.ProvisionPatientLogin(ctx, pt.FileNo)
		if err != nil {
			return err
		}
		reg.TemporaryPassword = pw
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordCreated("patient")
	s.logger.Info().Int64("patient_id", pt.ID).Str("file_no", pt.FileNo).Str("by", p.Username).Msg("patient registered")
	return reg, nil
}

// PatientUpdate replaces the sections that are set and leaves the others.
type PatientUpdate struct {
	Demographics *Demographics   `json:"demographics,omitempty"`
	Medical      *MedicalHistory `json:"medical,omitempty"`
	Dental       *DentalHistory  `json:"dental,omitempty"`
}

func (s *Service) UpdatePatient(ctx context.Context, p auth.Principal, id int64, upd PatientUpdate) (*Patient, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	if upd.Demographics == nil && upd.Medical == nil && upd.Dental == nil {
		return nil, apperr.Validation("nothing to update")
	}
	if upd.Demographics != nil {
		upd.Demographics.FullName = strings.TrimSpace(upd.Demographics.FullName)
		if upd.Demographics.FullName == "" {
			return nil, apperr.ValidationField("full_name", "is required")
		}
	}

	var pt *Patient
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if pt, err = s.st.Patients.GetByID(ctx, id); err != nil {
			return err
		}
		if upd.Demographics != nil {
			pt.Demographics = *upd.Demographics
		}
		if upd.Medical != nil {
			pt.Medical = *upd.Medical
		}
		if upd.Dental != nil {
			pt.Dental = *upd.Dental
		}
		return s.st.Patients.Update(ctx, pt)
	})
	if err != nil {
		return nil, err
	}
	return pt, nil
}

func (s *Service) GetPatient(ctx context.Context, p auth.Principal, id int64) (*Patient, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	return s.st.Patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, p auth.Principal, query string, limit, offset int) ([]*Patient, int, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, 0, err
	}
	return s.st.Patients.List(ctx, query, limit, offset)
}

// -- Cases --

type CaseInput struct {
	PatientID      int64      `json:"patient_id"`
	CaseID         string     `json:"case_id"`
	Title          string     `json:"title"`
	ChiefComplaint string     `json:"chief_complaint"`
	Diagnosis      string     `json:"diagnosis"`
	TreatmentPlan  string     `json:"treatment_plan"`
	StartDate      string     `json:"start_date"`
	Health         CaseHealth `json:"health"`
}

// CreateCase opens a case. A blank CaseID is generated; a supplied one is
// stored as given and a collision surfaces as DuplicateKey.
func (s *Service) CreateCase(ctx context.Context, p auth.Principal, in CaseInput) (*Case, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	if in.PatientID == 0 {
		return nil, apperr.ValidationField("patient_id", "is required")
	}
	if err := checkDate("start_date", in.StartDate); err != nil {
		return nil, err
	}

	c := &Case{
		CaseID:         strings.TrimSpace(in.CaseID),
		PatientID:      in.PatientID,
		Title:          strings.TrimSpace(in.Title),
		ChiefComplaint: in.ChiefComplaint,
		Diagnosis:      in.Diagnosis,
		TreatmentPlan:  in.TreatmentPlan,
		StartDate:      in.StartDate,
		Status:         CaseActive,
		Health:         in.Health,
		CreatedAt:      s.now(),
	}
	if c.StartDate == "" {
		c.StartDate = s.today()
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.st.Patients.GetByID(ctx, in.PatientID); err != nil {
			return err
		}
		return s.insertCase(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordCreated("case")
	return c, nil
}

// insertCase stores c, generating its case id when blank. Generated ids
// count the patient's cases for today and retry the next number on a
// collision.
func (s *Service) insertCase(ctx context.Context, c *Case) error {
	if c.CaseID != "" {
		return s.st.Cases.Create(ctx, c)
	}

	day := s.now()
	prefix := idgen.CasePrefix(c.PatientID, day)
	n, err := s.st.Cases.CountWithPrefix(ctx, c.PatientID, prefix)
	if err != nil {
		return err
	}
	for attempt := 1; ; attempt++ {
		c.CaseID = idgen.CaseID(c.PatientID, day, n+attempt)
		err := s.st.Cases.Create(ctx, c)
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperr.ErrDuplicateKey) || attempt == maxCaseIDAttempts {
			return err
		}
		metrics.CaseIDRetry()
		s.logger.Debug().Str("case_id", c.CaseID).Int("attempt", attempt).Msg("case id taken, retrying")
	}
}

// CaseUpdate replaces the editable fields of an active case.
type CaseUpdate struct {
	Title          string     `json:"title"`
	ChiefComplaint string     `json:"chief_complaint"`
	Diagnosis      string     `json:"diagnosis"`
	TreatmentPlan  string     `json:"treatment_plan"`
	Health         CaseHealth `json:"health"`
}

func (s *Service) UpdateCase(ctx context.Context, p auth.Principal, id int64, upd CaseUpdate) (*Case, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	var c *Case
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.st.Cases.GetByID(ctx, id); err != nil {
			return err
		}
		if c.Status == CaseCompleted {
			return apperr.Validation("case %s is completed and can no longer be edited", c.CaseID)
		}
		c.Title = strings.TrimSpace(upd.Title)
		c.ChiefComplaint = upd.ChiefComplaint
		c.Diagnosis = upd.Diagnosis
		c.TreatmentPlan = upd.TreatmentPlan
		c.Health = upd.Health
		return s.st.Cases.Update(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CaseDetail is a case with its treatments arranged by parent.
type CaseDetail struct {
	Case       *Case            `json:"case"`
	Treatments []*TreatmentNode `json:"treatments"`
}

func (s *Service) GetCase(ctx context.Context, p auth.Principal, id int64) (*CaseDetail, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	c, err := s.st.Cases.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ts, err := s.st.Treatments.ListByCase(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CaseDetail{Case: c, Treatments: NewTreatmentIndex(ts).Forest()}, nil
}

func (s *Service) ListCases(ctx context.Context, p auth.Principal, patientID int64) ([]*Case, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	if _, err := s.st.Patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	return s.st.Cases.ListByPatient(ctx, patientID)
}

// -- Visits --

type VisitInput struct {
	PatientID      int64  `json:"patient_id"`
	DentistID      *int64 `json:"dentist_id,omitempty"`
	VisitDate      string `json:"visit_date"`
	ChiefComplaint string `json:"chief_complaint"`
	AcuteIssue     string `json:"acute_issue"`
	BP             string `json:"bp"`
	Pregnant       string `json:"pregnant"`
	PregnancyWeeks string `json:"pregnancy_weeks"`
	Breastfeeding  string `json:"breastfeeding"`
	Notes          string `json:"notes"`
}

// CreateVisit records an encounter with an optional attachment.
func (s *Service) CreateVisit(ctx context.Context, p auth.Principal, in VisitInput, att *Upload) (*Visit, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	if in.PatientID == 0 {
		return nil, apperr.ValidationField("patient_id", "is required")
	}
	if err := checkDate("visit_date", in.VisitDate); err != nil {
		return nil, err
	}
	if err := checkOptionalUpload(att); err != nil {
		return nil, err
	}

	v := &Visit{
		PatientID:      in.PatientID,
		DentistID:      in.DentistID,
		VisitDate:      in.VisitDate,
		ChiefComplaint: in.ChiefComplaint,
		AcuteIssue:     in.AcuteIssue,
		BP:             in.BP,
		Pregnant:       in.Pregnant,
		PregnancyWeeks: in.PregnancyWeeks,
		Breastfeeding:  in.Breastfeeding,
		Notes:          in.Notes,
		CreatedAt:      s.now(),
	}
	if v.VisitDate == "" {
		v.VisitDate = s.today()
	}

	err := s.mutate(ctx, func(ctx context.Context, pf *pendingFiles) error {
		if _, err := s.st.Patients.GetByID(ctx, in.PatientID); err != nil {
			return err
		}
		if in.DentistID != nil {
			if _, err := s.st.Dentists.GetByID(ctx, *in.DentistID); err != nil {
				return err
			}
		}
		if att != nil {
			name, err := s.storeUpload(ctx, pf, att)
			if err != nil {
				return err
			}
			v.Attachment = name
		}
		return s.st.Visits.Create(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordCreated("visit")
	return v, nil
}

func (s *Service) GetVisit(ctx context.Context, p auth.Principal, id int64) (*Visit, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	return s.st.Visits.GetByID(ctx, id)
}

func (s *Service) ListVisits(ctx context.Context, p auth.Principal, patientID int64) ([]*Visit, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	if _, err := s.st.Patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	return s.st.Visits.ListByPatient(ctx, patientID)
}

// -- Dentists --

type DentistInput struct {
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Contact        string `json:"contact"`
	Email          string `json:"email"`
	JoinedOn       string `json:"joined_on"`
}

func (s *Service) RegisterDentist(ctx context.Context, p auth.Principal, in DentistInput) (*Dentist, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.ValidationField("name", "is required")
	}
	if err := checkDate("joined_on", in.JoinedOn); err != nil {
		return nil, err
	}
	d := &Dentist{
		Name:           name,
		Specialization: strings.TrimSpace(in.Specialization),
		Contact:        strings.TrimSpace(in.Contact),
		Email:          strings.TrimSpace(in.Email),
		JoinedOn:       in.JoinedOn,
		CreatedAt:      s.now(),
	}
	if d.JoinedOn == "" {
		d.JoinedOn = s.today()
	}
	if err := s.st.Dentists.Create(ctx, d); err != nil {
		return nil, err
	}
	metrics.RecordCreated("dentist")
	return d, nil
}

func (s *Service) ListDentists(ctx context.Context, p auth.Principal) ([]*Dentist, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	return s.st.Dentists.List(ctx)
}

// DeleteDentist removes the provider only. Visits and treatments that
// reference it keep the id and render as UnknownProvider.
func (s *Service) DeleteDentist(ctx context.Context, p auth.Principal, id int64) error {
	if err := auth.RequireStaff(p); err != nil {
		return err
	}
	if _, err := s.st.Dentists.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.st.Dentists.Delete(ctx, id); err != nil {
		return err
	}
	metrics.RecordDeleted("dentist", 1)
	s.logger.Info().Int64("dentist_id", id).Str("by", p.Username).Msg("dentist deleted")
	return nil
}

// ProviderName resolves a dentist reference for display. A reference to a
// deleted dentist renders as UnknownProvider; any other lookup failure is
// returned with that same name.
func ProviderName(ctx context.Context, dentists DentistRepository, id *int64) (string, error) {
	if id == nil {
		return "", nil
	}
	d, err := dentists.GetByID(ctx, *id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return UnknownProvider, nil
		}
		return UnknownProvider, err
	}
	return d.Name, nil
}

func (s *Service) DentistWorkload(ctx context.Context, p auth.Principal) ([]DoctorLoad, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	return s.st.Treatments.PatientsPerDoctor(ctx)
}
