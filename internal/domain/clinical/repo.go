package clinical

import (
	"context"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	SetFileNo(ctx context.Context, id int64, fileNo string) error
	GetByID(ctx context.Context, id int64) (*Patient, error)
	GetByFileNo(ctx context.Context, fileNo string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id int64) error
	// List matches query against name, file number and contact.
	List(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error)
}

type CaseRepository interface {
	Create(ctx context.Context, c *Case) error
	GetByID(ctx context.Context, id int64) (*Case, error)
	GetByCaseID(ctx context.Context, caseID string) (*Case, error)
	Update(ctx context.Context, c *Case) error
	Delete(ctx context.Context, id int64) error
	ListByPatient(ctx context.Context, patientID int64) ([]*Case, error)
	CountWithPrefix(ctx context.Context, patientID int64, prefix string) (int, error)
}

type VisitRepository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id int64) (*Visit, error)
	Delete(ctx context.Context, id int64) error
	ListByPatient(ctx context.Context, patientID int64) ([]*Visit, error)
}

type TreatmentRepository interface {
	Create(ctx context.Context, t *Treatment) error
	GetByID(ctx context.Context, id int64) (*Treatment, error)
	Update(ctx context.Context, t *Treatment) error
	Delete(ctx context.Context, id int64) error
	ListByPatient(ctx context.Context, patientID int64) ([]*Treatment, error)
	ListByVisit(ctx context.Context, visitID int64) ([]*Treatment, error)
	ListByCase(ctx context.Context, caseRef int64) ([]*Treatment, error)
	SumAmountByPatient(ctx context.Context, patientID int64) (float64, error)
	// FeeTotals returns the sum of treatment amounts per patient.
	FeeTotals(ctx context.Context) (map[int64]float64, error)
	// ListDue returns treatments whose next appointment is on or after
	// from, earliest first.
	ListDue(ctx context.Context, from string) ([]*DueAppointment, error)
	// PatientsPerDoctor counts distinct patients per clinician name.
	PatientsPerDoctor(ctx context.Context) ([]DoctorLoad, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id int64) (*Payment, error)
	Delete(ctx context.Context, id int64) error
	ListByPatient(ctx context.Context, patientID int64) ([]*Payment, error)
	ListByTreatment(ctx context.Context, treatmentID int64) ([]*Payment, error)
	DeleteByTreatment(ctx context.Context, treatmentID int64) (int, error)
	DeleteByPatient(ctx context.Context, patientID int64) (int, error)
	ClearCaseRef(ctx context.Context, caseRef int64) error
	SumPaidByPatient(ctx context.Context, patientID int64) (float64, error)
	// PaidTotals returns the sum of amounts paid per patient.
	PaidTotals(ctx context.Context) (map[int64]float64, error)
}

type FollowUpRepository interface {
	Create(ctx context.Context, f *FollowUp) error
	GetByID(ctx context.Context, id int64) (*FollowUp, error)
	Update(ctx context.Context, f *FollowUp) error
	Delete(ctx context.Context, id int64) error
	ListByTreatment(ctx context.Context, treatmentID int64) ([]*FollowUp, error)
	DeleteByTreatment(ctx context.Context, treatmentID int64) (int, error)
}

type PrescriptionRepository interface {
	// GetByVisit returns NotFound when the visit has no prescription.
	GetByVisit(ctx context.Context, visitID int64) (*Prescription, error)
	// Save upserts the prescription and replaces all of its items.
	Save(ctx context.Context, p *Prescription) error
	DeleteByVisit(ctx context.Context, visitID int64) error
}

type RadiographRepository interface {
	Create(ctx context.Context, r *Radiograph) error
	GetByID(ctx context.Context, id int64) (*Radiograph, error)
	GetByFilename(ctx context.Context, name string) (*Radiograph, error)
	Delete(ctx context.Context, id int64) error
	ListByPatient(ctx context.Context, patientID int64) ([]*Radiograph, error)
	ListByTreatment(ctx context.Context, treatmentID int64) ([]*Radiograph, error)
	ClearCaseRef(ctx context.Context, caseRef int64) error
}

type DentistRepository interface {
	Create(ctx context.Context, d *Dentist) error
	GetByID(ctx context.Context, id int64) (*Dentist, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]*Dentist, error)
}

// Stores groups the repositories the service works against.
type Stores struct {
	Patients      PatientRepository
	Cases         CaseRepository
	Visits        VisitRepository
	Treatments    TreatmentRepository
	Payments      PaymentRepository
	FollowUps     FollowUpRepository
	Prescriptions PrescriptionRepository
	Radiographs   RadiographRepository
	Dentists      DentistRepository
}
