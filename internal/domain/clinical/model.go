package clinical

import (
	"strings"
	"time"
)

// Status is the progress of a treatment or follow-up.
type Status string

const (
	StatusOngoing   Status = "Ongoing"
	StatusCompleted Status = "Completed"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusOngoing:
		return StatusOngoing, true
	case StatusCompleted:
		return StatusCompleted, true
	}
	return "", false
}

// CaseStatus moves Active to Completed once, by explicit action.
type CaseStatus string

const (
	CaseActive    CaseStatus = "Active"
	CaseCompleted CaseStatus = "Completed"
)

// UnknownProvider is shown for references to a deleted dentist.
const UnknownProvider = "Unknown provider"

// DateLayout is the calendar date format used for every date field.
const DateLayout = "2006-01-02"

type Demographics struct {
	FullName           string `json:"full_name"`
	FatherOrSpouseName string `json:"father_or_spouse_name"`
	Gender             string `json:"gender"`
	DOBOrAge           string `json:"dob_or_age"`
	MaritalStatus      string `json:"marital_status"`
	Occupation         string `json:"occupation"`
	Contact            string `json:"contact"`
	Email              string `json:"email"`
	CNIC               string `json:"cnic"`
	Address            string `json:"address"`
}

// MedicalHistory is the Yes/No questionnaire captured at registration plus
// free-text notes.
type MedicalHistory struct {
	HeartDisease        string `json:"heart_disease"`
	BloodPressure       string `json:"blood_pressure"`
	Diabetes            string `json:"diabetes"`
	Asthma              string `json:"asthma"`
	Tuberculosis        string `json:"tuberculosis"`
	Hepatitis           string `json:"hepatitis"`
	BleedingDisorder    string `json:"bleeding_disorder"`
	Epilepsy            string `json:"epilepsy"`
	ThyroidDisorder     string `json:"thyroid_disorder"`
	KidneyDisease       string `json:"kidney_disease"`
	StomachUlcers       string `json:"stomach_ulcers"`
	PsychiatricDisorder string `json:"psychiatric_disorder"`
	Medications         string `json:"medications"`
	Allergies           string `json:"allergies"`
	OtherHealth         string `json:"other_health"`
	Pregnant            string `json:"pregnant"`
	PregnancyWeeks      string `json:"pregnancy_weeks"`
	Breastfeeding       string `json:"breastfeeding"`
	SurgeryHistory      string `json:"surgery_history"`
}

// Flags returns the names of the conditions answered Yes.
func (m MedicalHistory) Flags() []string {
	answers := []struct{ name, v string }{
		{"heart_disease", m.HeartDisease},
		{"blood_pressure", m.BloodPressure},
		{"diabetes", m.Diabetes},
		{"asthma", m.Asthma},
		{"tuberculosis", m.Tuberculosis},
		{"hepatitis", m.Hepatitis},
		{"bleeding_disorder", m.BleedingDisorder},
		{"epilepsy", m.Epilepsy},
		{"thyroid_disorder", m.ThyroidDisorder},
		{"kidney_disease", m.KidneyDisease},
		{"stomach_ulcers", m.StomachUlcers},
		{"psychiatric_disorder", m.PsychiatricDisorder},
	}
	var out []string
	for _, a := range answers {
		if strings.EqualFold(a.v, "yes") {
			out = append(out, a.name)
		}
	}
	return out
}

type DentalHistory struct {
	LastVisit            string   `json:"last_visit"`
	LastVisitReason      string   `json:"last_visit_reason"`
	PreviousTreatments   []string `json:"previous_treatments,omitempty"`
	BadExperience        bool     `json:"bad_experience"`
	BadExperienceDetails string   `json:"bad_experience_details"`
}

type Patient struct {
	ID     int64  `json:"id"`
	FileNo string `json:"file_no"`
	Demographics
	RegisteredOn string         `json:"registered_on"`
	CreatedBy    string         `json:"created_by"`
	Medical      MedicalHistory `json:"medical"`
	Dental       DentalHistory  `json:"dental"`
	CreatedAt    time.Time      `json:"created_at"`
}

// CaseHealth is the health update recorded when a case is opened.
type CaseHealth struct {
	Pregnant                  string `json:"pregnant"`
	PregnancyWeeks            string `json:"pregnancy_weeks"`
	Breastfeeding             string `json:"breastfeeding"`
	NewMedications            string `json:"new_medications"`
	RecentIllness             string `json:"recent_illness"`
	NewConditions             string `json:"new_conditions"`
	AllergyOrMedicationChange string `json:"allergy_or_medication_change"`
}

type Case struct {
	ID             int64      `json:"id"`
	CaseID         string     `json:"case_id"`
	PatientID      int64      `json:"patient_id"`
	Title          string     `json:"title"`
	ChiefComplaint string     `json:"chief_complaint"`
	Diagnosis      string     `json:"diagnosis"`
	TreatmentPlan  string     `json:"treatment_plan"`
	StartDate      string     `json:"start_date"`
	Status         CaseStatus `json:"status"`
	Health         CaseHealth `json:"health"`
	CreatedAt      time.Time  `json:"created_at"`
}

type Visit struct {
	ID             int64     `json:"id"`
	PatientID      int64     `json:"patient_id"`
	DentistID      *int64    `json:"dentist_id,omitempty"`
	VisitDate      string    `json:"visit_date"`
	ChiefComplaint string    `json:"chief_complaint"`
	AcuteIssue     string    `json:"acute_issue"`
	BP             string    `json:"bp"`
	Pregnant       string    `json:"pregnant"`
	PregnancyWeeks string    `json:"pregnancy_weeks"`
	Breastfeeding  string    `json:"breastfeeding"`
	Notes          string    `json:"notes"`
	Attachment     string    `json:"attachment,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CanalMeasurement is one canal of a root canal treatment.
type CanalMeasurement struct {
	Canal         string `json:"canal"`
	WorkingLength string `json:"working_length"`
	MAF           string `json:"maf"`
}

// ProcedureDetails holds the specialty fields of a treatment. Only the
// group matching the treatment category is normally filled.
type ProcedureDetails struct {
	ObturationMaterial string             `json:"obturation_material,omitempty"`
	Canals             []CanalMeasurement `json:"canals,omitempty"`

	ExtractionType       string `json:"extraction_type,omitempty"`
	ImpactionType        string `json:"impaction_type,omitempty"`
	ExtractionDifficulty string `json:"extraction_difficulty,omitempty"`
	FlapType             string `json:"flap_type,omitempty"`
	BoneRemoval          bool   `json:"bone_removal,omitempty"`
	SutureType           string `json:"suture_type,omitempty"`
	ToothSectioning      bool   `json:"tooth_sectioning,omitempty"`
	SectioningDetails    string `json:"sectioning_details,omitempty"`
	SurgicalDetails      string `json:"surgical_details,omitempty"`

	OrthoDetails     string `json:"ortho_details,omitempty"`
	PediatricDetails string `json:"pediatric_details,omitempty"`
	CosmeticDetails  string `json:"cosmetic_details,omitempty"`
}

type Treatment struct {
	ID              int64            `json:"id"`
	PatientID       int64            `json:"patient_id"`
	VisitID         int64            `json:"visit_id"`
	CaseRef         *int64           `json:"case_ref,omitempty"`
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
	NextAppointment string           `json:"next_appointment,omitempty"`
	Status          Status           `json:"status"`
	Attachment      string           `json:"attachment,omitempty"`
	Details         ProcedureDetails `json:"details"`
	CreatedAt       time.Time        `json:"created_at"`
}

// statusFor is Ongoing while a next appointment is booked.
func statusFor(nextAppointment string) Status {
	if nextAppointment != "" {
		return StatusOngoing
	}
	return StatusCompleted
}

// Payment is immutable once recorded. RemainingBalance is the patient's
// balance when the payment was taken and is never recomputed.
type Payment struct {
	ID               int64     `json:"id"`
	PatientID        int64     `json:"patient_id"`
	TreatmentID      *int64    `json:"treatment_id,omitempty"`
	CaseRef          *int64    `json:"case_ref,omitempty"`
	Date             string    `json:"date"`
	TreatmentFee     float64   `json:"treatment_fee"`
	AmountPaid       float64   `json:"amount_paid"`
	RemainingBalance float64   `json:"remaining_balance"`
	CreatedAt        time.Time `json:"created_at"`
}

type FollowUp struct {
	ID              int64     `json:"id"`
	TreatmentID     int64     `json:"treatment_id"`
	Date            string    `json:"date"`
	Notes           string    `json:"notes"`
	NextAppointment string    `json:"next_appointment,omitempty"`
	Status          Status    `json:"status"`
	Attachment      string    `json:"attachment,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type PrescriptionItem struct {
	DrugName   string `json:"drug_name"`
	DosageForm string `json:"dosage_form"`
	Strength   string `json:"strength"`
	Quantity   string `json:"quantity"`
	Frequency  string `json:"frequency"`
	Duration   string `json:"duration"`
	Notes      string `json:"notes"`
}

func (it PrescriptionItem) blank() bool {
	return it.DrugName == "" && it.DosageForm == "" && it.Strength == "" && it.Quantity == "" &&
		it.Frequency == "" && it.Duration == "" && it.Notes == ""
}

func (it PrescriptionItem) trimmed() PrescriptionItem {
	return PrescriptionItem{
		DrugName:   strings.TrimSpace(it.DrugName),
		DosageForm: strings.TrimSpace(it.DosageForm),
		Strength:   strings.TrimSpace(it.Strength),
		Quantity:   strings.TrimSpace(it.Quantity),
		Frequency:  strings.TrimSpace(it.Frequency),
		Duration:   strings.TrimSpace(it.Duration),
		Notes:      strings.TrimSpace(it.Notes),
	}
}

// Prescription belongs to exactly one visit. Items keep their entry order.
type Prescription struct {
	ID        int64              `json:"id"`
	VisitID   int64              `json:"visit_id"`
	Notes     string             `json:"notes"`
	Items     []PrescriptionItem `json:"items"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type Dentist struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
	Contact        string    `json:"contact"`
	Email          string    `json:"email"`
	JoinedOn       string    `json:"joined_on"`
	CreatedAt      time.Time `json:"created_at"`
}

type Radiograph struct {
	ID          int64     `json:"id"`
	PatientID   int64     `json:"patient_id"`
	TreatmentID *int64    `json:"treatment_id,omitempty"`
	CaseRef     *int64    `json:"case_ref,omitempty"`
	Filename    string    `json:"filename"`
	UploadedBy  string    `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// DoctorLoad counts the distinct patients treated under one clinician name.
type DoctorLoad struct {
	Doctor   string `json:"doctor"`
	Patients int    `json:"patients"`
}

// DueAppointment is a treatment with a booked next appointment.
type DueAppointment struct {
	TreatmentID     int64  `json:"treatment_id"`
	PatientID       int64  `json:"patient_id"`
	PatientName     string `json:"patient_name"`
	FileNo          string `json:"file_no"`
	Contact         string `json:"contact"`
	Treatment       string `json:"treatment"`
	ToothNumber     string `json:"tooth_number"`
	Doctor          string `json:"doctor"`
	NextAppointment string `json:"next_appointment"`
}
