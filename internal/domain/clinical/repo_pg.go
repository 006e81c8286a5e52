package clinical

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/db"
)

// pgBase resolves the connection for a call: the transaction bound to ctx
// when there is one, else the pool.
type pgBase struct{ pool *pgxpool.Pool }

func (b pgBase) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return b.pool
}

func notFoundOr(err error, resource string, id any) error {
	if db.IsNoRows(err) {
		return apperr.NotFound(resource, id)
	}
	return err
}

// collect drains rows through scan.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var items []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func sumBy(ctx context.Context, q db.Querier, sql string, args ...any) (map[int64]float64, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]float64)
	for rows.Next() {
		var id int64
		var total float64
		if err := rows.Scan(&id, &total); err != nil {
			return nil, err
		}
		out[id] = total
	}
	return out, rows.Err()
}

// NewStoresPG wires every repository to the pool.
func NewStoresPG(pool *pgxpool.Pool) Stores {
	b := pgBase{pool: pool}
	return Stores{
		Patients:      &patientRepoPG{b},
		Cases:         &caseRepoPG{b},
		Visits:        &visitRepoPG{b},
		Treatments:    &treatmentRepoPG{b},
		Payments:      &paymentRepoPG{b},
		FollowUps:     &followUpRepoPG{b},
		Prescriptions: &prescriptionRepoPG{b},
		Radiographs:   &radiographRepoPG{b},
		Dentists:      &dentistRepoPG{b},
	}
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pgBase }

const patientCols = `id, COALESCE(file_no, ''), full_name, father_or_spouse_name, gender, dob_or_age,
	marital_status, occupation, contact, email, cnic, address, registered_on, created_by,
	medical_history, dental_history, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FileNo, &p.FullName, &p.FatherOrSpouseName, &p.Gender, &p.DOBOrAge,
		&p.MaritalStatus, &p.Occupation, &p.Contact, &p.Email, &p.CNIC, &p.Address, &p.RegisteredOn, &p.CreatedBy,
		&p.Medical, &p.Dental, &p.CreatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (full_name, father_or_spouse_name, gender, dob_or_age, marital_status,
			occupation, contact, email, cnic, address, registered_on, created_by,
			medical_history, dental_history, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id`,
		p.FullName, p.FatherOrSpouseName, p.Gender, p.DOBOrAge, p.MaritalStatus,
		p.Occupation, p.Contact, p.Email, p.CNIC, p.Address, p.RegisteredOn, p.CreatedBy,
		p.Medical, p.Dental, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) SetFileNo(ctx context.Context, id int64, fileNo string) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE patients SET file_no = $2 WHERE id = $1`, id, fileNo)
	if db.IsUniqueViolation(err) {
		return apperr.DuplicateKey("file number "+fileNo, err)
	}
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "patient", id)
	}
	return p, nil
}

func (r *patientRepoPG) GetByFileNo(ctx context.Context, fileNo string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE file_no = $1`, fileNo))
	if err != nil {
		return nil, notFoundOr(err, "patient", fileNo)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET full_name=$2, father_or_spouse_name=$3, gender=$4, dob_or_age=$5,
			marital_status=$6, occupation=$7, contact=$8, email=$9, cnic=$10, address=$11,
			medical_history=$12, dental_history=$13
		WHERE id = $1`,
		p.ID, p.FullName, p.FatherOrSpouseName, p.Gender, p.DOBOrAge,
		p.MaritalStatus, p.Occupation, p.Contact, p.Email, p.CNIC, p.Address,
		p.Medical, p.Dental)
	return err
}

func (r *patientRepoPG) Delete(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	return err
}

func (r *patientRepoPG) List(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	where, args := "", []any{}
	if q := strings.TrimSpace(query); q != "" {
		where = ` WHERE lower(full_name) LIKE $1 OR file_no LIKE $1 OR contact LIKE $1`
		args = append(args, "%"+strings.ToLower(q)+"%")
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT `+patientCols+` FROM patients`+where+` ORDER BY id DESC LIMIT $%d OFFSET $%d`, n+1, n+2),
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, scanPatient)
	return items, total, err
}

// =========== Case Repository ===========

type caseRepoPG struct{ pgBase }

const caseCols = `id, case_id, patient_id, title, chief_complaint, diagnosis, treatment_plan,
	start_date, status, health, created_at`

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(&c.ID, &c.CaseID, &c.PatientID, &c.Title, &c.ChiefComplaint, &c.Diagnosis, &c.TreatmentPlan,
		&c.StartDate, &c.Status, &c.Health, &c.CreatedAt)
	return &c, err
}

// Create runs in a savepoint so a duplicate case id leaves the outer
// transaction usable for a retry.
func (r *caseRepoPG) Create(ctx context.Context, c *Case) error {
	err := db.Savepoint(ctx, func(ctx context.Context) error {
		return r.conn(ctx).QueryRow(ctx, `
			INSERT INTO cases (case_id, patient_id, title, chief_complaint, diagnosis, treatment_plan,
				start_date, status, health, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			RETURNING id`,
			c.CaseID, c.PatientID, c.Title, c.ChiefComplaint, c.Diagnosis, c.TreatmentPlan,
			c.StartDate, c.Status, c.Health, c.CreatedAt).Scan(&c.ID)
	})
	if db.IsUniqueViolation(err) {
		return apperr.DuplicateKey("case "+c.CaseID, err)
	}
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (r *caseRepoPG) GetByID(ctx context.Context, id int64) (*Case, error) {
	c, err := scanCase(r.conn(ctx).QueryRow(ctx, `SELECT `+caseCols+` FROM cases WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "case", id)
	}
	return c, nil
}

func (r *caseRepoPG) GetByCaseID(ctx context.Context, caseID string) (*Case, error) {
	c, err := scanCase(r.conn(ctx).QueryRow(ctx, `SELECT `+caseCols+` FROM cases WHERE case_id = $1`, caseID))
	if err != nil {
		return nil, notFoundOr(err, "case", caseID)
	}
	return c, nil
}

func (r *caseRepoPG) Update(ctx context.Context, c *Case) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE cases SET title=$2, chief_complaint=$3, diagnosis=$4, treatment_plan=$5,
			status=$6, health=$7
		WHERE id = $1`,
		c.ID, c.Title, c.ChiefComplaint, c.Diagnosis, c.TreatmentPlan, c.Status, c.Health)
	return err
}

func (r *caseRepoPG) Delete(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM cases WHERE id = $1`, id)
	return err
}

func (r *caseRepoPG) ListByPatient(ctx context.Context, patientID int64) ([]*Case, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+caseCols+` FROM cases WHERE patient_id = $1 ORDER BY id DESC`, patientID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanCase)
}

func (r *caseRepoPG) CountWithPrefix(ctx context.Context, patientID int64, prefix string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM cases WHERE patient_id = $1 AND case_id LIKE $2`, patientID, prefix+"%").Scan(&n)
	return n, err
}

// =========== Visit Repository ===========

type visitRepoPG struct{ pgBase }

const visitCols = `id, patient_id, dentist_id, visit_date, chief_complaint, acute_issue, bp,
	pregnant, pregnancy_weeks, breastfeeding, notes, attachment, created_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.PatientID, &v.DentistID, &v.VisitDate, &v.ChiefComplaint, &v.AcuteIssue, &v.BP,
		&v.Pregnant, &v.PregnancyWeeks, &v.Breastfeeding, &v.Notes, &v.Attachment, &v.CreatedAt)
	return &v, err
}

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO visits (patient_id, dentist_id, visit_date, chief_complaint, acute_issue, bp,
			pregnant, pregnancy_weeks, breastfeeding, notes, attachment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id`,
		v.PatientID, v.DentistID, v.VisitDate, v.ChiefComplaint, v.AcuteIssue, v.BP,
		v.Pregnant, v.PregnancyWeeks, v.Breastfeeding, v.Notes, v.Attachment, v.CreatedAt).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

func (r *visitRepoPG) GetByID(ctx context.Context, id int64) (*Visit, error) {
	v, err := scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visits WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "visit", id)
	}
	return v, nil
}

func (r *visitRepoPG) Delete(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM visits WHERE id = $1`, id)
	return err
}

func (r *visitRepoPG) ListByPatient(ctx context.Context, patientID int64) ([]*Visit, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM visits WHERE patient_id = $1 ORDER BY visit_date DESC, id DESC`, patientID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanVisit)
}

// =========== Treatment Repository ===========

type treatmentRepoPG struct{ pgBase }

const treatmentCols = `id, patient_id, visit_id, case_ref, parent_id, dentist_id, doctor, category,
	treatment_type, tooth_number, multi_tooth, treatment_date, notes, post_op, amount,
	next_appointment, status, attachment, details, created_at`

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var t Treatment
	err := row.Scan(&t.ID, &t.PatientID, &t.VisitID, &t.CaseRef, &t.ParentID, &t.DentistID, &t.Doctor, &t.Category,
		&t.Type, &t.ToothNumber, &t.MultiTooth, &t.Date, &t.Notes, &t.PostOp, &t.Amount,
		&t.NextAppointment, &t.Status, &t.Attachment, &t.Details, &t.CreatedAt)
	return &t, err
}

func (r *treatmentRepoPG) Create(ctx context.Context, t *Treatment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO treatments (patient_id, visit_id, case_ref, parent_id, dentist_id, doctor, category,
			treatment_type, tooth_number, multi_tooth, treatment_date, notes, post_op, amount,
			next_appointment, status, attachment, details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING id`,
		t.PatientID, t.VisitID, t.CaseRef, t.ParentID, t.DentistID, t.Doctor, t.Category,
		t.Type, t.ToothNumber, t.MultiTooth, t.Date, t.Notes, t.PostOp, t.Amount,
		t.NextAppointment, t.Status, t.Attachment, t.Details, t.CreatedAt).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert treatment: %w", err)
	}
	return nil
}

func (r *treatmentRepoPG) GetByID(ctx context.Context, id int64) (*Treatment, error) {
	t, err := scanTreatment(r.conn(ctx).QueryRow(ctx, `SELECT `+treatmentCols+` FROM treatments WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "treatment", id)
	}
	return t, nil
}

func (r *treatmentRepoPG) Update(ctx context.Context, t *Treatment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE treatments SET case_ref=$2, dentist_id=$3, doctor=$4, category=$5, treatment_type=$6,
			tooth_number=$7, multi_tooth=$8, treatment_date=$9, notes=$10, post_op=$11, amount=$12,
			next_appointment=$13, status=$14, attachment=$15, details=$16
		WHERE id = $1`,
		t.ID, t.CaseRef, t.DentistID, t.Doctor, t.Category, t.Type,
		t.ToothNumber, t.MultiTooth, t.Date, t.Notes, t.PostOp, t.Amount,
		t.NextAppointment, t.Status, t.Attachment, t.Details)
	return err
}

func (r *treatmentRepoPG) Delete(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM treatments WHERE id = $1`, id)
	return err
}

func (r *treatmentRepoPG) list(ctx context.Context, where string, arg any) ([]*Treatment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+treatmentCols+` FROM treatments WHERE `+where+` ORDER BY treatment_date DESC, id DESC`, arg)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTreatment)
}

func (r *treatmentRepoPG) ListByPatient(ctx context.Context, patientID int64) ([]*Treatment, error) {
	return r.list(ctx, "patient_id = $1", patientID)
}

func (r *treatmentRepoPG) ListByVisit(ctx context.Context, visitID int64) ([]*Treatment, error) {
	return r.list(ctx, "visit_id = $1", visitID)
}

func (r *treatmentRepoPG) ListByCase(ctx context.Context, caseRef int64) ([]*Treatment, error) {
	return r.list(ctx, "case_ref = $1", caseRef)
}

func (r *treatmentRepoPG) SumAmountByPatient(ctx context.Context, patientID int64) (float64, error) {
	var total float64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM treatments WHERE patient_id = $1`, patientID).Scan(&total)
	return total, err
}

func (r *treatmentRepoPG) FeeTotals(ctx context.Context) (map[int64]float64, error) {
	return sumBy(ctx, r.conn(ctx), `SELECT patient_id, COALESCE(SUM(amount), 0) FROM treatments GROUP BY patient_id`)
}

func (r *treatmentRepoPG) ListDue(ctx context.Context, from string) ([]*DueAppointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT t.id, t.patient_id, p.full_name, COALESCE(p.file_no, ''), p.contact,
			t.treatment_type, t.tooth_number, t.doctor, t.next_appointment
		FROM treatments t JOIN patients p ON p.id = t.patient_id
		WHERE t.next_appointment <> '' AND t.next_appointment >= $1
		ORDER BY t.next_appointment, t.id`, from)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (*DueAppointment, error) {
		var d DueAppointment
		err := row.Scan(&d.TreatmentID, &d.PatientID, &d.PatientName, &d.FileNo, &d.Contact,
			&d.Treatment, &d.ToothNumber, &d.Doctor, &d.NextAppointment)
		return &d, err
	})
}

func (r *treatmentRepoPG) PatientsPerDoctor(ctx context.Context) ([]DoctorLoad, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT doctor, COUNT(DISTINCT patient_id) FROM treatments
		WHERE doctor <> ''
		GROUP BY doctor ORDER BY COUNT(DISTINCT patient_id) DESC, doctor`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DoctorLoad
	for rows.Next() {
		var l DoctorLoad
		if err := rows.Scan(&l.Doctor, &l.Patients); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pgBase }

const paymentCols = `id, patient_id, treatment_id, case_ref, payment_date, treatment_fee, amount_paid,
	remaining_balance, created_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.PatientID, &p.TreatmentID, &p.CaseRef, &p.Date, &p.TreatmentFee, &p.AmountPaid,
		&p.RemainingBalance, &p.CreatedAt)
	return &p, err
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payments (patient_id, treatment_id, case_ref, payment_date, treatment_fee, amount_paid,
			remaining_balance, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`,
		p.PatientID, p.TreatmentID, p.CaseRef, p.Date, p.TreatmentFee, p.AmountPaid,
		p.RemainingBalance, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepoPG) GetByID(ctx context.Context, id int64) (*Payment, error) {
	p, err := scanPayment(r.conn(ctx).QueryRow(ctx, `SELECT `+paymentCols+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "payment", id)
	}
	return p, nil
}

func (r *paymentRepoPG) Delete(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	return err
}

func (r *paymentRepoPG) ListByPatient(ctx context.Context, patientID int64) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE patient_id = $1 ORDER BY payment_date DESC, id DESC`, patientID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPayment)
}

func (r *paymentRepoPG) ListByTreatment(ctx context.Context, treatmentID int64) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE treatment_id = $1 ORDER BY payment_date DESC, id DESC`, treatmentID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPayment)
}

func (r *paymentRepoPG) DeleteByTreatment(ctx context.Context, treatmentID int64) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM payments WHERE treatment_id = $1`, treatmentID)
	return int(tag.RowsAffected()), err
}

func (r *paymentRepoPG) DeleteByPatient(ctx context.Context, patientID int64) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM payments WHERE patient_id = $1`, patientID)
	return int(tag.RowsAffected()), err
}

func (r *paymentRepoPG) ClearCaseRef(ctx context.Context, caseRef int64) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE payments SET case_ref = NULL WHERE case_ref = $1`, caseRef)
	return err
}

func (r *paymentRepoPG) SumPaidByPatient(ctx context.Context, patientID int64) (float64, error) {
	var total float64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_paid), 0) FROM payments WHERE patient_id = $1`, patientID).Scan(&total)
	return total, err
}

func (r *paymentRepoPG) PaidTotals(ctx context.Context) (map[int64]float64, error) {
	return sumBy(ctx, r.conn(ctx), `SELECT patient_id, COALESCE(SUM(amount_paid), 0) FROM payments GROUP BY patient_id`)
}

// =========== FollowUp Repository ===========

type followUpRepoPG struct{ pgBase }

const followUpCols = `id, treatment_id, followup_date, notes, next_appointment, status, attachment, created_at`

func scanFollowUp(row pgx.Row) (*FollowUp, error) {
	var f FollowUp
	err := row.Scan(&f.ID, &f.TreatmentID, &f.Date, &f.Notes, &f.NextAppointment, &f.Status, &f.Attachment, &f.CreatedAt)
	return &f, err
}

func (r *followUpRepoPG) Create(ctx context.Context, f *FollowUp) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO followups (treatment_id, followup_date, notes, next_appointment, status, attachment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id`,
		f.TreatmentID, f.Date, f.Notes, f.NextAppointment, f.Status, f.Attachment, f.CreatedAt).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("insert follow-up: %w", err)
	}
	return nil
}

func (r *followUpRepoPG) GetByID(ctx context.Context, id int64) (*FollowUp, error) {
	f, err := scanFollowUp(r.conn(ctx).QueryRow(ctx, `SELECT `+followUpCols+` FROM followups WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "follow-up", id)
	}
	return f, nil
}

func (r *followUpRepoPG) Update(ctx context.Context, f *FollowUp) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE followups SET followup_date=$2, notes=$3, next_appointment=$4, status=$5, attachment=$6
		WHERE id = $1`,
		f.ID, f.Date, f.Notes, f.NextAppointment, f.Status, f.Attachment)
	return err
}

func (r *followUpRepoPG) Delete(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM followups WHERE id = $1`, id)
	return err
}

func (r *followUpRepoPG) ListByTreatment(ctx context.Context, treatmentID int64) ([]*FollowUp, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+followUpCols+` FROM followups WHERE treatment_id = $1 ORDER BY followup_date DESC, id DESC`, treatmentID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanFollowUp)
}

func (r *followUpRepoPG) DeleteByTreatment(ctx context.Context, treatmentID int64) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM followups WHERE treatment_id = $1`, treatmentID)
	return int(tag.RowsAffected()), err
}

// =========== Prescription Repository ===========

type prescriptionRepoPG struct{ pgBase }

func (r *prescriptionRepoPG) GetByVisit(ctx context.Context, visitID int64) (*Prescription, error) {
	var p Prescription
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, visit_id, notes, updated_at FROM prescriptions WHERE visit_id = $1`, visitID).
		Scan(&p.ID, &p.VisitID, &p.Notes, &p.UpdatedAt)
	if err != nil {
		return nil, notFoundOr(err, "prescription", visitID)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT drug_name, dosage_form, strength, quantity, frequency, duration, notes
		FROM prescription_items WHERE prescription_id = $1 ORDER BY position`, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	p.Items = []PrescriptionItem{}
	for rows.Next() {
		var it PrescriptionItem
		if err := rows.Scan(&it.DrugName, &it.DosageForm, &it.Strength, &it.Quantity, &it.Frequency, &it.Duration, &it.Notes); err != nil {
			return nil, err
		}
		p.Items = append(p.Items, it)
	}
	return &p, rows.Err()
}

func (r *prescriptionRepoPG) Save(ctx context.Context, p *Prescription) error {
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		INSERT INTO prescriptions (visit_id, notes, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (visit_id) DO UPDATE SET notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at
		RETURNING id`, p.VisitID, p.Notes, p.UpdatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upsert prescription: %w", err)
	}
	if _, err := q.Exec(ctx, `DELETE FROM prescription_items WHERE prescription_id = $1`, p.ID); err != nil {
		return fmt.Errorf("clear prescription items: %w", err)
	}
	for i, it := range p.Items {
		_, err := q.Exec(ctx, `
			INSERT INTO prescription_items (prescription_id, position, drug_name, dosage_form, strength,
				quantity, frequency, duration, notes)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			p.ID, i, it.DrugName, it.DosageForm, it.Strength, it.Quantity, it.Frequency, it.Duration, it.Notes)
		if err != nil {
			return fmt.Errorf("insert prescription item %d: %w", i, err)
		}
	}
	return nil
}

func (r *prescriptionRepoPG) DeleteByVisit(ctx context.Context, visitID int64) error {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `
		DELETE FROM prescription_items WHERE prescription_id IN
			(SELECT id FROM prescriptions WHERE visit_id = $1)`, visitID); err != nil {
		return err
	}
	_, err := q.Exec(ctx, `DELETE FROM prescriptions WHERE visit_id = $1`, visitID)
	return err
}

// =========== Radiograph Repository ===========

type radiographRepoPG struct{ pgBase }

const radiographCols = `id, patient_id, treatment_id, case_ref, filename, uploaded_by, uploaded_at`

func scanRadiograph(row pgx.Row) (*Radiograph, error) {
	var r Radiograph
	err := row.Scan(&r.ID, &r.PatientID, &r.TreatmentID, &r.CaseRef, &r.Filename, &r.UploadedBy, &r.UploadedAt)
	return &r, err
}

func (r *radiographRepoPG) Create(ctx context.Context, rg *Radiograph) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO radiographs (patient_id, treatment_id, case_ref, filename, uploaded_by, uploaded_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id`,
		rg.PatientID, rg.TreatmentID, rg.CaseRef, rg.Filename, rg.UploadedBy, rg.UploadedAt).Scan(&rg.ID)
	if db.IsUniqueViolation(err) {
		return apperr.DuplicateKey("file "+rg.Filename, err)
	}
	if err != nil {
		return fmt.Errorf("insert radiograph: %w", err)
	}
	return nil
}

func (r *radiographRepoPG) GetByID(ctx context.Context, id int64) (*Radiograph, error) {
	rg, err := scanRadiograph(r.conn(ctx).QueryRow(ctx, `SELECT `+radiographCols+` FROM radiographs WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "file", id)
	}
	return rg, nil
}

func (r *radiographRepoPG) GetByFilename(ctx context.Context, name string) (*Radiograph, error) {
	rg, err := scanRadiograph(r.conn(ctx).QueryRow(ctx, `SELECT `+radiographCols+` FROM radiographs WHERE filename = $1`, name))
	if err != nil {
		return nil, notFoundOr(err, "file", name)
	}
	return rg, nil
}

func (r *radiographRepoPG) Delete(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM radiographs WHERE id = $1`, id)
	return err
}

func (r *radiographRepoPG) ListByPatient(ctx context.Context, patientID int64) ([]*Radiograph, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+radiographCols+` FROM radiographs WHERE patient_id = $1 ORDER BY uploaded_at DESC, id DESC`, patientID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanRadiograph)
}

func (r *radiographRepoPG) ListByTreatment(ctx context.Context, treatmentID int64) ([]*Radiograph, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+radiographCols+` FROM radiographs WHERE treatment_id = $1 ORDER BY uploaded_at DESC, id DESC`, treatmentID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanRadiograph)
}

func (r *radiographRepoPG) ClearCaseRef(ctx context.Context, caseRef int64) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE radiographs SET case_ref = NULL WHERE case_ref = $1`, caseRef)
	return err
}

// =========== Dentist Repository ===========

type dentistRepoPG struct{ pgBase }

const dentistCols = `id, name, specialization, contact, email, joined_on, created_at`

func scanDentist(row pgx.Row) (*Dentist, error) {
	var d Dentist
	err := row.Scan(&d.ID, &d.Name, &d.Specialization, &d.Contact, &d.Email, &d.JoinedOn, &d.CreatedAt)
	return &d, err
}

func (r *dentistRepoPG) Create(ctx context.Context, d *Dentist) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO dentists (name, specialization, contact, email, joined_on, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id`,
		d.Name, d.Specialization, d.Contact, d.Email, d.JoinedOn, d.CreatedAt).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("insert dentist: %w", err)
	}
	return nil
}

func (r *dentistRepoPG) GetByID(ctx context.Context, id int64) (*Dentist, error) {
	d, err := scanDentist(r.conn(ctx).QueryRow(ctx, `SELECT `+dentistCols+` FROM dentists WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "dentist", id)
	}
	return d, nil
}

func (r *dentistRepoPG) Delete(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM dentists WHERE id = $1`, id)
	return err
}

func (r *dentistRepoPG) List(ctx context.Context) ([]*Dentist, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+dentistCols+` FROM dentists ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanDentist)
}
