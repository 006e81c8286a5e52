// Package clinicaltest provides an in-memory implementation of the clinical
// repositories and a transactor that rolls back on error, for tests.
package clinicaltest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dentaleditapp/tdeclinic-emr/internal/domain/clinical"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
)

type data struct {
	patients      map[int64]clinical.Patient
	cases         map[int64]clinical.Case
	visits        map[int64]clinical.Visit
	treatments    map[int64]clinical.Treatment
	payments      map[int64]clinical.Payment
	followups     map[int64]clinical.FollowUp
	prescriptions map[int64]clinical.Prescription // keyed by visit id
	radiographs   map[int64]clinical.Radiograph
	dentists      map[int64]clinical.Dentist
}

func newData() data {
	return data{
		patients:      map[int64]clinical.Patient{},
		cases:         map[int64]clinical.Case{},
		visits:        map[int64]clinical.Visit{},
		treatments:    map[int64]clinical.Treatment{},
		payments:      map[int64]clinical.Payment{},
		followups:     map[int64]clinical.FollowUp{},
		prescriptions: map[int64]clinical.Prescription{},
		radiographs:   map[int64]clinical.Radiograph{},
		dentists:      map[int64]clinical.Dentist{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d data) clone() data {
	return data{
		patients:      cloneMap(d.patients),
		cases:         cloneMap(d.cases),
		visits:        cloneMap(d.visits),
		treatments:    cloneMap(d.treatments),
		payments:      cloneMap(d.payments),
		followups:     cloneMap(d.followups),
		prescriptions: cloneMap(d.prescriptions),
		radiographs:   cloneMap(d.radiographs),
		dentists:      cloneMap(d.dentists),
	}
}

// Store holds every clinical table in memory. The zero value is not usable;
// call New.
type Store struct {
	mu     sync.Mutex
	nextID int64
	d      data
	fail   map[string]error

	// Commits and Rollbacks count finished outermost transactions.
	Commits   int
	Rollbacks int
}

func New() *Store {
	return &Store{d: newData(), fail: map[string]error{}}
}

// FailOn makes the named operation, such as "visits.Delete", return err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = err
}

func (s *Store) check(op string) error {
	return s.fail[op]
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

type txKey struct{}

// WithinTx snapshots the tables, runs fn and restores the snapshot if fn
// fails. Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	snap := s.d.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.d = snap
		s.Rollbacks++
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.Commits++
	s.mu.Unlock()
	return nil
}

// Stores returns repositories backed by s.
func (s *Store) Stores() clinical.Stores {
	return clinical.Stores{
		Patients:      patientRepo{s},
		Cases:         caseRepo{s},
		Visits:        visitRepo{s},
		Treatments:    treatmentRepo{s},
		Payments:      paymentRepo{s},
		FollowUps:     followUpRepo{s},
		Prescriptions: prescriptionRepo{s},
		Radiographs:   radiographRepo{s},
		Dentists:      dentistRepo{s},
	}
}

// Counts reports the number of rows per table.
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := 0
	for _, p := range s.d.prescriptions {
		items += len(p.Items)
	}
	return map[string]int{
		"patients":           len(s.d.patients),
		"cases":              len(s.d.cases),
		"visits":             len(s.d.visits),
		"treatments":         len(s.d.treatments),
		"payments":           len(s.d.payments),
		"followups":          len(s.d.followups),
		"prescriptions":      len(s.d.prescriptions),
		"prescription_items": items,
		"radiographs":        len(s.d.radiographs),
		"dentists":           len(s.d.dentists),
	}
}

func ptr(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func eq(p *int64, v int64) bool {
	return p != nil && *p == v
}

func sortDesc[T any](items []*T, date func(*T) string, id func(*T) int64) {
	sort.Slice(items, func(i, j int) bool {
		if di, dj := date(items[i]), date(items[j]); di != dj {
			return di > dj
		}
		return id(items[i]) > id(items[j])
	})
}

// =========== Patients ===========

type patientRepo struct{ s *Store }

func clonePatient(p clinical.Patient) *clinical.Patient {
	p.Dental.PreviousTreatments = append([]string(nil), p.Dental.PreviousTreatments...)
	return &p
}

func (r patientRepo) Create(_ context.Context, p *clinical.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("patients.Create"); err != nil {
		return err
	}
	p.ID = r.s.id()
	r.s.d.patients[p.ID] = *clonePatient(*p)
	return nil
}

func (r patientRepo) SetFileNo(_ context.Context, id int64, fileNo string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.d.patients {
		if other.ID != id && other.FileNo == fileNo {
			return apperr.DuplicateKey("file number "+fileNo, nil)
		}
	}
	p, ok := r.s.d.patients[id]
	if !ok {
		return apperr.NotFound("patient", id)
	}
	p.FileNo = fileNo
	r.s.d.patients[id] = p
	return nil
}

func (r patientRepo) GetByID(_ context.Context, id int64) (*clinical.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.d.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient", id)
	}
	return clonePatient(p), nil
}

func (r patientRepo) GetByFileNo(_ context.Context, fileNo string) (*clinical.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.d.patients {
		if p.FileNo == fileNo {
			return clonePatient(p), nil
		}
	}
	return nil, apperr.NotFound("patient", fileNo)
}

func (r patientRepo) Update(_ context.Context, p *clinical.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.d.patients[p.ID]; !ok {
		return apperr.NotFound("patient", p.ID)
	}
	r.s.d.patients[p.ID] = *clonePatient(*p)
	return nil
}

func (r patientRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("patients.Delete"); err != nil {
		return err
	}
	delete(r.s.d.patients, id)
	return nil
}

func (r patientRepo) List(_ context.Context, query string, limit, offset int) ([]*clinical.Patient, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(query))
	var all []*clinical.Patient
	for _, p := range r.s.d.patients {
		if q == "" || strings.Contains(strings.ToLower(p.FullName), q) ||
			strings.Contains(p.FileNo, q) || strings.Contains(p.Contact, q) {
			all = append(all, clonePatient(p))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// =========== Cases ===========

type caseRepo struct{ s *Store }

func (r caseRepo) Create(_ context.Context, c *clinical.Case) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("cases.Create"); err != nil {
		return err
	}
	for _, other := range r.s.d.cases {
		if other.CaseID == c.CaseID {
			return apperr.DuplicateKey("case "+c.CaseID, nil)
		}
	}
	c.ID = r.s.id()
	r.s.d.cases[c.ID] = *c
	return nil
}

func (r caseRepo) GetByID(_ context.Context, id int64) (*clinical.Case, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.d.cases[id]
	if !ok {
		return nil, apperr.NotFound("case", id)
	}
	return &c, nil
}

func (r caseRepo) GetByCaseID(_ context.Context, caseID string) (*clinical.Case, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.d.cases {
		if c.CaseID == caseID {
			return &c, nil
		}
	}
	return nil, apperr.NotFound("case", caseID)
}

func (r caseRepo) Update(_ context.Context, c *clinical.Case) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.d.cases[c.ID]; !ok {
		return apperr.NotFound("case", c.ID)
	}
	r.s.d.cases[c.ID] = *c
	return nil
}

func (r caseRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.d.cases, id)
	return nil
}

func (r caseRepo) ListByPatient(_ context.Context, patientID int64) ([]*clinical.Case, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*clinical.Case
	for _, c := range r.s.d.cases {
		if c.PatientID == patientID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r caseRepo) CountWithPrefix(_ context.Context, patientID int64, prefix string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, c := range r.s.d.cases {
		if c.PatientID == patientID && strings.HasPrefix(c.CaseID, prefix) {
			n++
		}
	}
	return n, nil
}

// =========== Visits ===========

type visitRepo struct{ s *Store }

func (r visitRepo) Create(_ context.Context, v *clinical.Visit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("visits.Create"); err != nil {
		return err
	}
	v.ID = r.s.id()
	c := *v
	c.DentistID = ptr(v.DentistID)
	r.s.d.visits[v.ID] = c
	return nil
}

func (r visitRepo) GetByID(_ context.Context, id int64) (*clinical.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.d.visits[id]
	if !ok {
		return nil, apperr.NotFound("visit", id)
	}
	v.DentistID = ptr(v.DentistID)
	return &v, nil
}

func (r visitRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("visits.Delete"); err != nil {
		return err
	}
	delete(r.s.d.visits, id)
	return nil
}

func (r visitRepo) ListByPatient(_ context.Context, patientID int64) ([]*clinical.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*clinical.Visit
	for _, v := range r.s.d.visits {
		if v.PatientID == patientID {
			v := v
			v.DentistID = ptr(v.DentistID)
			out = append(out, &v)
		}
	}
	sortDesc(out, func(v *clinical.Visit) string { return v.VisitDate }, func(v *clinical.Visit) int64 { return v.ID })
	return out, nil
}

// =========== Treatments ===========

type treatmentRepo struct{ s *Store }

func cloneTreatment(t clinical.Treatment) *clinical.Treatment {
	t.CaseRef = ptr(t.CaseRef)
	t.ParentID = ptr(t.ParentID)
	t.DentistID = ptr(t.DentistID)
	t.Details.Canals = append([]clinical.CanalMeasurement(nil), t.Details.Canals...)
	return &t
}

func (r treatmentRepo) Create(_ context.Context, t *clinical.Treatment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("treatments.Create"); err != nil {
		return err
	}
	t.ID = r.s.id()
	r.s.d.treatments[t.ID] = *cloneTreatment(*t)
	return nil
}

func (r treatmentRepo) GetByID(_ context.Context, id int64) (*clinical.Treatment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.d.treatments[id]
	if !ok {
		return nil, apperr.NotFound("treatment", id)
	}
	return cloneTreatment(t), nil
}

func (r treatmentRepo) Update(_ context.Context, t *clinical.Treatment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("treatments.Update"); err != nil {
		return err
	}
	if _, ok := r.s.d.treatments[t.ID]; !ok {
		return apperr.NotFound("treatment", t.ID)
	}
	r.s.d.treatments[t.ID] = *cloneTreatment(*t)
	return nil
}

func (r treatmentRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("treatments.Delete"); err != nil {
		return err
	}
	delete(r.s.d.treatments, id)
	return nil
}

func (r treatmentRepo) filter(keep func(clinical.Treatment) bool) []*clinical.Treatment {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*clinical.Treatment
	for _, t := range r.s.d.treatments {
		if keep(t) {
			out = append(out, cloneTreatment(t))
		}
	}
	sortDesc(out, func(t *clinical.Treatment) string { return t.Date }, func(t *clinical.Treatment) int64 { return t.ID })
	return out
}

func (r treatmentRepo) ListByPatient(_ context.Context, patientID int64) ([]*clinical.Treatment, error) {
	return r.filter(func(t clinical.Treatment) bool { return t.PatientID == patientID }), nil
}

func (r treatmentRepo) ListByVisit(_ context.Context, visitID int64) ([]*clinical.Treatment, error) {
	return r.filter(func(t clinical.Treatment) bool { return t.VisitID == visitID }), nil
}

func (r treatmentRepo) ListByCase(_ context.Context, caseRef int64) ([]*clinical.Treatment, error) {
	return r.filter(func(t clinical.Treatment) bool { return eq(t.CaseRef, caseRef) }), nil
}

func (r treatmentRepo) SumAmountByPatient(_ context.Context, patientID int64) (float64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total float64
	for _, t := range r.s.d.treatments {
		if t.PatientID == patientID {
			total += t.Amount
		}
	}
	return total, nil
}

func (r treatmentRepo) FeeTotals(_ context.Context) (map[int64]float64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[int64]float64{}
	for _, t := range r.s.d.treatments {
		out[t.PatientID] += t.Amount
	}
	return out, nil
}

func (r treatmentRepo) ListDue(_ context.Context, from string) ([]*clinical.DueAppointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*clinical.DueAppointment
	for _, t := range r.s.d.treatments {
		if t.NextAppointment == "" || t.NextAppointment < from {
			continue
		}
		p, ok := r.s.d.patients[t.PatientID]
		if !ok {
			continue
		}
		out = append(out, &clinical.DueAppointment{
			TreatmentID:     t.ID,
			PatientID:       t.PatientID,
			PatientName:     p.FullName,
			FileNo:          p.FileNo,
			Contact:         p.Contact,
			Treatment:       t.Type,
			ToothNumber:     t.ToothNumber,
			Doctor:          t.Doctor,
			NextAppointment: t.NextAppointment,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextAppointment != out[j].NextAppointment {
			return out[i].NextAppointment < out[j].NextAppointment
		}
		return out[i].TreatmentID < out[j].TreatmentID
	})
	return out, nil
}

func (r treatmentRepo) PatientsPerDoctor(_ context.Context) ([]clinical.DoctorLoad, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[string]map[int64]bool{}
	for _, t := range r.s.d.treatments {
		if t.Doctor == "" {
			continue
		}
		if seen[t.Doctor] == nil {
			seen[t.Doctor] = map[int64]bool{}
		}
		seen[t.Doctor][t.PatientID] = true
	}
	out := make([]clinical.DoctorLoad, 0, len(seen))
	for doctor, patients := range seen {
		out = append(out, clinical.DoctorLoad{Doctor: doctor, Patients: len(patients)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Patients != out[j].Patients {
			return out[i].Patients > out[j].Patients
		}
		return out[i].Doctor < out[j].Doctor
	})
	return out, nil
}

// =========== Payments ===========

type paymentRepo struct{ s *Store }

func clonePayment(p clinical.Payment) *clinical.Payment {
	p.TreatmentID = ptr(p.TreatmentID)
	p.CaseRef = ptr(p.CaseRef)
	return &p
}

func (r paymentRepo) Create(_ context.Context, p *clinical.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("payments.Create"); err != nil {
		return err
	}
	p.ID = r.s.id()
	r.s.d.payments[p.ID] = *clonePayment(*p)
	return nil
}

func (r paymentRepo) GetByID(_ context.Context, id int64) (*clinical.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.d.payments[id]
	if !ok {
		return nil, apperr.NotFound("payment", id)
	}
	return clonePayment(p), nil
}

func (r paymentRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.d.payments, id)
	return nil
}

func (r paymentRepo) list(keep func(clinical.Payment) bool) []*clinical.Payment {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*clinical.Payment
	for _, p := range r.s.d.payments {
		if keep(p) {
			out = append(out, clonePayment(p))
		}
	}
	sortDesc(out, func(p *clinical.Payment) string { return p.Date }, func(p *clinical.Payment) int64 { return p.ID })
	return out
}

func (r paymentRepo) ListByPatient(_ context.Context, patientID int64) ([]*clinical.Payment, error) {
	return r.list(func(p clinical.Payment) bool { return p.PatientID == patientID }), nil
}

func (r paymentRepo) ListByTreatment(_ context.Context, treatmentID int64) ([]*clinical.Payment, error) {
	return r.list(func(p clinical.Payment) bool { return eq(p.TreatmentID, treatmentID) }), nil
}

func (r paymentRepo) deleteWhere(op string, match func(clinical.Payment) bool) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(op); err != nil {
		return 0, err
	}
	n := 0
	for id, p := range r.s.d.payments {
		if match(p) {
			delete(r.s.d.payments, id)
			n++
		}
	}
	return n, nil
}

func (r paymentRepo) DeleteByTreatment(_ context.Context, treatmentID int64) (int, error) {
	return r.deleteWhere("payments.DeleteByTreatment", func(p clinical.Payment) bool { return eq(p.TreatmentID, treatmentID) })
}

func (r paymentRepo) DeleteByPatient(_ context.Context, patientID int64) (int, error) {
	return r.deleteWhere("payments.DeleteByPatient", func(p clinical.Payment) bool { return p.PatientID == patientID })
}

func (r paymentRepo) ClearCaseRef(_ context.Context, caseRef int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, p := range r.s.d.payments {
		if eq(p.CaseRef, caseRef) {
			p.CaseRef = nil
			r.s.d.payments[id] = p
		}
	}
	return nil
}

func (r paymentRepo) SumPaidByPatient(_ context.Context, patientID int64) (float64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total float64
	for _, p := range r.s.d.payments {
		if p.PatientID == patientID {
			total += p.AmountPaid
		}
	}
	return total, nil
}

func (r paymentRepo) PaidTotals(_ context.Context) (map[int64]float64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[int64]float64{}
	for _, p := range r.s.d.payments {
		out[p.PatientID] += p.AmountPaid
	}
	return out, nil
}

// =========== Follow-ups ===========

type followUpRepo struct{ s *Store }

func (r followUpRepo) Create(_ context.Context, f *clinical.FollowUp) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("followups.Create"); err != nil {
		return err
	}
	f.ID = r.s.id()
	r.s.d.followups[f.ID] = *f
	return nil
}

func (r followUpRepo) GetByID(_ context.Context, id int64) (*clinical.FollowUp, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.d.followups[id]
	if !ok {
		return nil, apperr.NotFound("follow-up", id)
	}
	return &f, nil
}

func (r followUpRepo) Update(_ context.Context, f *clinical.FollowUp) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.d.followups[f.ID]; !ok {
		return apperr.NotFound("follow-up", f.ID)
	}
	r.s.d.followups[f.ID] = *f
	return nil
}

func (r followUpRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.d.followups, id)
	return nil
}

func (r followUpRepo) ListByTreatment(_ context.Context, treatmentID int64) ([]*clinical.FollowUp, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*clinical.FollowUp
	for _, f := range r.s.d.followups {
		if f.TreatmentID == treatmentID {
			f := f
			out = append(out, &f)
		}
	}
	sortDesc(out, func(f *clinical.FollowUp) string { return f.Date }, func(f *clinical.FollowUp) int64 { return f.ID })
	return out, nil
}

func (r followUpRepo) DeleteByTreatment(_ context.Context, treatmentID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for id, f := range r.s.d.followups {
		if f.TreatmentID == treatmentID {
			delete(r.s.d.followups, id)
			n++
		}
	}
	return n, nil
}

// =========== Prescriptions ===========

type prescriptionRepo struct{ s *Store }

func clonePrescription(p clinical.Prescription) *clinical.Prescription {
	p.Items = append([]clinical.PrescriptionItem{}, p.Items...)
	return &p
}

func (r prescriptionRepo) GetByVisit(_ context.Context, visitID int64) (*clinical.Prescription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.d.prescriptions[visitID]
	if !ok {
		return nil, apperr.NotFound("prescription", visitID)
	}
	return clonePrescription(p), nil
}

func (r prescriptionRepo) Save(_ context.Context, p *clinical.Prescription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("prescriptions.Save"); err != nil {
		return err
	}
	if existing, ok := r.s.d.prescriptions[p.VisitID]; ok {
		p.ID = existing.ID
	} else {
		p.ID = r.s.id()
	}
	r.s.d.prescriptions[p.VisitID] = *clonePrescription(*p)
	return nil
}

func (r prescriptionRepo) DeleteByVisit(_ context.Context, visitID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.d.prescriptions, visitID)
	return nil
}

// =========== Radiographs ===========

type radiographRepo struct{ s *Store }

func cloneRadiograph(rg clinical.Radiograph) *clinical.Radiograph {
	rg.TreatmentID = ptr(rg.TreatmentID)
	rg.CaseRef = ptr(rg.CaseRef)
	return &rg
}

func (r radiographRepo) Create(_ context.Context, rg *clinical.Radiograph) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("radiographs.Create"); err != nil {
		return err
	}
	for _, other := range r.s.d.radiographs {
		if other.Filename == rg.Filename {
			return apperr.DuplicateKey("file "+rg.Filename, nil)
		}
	}
	rg.ID = r.s.id()
	r.s.d.radiographs[rg.ID] = *cloneRadiograph(*rg)
	return nil
}

func (r radiographRepo) GetByID(_ context.Context, id int64) (*clinical.Radiograph, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rg, ok := r.s.d.radiographs[id]
	if !ok {
		return nil, apperr.NotFound("file", id)
	}
	return cloneRadiograph(rg), nil
}

func (r radiographRepo) GetByFilename(_ context.Context, name string) (*clinical.Radiograph, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rg := range r.s.d.radiographs {
		if rg.Filename == name {
			return cloneRadiograph(rg), nil
		}
	}
	return nil, apperr.NotFound("file", name)
}

func (r radiographRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("radiographs.Delete"); err != nil {
		return err
	}
	delete(r.s.d.radiographs, id)
	return nil
}

func (r radiographRepo) list(keep func(clinical.Radiograph) bool) []*clinical.Radiograph {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*clinical.Radiograph
	for _, rg := range r.s.d.radiographs {
		if keep(rg) {
			out = append(out, cloneRadiograph(rg))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r radiographRepo) ListByPatient(_ context.Context, patientID int64) ([]*clinical.Radiograph, error) {
	return r.list(func(rg clinical.Radiograph) bool { return rg.PatientID == patientID }), nil
}

func (r radiographRepo) ListByTreatment(_ context.Context, treatmentID int64) ([]*clinical.Radiograph, error) {
	return r.list(func(rg clinical.Radiograph) bool { return eq(rg.TreatmentID, treatmentID) }), nil
}

func (r radiographRepo) ClearCaseRef(_ context.Context, caseRef int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, rg := range r.s.d.radiographs {
		if eq(rg.CaseRef, caseRef) {
			rg.CaseRef = nil
			r.s.d.radiographs[id] = rg
		}
	}
	return nil
}

// =========== Dentists ===========

type dentistRepo struct{ s *Store }

func (r dentistRepo) Create(_ context.Context, d *clinical.Dentist) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d.ID = r.s.id()
	r.s.d.dentists[d.ID] = *d
	return nil
}

func (r dentistRepo) GetByID(_ context.Context, id int64) (*clinical.Dentist, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.d.dentists[id]
	if !ok {
		return nil, apperr.NotFound("dentist", id)
	}
	return &d, nil
}

func (r dentistRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.d.dentists, id)
	return nil
}

func (r dentistRepo) List(_ context.Context) ([]*clinical.Dentist, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*clinical.Dentist
	for _, d := range r.s.d.dentists {
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
