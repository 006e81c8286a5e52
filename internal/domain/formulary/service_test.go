package formulary

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
)

// -- Mock Repository --

type mockRepo struct {
	meds   map[int64]*Medicine
	nextID int64
	failOn string
}

func newMockRepo() *mockRepo {
	return &mockRepo{meds: make(map[int64]*Medicine)}
}

func (m *mockRepo) Create(_ context.Context, med *Medicine) error {
	if m.failOn != "" && med.DrugName == m.failOn {
		return errors.New("insert failed")
	}
	m.nextID++
	med.ID = m.nextID
	cp := *med
	m.meds[med.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Medicine, error) {
	med, ok := m.meds[id]
	if !ok {
		return nil, apperr.NotFound("medicine", id)
	}
	cp := *med
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, med *Medicine) error {
	if _, ok := m.meds[med.ID]; !ok {
		return apperr.NotFound("medicine", med.ID)
	}
	cp := *med
	m.meds[med.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.meds[id]; !ok {
		return apperr.NotFound("medicine", id)
	}
	delete(m.meds, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, query string, limit, offset int) ([]*Medicine, int, error) {
	var result []*Medicine
	q := strings.ToLower(query)
	for _, med := range m.meds {
		if q != "" && !strings.Contains(strings.ToLower(med.DrugName), q) && !strings.Contains(strings.ToLower(med.Category), q) {
			continue
		}
		result = append(result, med)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Category != result[j].Category {
			return result[i].Category < result[j].Category
		}
		if result[i].DrugName != result[j].DrugName {
			return result[i].DrugName < result[j].DrugName
		}
		return result[i].ID < result[j].ID
	})
	total := len(result)
	if offset >= len(result) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], total, nil
}

func (m *mockRepo) Count(_ context.Context) (int, error) {
	return len(m.meds), nil
}

// snapshotTx restores the repository contents when fn fails.
type snapshotTx struct{ repo *mockRepo }

func (t snapshotTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	saved := make(map[int64]*Medicine, len(t.repo.meds))
	for k, v := range t.repo.meds {
		saved[k] = v
	}
	if err := fn(ctx); err != nil {
		t.repo.meds = saved
		return err
	}
	return nil
}

var (
	doctor  = auth.Principal{UserID: 1, Username: "doctor", Role: auth.RoleDoctor}
	patient = auth.Principal{UserID: 9, Username: "10001", Role: auth.RolePatient}
)

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	svc := NewService(repo, snapshotTx{repo}, zerolog.Nop())
	svc.SetClock(func() time.Time { return time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC) })
	return svc, repo
}

func TestAddMedicine_TrimsFields(t *testing.T) {
	svc, _ := newTestService()
	m, err := svc.AddMedicine(context.Background(), doctor, MedicineInput{
		Category: "  Antibiotics ",
		DrugName: " Amoxicillin\t",
		Strength: " 500 mg ",
		Notes:    "   ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID == 0 {
		t.Error("expected ID to be set")
	}
	if m.Category != "Antibiotics" || m.DrugName != "Amoxicillin" || m.Strength != "500 mg" || m.Notes != "" {
		t.Errorf("fields not trimmed: %+v", m)
	}
	if !m.CreatedAt.Equal(time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("created_at = %v", m.CreatedAt)
	}
}

func TestAddMedicine_DrugNameRequired(t *testing.T) {
	svc, repo := newTestService()
	_, err := svc.AddMedicine(context.Background(), doctor, MedicineInput{Category: "Antifungals", DrugName: "   "})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.meds) != 0 {
		t.Error("nothing should be stored")
	}
}

func TestAddMedicine_PatientForbidden(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.AddMedicine(context.Background(), patient, MedicineInput{DrugName: "Ibuprofen"})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestUpdateMedicine(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	m, _ := svc.AddMedicine(ctx, doctor, MedicineInput{DrugName: "Ibuprofen", Strength: "400 mg"})

	got, err := svc.UpdateMedicine(ctx, doctor, m.ID, MedicineInput{DrugName: "Ibuprofen", Strength: " 600 mg "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Strength != "600 mg" {
		t.Errorf("strength = %q", got.Strength)
	}

	if _, err := svc.UpdateMedicine(ctx, doctor, m.ID, MedicineInput{DrugName: ""}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank drug name: expected validation error, got %v", err)
	}
	if _, err := svc.UpdateMedicine(ctx, doctor, 999, MedicineInput{DrugName: "X"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown id: expected not found, got %v", err)
	}
}

func TestDeleteMedicine(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	m, _ := svc.AddMedicine(ctx, doctor, MedicineInput{DrugName: "Fluconazole"})

	if err := svc.DeleteMedicine(ctx, doctor, m.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GetMedicine(ctx, doctor, m.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if err := svc.DeleteMedicine(ctx, doctor, m.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete: expected not found, got %v", err)
	}
}

func TestListMedicines_OrderedByCategoryThenName(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	for _, in := range []MedicineInput{
		{Category: "Painkillers", DrugName: "Paracetamol"},
		{Category: "Antibiotics", DrugName: "Metronidazole"},
		{Category: "Painkillers", DrugName: "Ibuprofen"},
		{Category: "Antibiotics", DrugName: "Amoxicillin"},
	} {
		if _, err := svc.AddMedicine(ctx, doctor, in); err != nil {
			t.Fatal(err)
		}
	}

	items, total, err := svc.ListMedicines(ctx, doctor, "", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 4 {
		t.Fatalf("total = %d", total)
	}
	var names []string
	for _, m := range items {
		names = append(names, m.DrugName)
	}
	want := "Amoxicillin,Metronidazole,Ibuprofen,Paracetamol"
	if strings.Join(names, ",") != want {
		t.Errorf("order = %v, want %s", names, want)
	}

	items, total, _ = svc.ListMedicines(ctx, doctor, "pain", 20, 0)
	if total != 2 || items[0].DrugName != "Ibuprofen" {
		t.Errorf("filtered list = %d items", total)
	}
}

func TestLoadDefaults_OnlyWhenEmpty(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	defaults, err := Defaults()
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}

	res, err := svc.LoadDefaults(ctx, doctor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Inserted != len(defaults) || res.Existing != 0 {
		t.Errorf("first load = %+v, want %d inserted", res, len(defaults))
	}
	if len(repo.meds) != len(defaults) {
		t.Errorf("stored %d medicines", len(repo.meds))
	}

	res, err = svc.LoadDefaults(ctx, doctor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Inserted != 0 || res.Existing != len(defaults) {
		t.Errorf("second load = %+v", res)
	}
}

func TestLoadDefaults_RollsBackOnFailure(t *testing.T) {
	svc, repo := newTestService()
	repo.failOn = "Tranexamic Acid"

	if _, err := svc.LoadDefaults(context.Background(), doctor); err == nil {
		t.Fatal("expected error")
	}
	if len(repo.meds) != 0 {
		t.Errorf("expected empty library after rollback, got %d", len(repo.meds))
	}
}

func TestDefaults_Content(t *testing.T) {
	defaults, err := Defaults()
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}
	if len(defaults) != 50 {
		t.Errorf("expected 50 defaults, got %d", len(defaults))
	}
	first := defaults[0]
	if first.DrugName != "Ibuprofen" || first.Quantity != "10" || first.Category != "Painkillers & Anti-Inflammatories" {
		t.Errorf("first default = %+v", first)
	}
	for _, d := range defaults {
		if strings.TrimSpace(d.DrugName) == "" {
			t.Errorf("default without drug name: %+v", d)
		}
	}
}
