package identity

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dentaleditapp/tdeclinic-emr/internal/domain/clinical"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
)

var _ clinical.Logins = (*Service)(nil)

// -- Mock Repository --

type mockUserRepo struct {
	users  map[string]*User
	nextID int64
	failOn string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	if u.Username == m.failOn {
		return errors.New("insert failed")
	}
	if _, ok := m.users[u.Username]; ok {
		return apperr.DuplicateKey("user "+u.Username, nil)
	}
	m.nextID++
	u.ID = m.nextID
	cp := *u
	m.users[u.Username] = &cp
	return nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	u, ok := m.users[username]
	if !ok {
		return nil, apperr.NotFound("user", username)
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) DeleteByUsername(_ context.Context, username string) error {
	delete(m.users, username)
	return nil
}

func (m *mockUserRepo) Count(_ context.Context) (int, error) {
	return len(m.users), nil
}

func (m *mockUserRepo) ListByRole(_ context.Context, role auth.Role, query string, limit, offset int) ([]*User, int, error) {
	var result []*User
	for _, u := range m.users {
		if u.Role != role {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(u.Username), strings.ToLower(query)) {
			continue
		}
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
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

type snapshotTx struct{ repo *mockUserRepo }

func (t snapshotTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	saved := make(map[string]*User, len(t.repo.users))
	for k, v := range t.repo.users {
		saved[k] = v
	}
	if err := fn(ctx); err != nil {
		t.repo.users = saved
		return err
	}
	return nil
}

var (
	testKey   = []byte("test-signing-key-0123456789abcdef")
	doctor    = auth.Principal{UserID: 1, Username: "doctor", Role: auth.RoleDoctor}
	patientPr = auth.Principal{UserID: 5, Username: "10001", Role: auth.RolePatient}
)

func newTestService() (*Service, *mockUserRepo, *auth.Tokens) {
	repo := newMockUserRepo()
	tokens := auth.NewTokens(auth.TokenConfig{SigningKey: testKey, Issuer: "test", TTL: time.Hour})
	return NewService(repo, snapshotTx{repo}, tokens, 6, zerolog.Nop()), repo, tokens
}

func TestProvisionPatientLogin(t *testing.T) {
	svc, repo, _ := newTestService()
	pw, err := svc.ProvisionPatientLogin(context.Background(), "10001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pw) != 6 {
		t.Errorf("expected 6-char password, got %q", pw)
	}
	u := repo.users["10001"]
	if u == nil || u.Role != auth.RolePatient {
		t.Fatalf("expected patient user, got %+v", u)
	}
	if u.PasswordHash == pw || !auth.CheckPassword(u.PasswordHash, pw) {
		t.Error("password must be stored hashed")
	}

	if _, err := svc.ProvisionPatientLogin(context.Background(), "10001"); !errors.Is(err, apperr.ErrDuplicateKey) {
		t.Errorf("second provision: expected duplicate key, got %v", err)
	}
	if _, err := svc.ProvisionPatientLogin(context.Background(), "  "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank username: expected validation error, got %v", err)
	}
}

func TestRemoveLogin(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.ProvisionPatientLogin(ctx, "10002"); err != nil {
		t.Fatal(err)
	}
	if err := svc.RemoveLogin(ctx, "10002"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := repo.users["10002"]; ok {
		t.Error("login should be gone")
	}
	if err := svc.RemoveLogin(ctx, "10002"); err != nil {
		t.Errorf("removing a missing login should succeed, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _, tokens := newTestService()
	ctx := context.Background()
	pw, err := svc.ProvisionPatientLogin(ctx, "10001")
	if err != nil {
		t.Fatal(err)
	}

	sess, err := svc.Authenticate(ctx, Credentials{Username: " 10001 ", Password: pw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Role != auth.RolePatient || sess.Username != "10001" {
		t.Errorf("session = %+v", sess)
	}
	p, err := tokens.Parse(sess.Token)
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	if p.Username != "10001" || p.Role != auth.RolePatient || p.UserID == 0 {
		t.Errorf("principal = %+v", p)
	}
}

func TestAuthenticate_Failures(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.ProvisionPatientLogin(ctx, "10001"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		cred Credentials
	}{
		{"wrong password", Credentials{Username: "10001", Password: "nope"}},
		{"unknown user", Credentials{Username: "19999", Password: "nope"}},
		{"blank", Credentials{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authenticate(ctx, tt.cred)
			if !errors.Is(err, apperr.ErrUnauthorized) {
				t.Errorf("expected unauthorized, got %v", err)
			}
			if apperr.PublicMessage(err) != "invalid username or password" {
				t.Errorf("message leaks detail: %q", apperr.PublicMessage(err))
			}
		})
	}
}

func TestSeedStaff(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	seeded, err := svc.SeedStaff(ctx, StaffPasswords{Doctor: "doctor-secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seeded) != 2 {
		t.Fatalf("expected 2 seeded users, got %d", len(seeded))
	}
	if seeded[0].Password != "doctor-secret" {
		t.Errorf("doctor password = %q", seeded[0].Password)
	}
	if len(seeded[1].Password) != seedPasswordLength {
		t.Errorf("generated assistant password = %q", seeded[1].Password)
	}
	if repo.users["assistant"].Role != auth.RoleAssistant {
		t.Error("assistant role not stored")
	}

	if _, err := svc.Authenticate(ctx, Credentials{Username: "doctor", Password: "doctor-secret"}); err != nil {
		t.Errorf("seeded doctor cannot log in: %v", err)
	}

	again, err := svc.SeedStaff(ctx, StaffPasswords{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second seed should be a no-op, got %v", again)
	}
}

func TestSeedStaff_SkipsWhenAnyUserExists(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.ProvisionPatientLogin(ctx, "10001"); err != nil {
		t.Fatal(err)
	}
	seeded, err := svc.SeedStaff(ctx, StaffPasswords{})
	if err != nil {
		t.Fatal(err)
	}
	if len(seeded) != 0 || len(repo.users) != 1 {
		t.Errorf("expected no staff seeded, got %v", seeded)
	}
}

func TestSeedStaff_RollsBack(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.failOn = AssistantUsername
	if _, err := svc.SeedStaff(context.Background(), StaffPasswords{}); err == nil {
		t.Fatal("expected error")
	}
	if len(repo.users) != 0 {
		t.Errorf("expected no users after rollback, got %d", len(repo.users))
	}
}

func TestListPatientLogins(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.SeedStaff(ctx, StaffPasswords{}); err != nil {
		t.Fatal(err)
	}
	for _, u := range []string{"10001", "10002", "10011"} {
		if _, err := svc.ProvisionPatientLogin(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	items, total, err := svc.ListPatientLogins(ctx, doctor, "", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || items[0].Username != "10001" {
		t.Errorf("got %d logins, first %q", total, items[0].Username)
	}

	_, total, _ = svc.ListPatientLogins(ctx, doctor, "1001", 10, 0)
	if total != 1 {
		t.Errorf("filtered total = %d", total)
	}

	if _, _, err := svc.ListPatientLogins(ctx, patientPr, "", 10, 0); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("patient: expected forbidden, got %v", err)
	}
}
