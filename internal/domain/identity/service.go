// Package identity owns clinic logins: staff accounts, the credential
// provisioned for every registered patient and token issue at login.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/db"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/metrics"
)

const (
	DoctorUsername    = "doctor"
	AssistantUsername = "assistant"

	seedPasswordLength = 12
)

var errBadCredentials = apperr.Unauthorized("invalid username or password")

type Service struct {
	users  UserRepository
	tx     db.Transactor
	tokens *auth.Tokens
	logger zerolog.Logger

	tempPasswordLength int
	now                func() time.Time
}

func NewService(users UserRepository, tx db.Transactor, tokens *auth.Tokens, tempPasswordLength int, logger zerolog.Logger) *Service {
	return &Service{
		users:              users,
		tx:                 tx,
		tokens:             tokens,
		logger:             logger.With().Str("component", "identity").Logger(),
		tempPasswordLength: tempPasswordLength,
		now:                time.Now,
	}
}

// ProvisionPatientLogin creates the patient credential for a file number
// and returns its temporary password. The plaintext is never stored.
func (s *Service) ProvisionPatientLogin(ctx context.Context, username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", apperr.ValidationField("username", "is required")
	}
	password, err := auth.TemporaryPassword(s.tempPasswordLength)
	if err != nil {
		return "", err
	}
	if _, err := s.create(ctx, username, password, auth.RolePatient); err != nil {
		return "", err
	}
	return password, nil
}

// RemoveLogin deletes a login. Missing users are not an error.
func (s *Service) RemoveLogin(ctx context.Context, username string) error {
	return s.users.DeleteByUsername(ctx, username)
}

func (s *Service) create(ctx context.Context, username, password string, role auth.Role) (*User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{Username: username, PasswordHash: hash, Role: role, CreatedAt: s.now().UTC()}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate checks a username and password and issues a signed token.
// Unknown users and wrong passwords fail the same way.
func (s *Service) Authenticate(ctx context.Context, cred Credentials) (*Session, error) {
	username := strings.TrimSpace(cred.Username)
	if username == "" || cred.Password == "" {
		metrics.LoginAttempt(false)
		return nil, errBadCredentials
	}
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			metrics.LoginAttempt(false)
			s.logger.Info().Str("username", username).Msg("login failed: unknown user")
			return nil, errBadCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, cred.Password) {
		metrics.LoginAttempt(false)
		s.logger.Info().Str("username", username).Msg("login failed: wrong password")
		return nil, errBadCredentials
	}

	token, exp, err := s.tokens.Issue(u.Principal())
	if err != nil {
		return nil, err
	}
	metrics.LoginAttempt(true)
	return &Session{Token: token, ExpiresAt: exp, Username: u.Username, Role: u.Role}, nil
}

// SeedStaff creates the doctor and assistant logins on a fresh install.
// It does nothing when any user already exists.
func (s *Service) SeedStaff(ctx context.Context, pw StaffPasswords) ([]SeededUser, error) {
	var seeded []SeededUser
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.users.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		for _, st := range []struct {
			username string
			role     auth.Role
			password string
		}{
			{DoctorUsername, auth.RoleDoctor, pw.Doctor},
			{AssistantUsername, auth.RoleAssistant, pw.Assistant},
		} {
			password := st.password
			if password == "" {
				if password, err = auth.TemporaryPassword(seedPasswordLength); err != nil {
					return err
				}
			}
			if _, err := s.create(ctx, st.username, password, st.role); err != nil {
				return err
			}
			seeded = append(seeded, SeededUser{Username: st.username, Role: st.role, Password: password})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(seeded) > 0 {
		s.logger.Info().Int("users", len(seeded)).Msg("staff logins seeded")
	}
	return seeded, nil
}

// ListPatientLogins lists patient credentials for staff.
func (s *Service) ListPatientLogins(ctx context.Context, p auth.Principal, query string, limit, offset int) ([]*User, int, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, 0, err
	}
	return s.users.ListByRole(ctx, auth.RolePatient, strings.TrimSpace(query), limit, offset)
}
