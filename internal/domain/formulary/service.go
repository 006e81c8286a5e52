// Package formulary manages the medicine library prescriptions are written
// from.
package formulary

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/db"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/metrics"
)

//go:embed data/defaults.yaml
var defaultsYAML []byte

// Defaults returns the built-in medicine list.
func Defaults() ([]MedicineInput, error) {
	var list []MedicineInput
	if err := yaml.Unmarshal(defaultsYAML, &list); err != nil {
		return nil, fmt.Errorf("parse default medicines: %w", err)
	}
	return list, nil
}

type Service struct {
	repo   Repository
	tx     db.Transactor
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		logger: logger.With().Str("component", "formulary").Logger(),
		now:    time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) AddMedicine(ctx context.Context, p auth.Principal, in MedicineInput) (*Medicine, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	in, err := in.Validate()
	if err != nil {
		return nil, err
	}
	m := &Medicine{CreatedAt: s.now().UTC()}
	m.apply(in)
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	metrics.RecordCreated("medicine")
	return m, nil
}

func (s *Service) GetMedicine(ctx context.Context, p auth.Principal, id int64) (*Medicine, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateMedicine(ctx context.Context, p auth.Principal, id int64, in MedicineInput) (*Medicine, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	in, err := in.Validate()
	if err != nil {
		return nil, err
	}
	var m *Medicine
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if m, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		m.apply(in)
		return s.repo.Update(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) DeleteMedicine(ctx context.Context, p auth.Principal, id int64) error {
	if err := auth.RequireStaff(p); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	metrics.RecordDeleted("medicine", 1)
	return nil
}

func (s *Service) ListMedicines(ctx context.Context, p auth.Principal, query string, limit, offset int) ([]*Medicine, int, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, query, limit, offset)
}

// LoadDefaults fills an empty library with the built-in list. A library
// that already has entries is left untouched and its size is reported.
func (s *Service) LoadDefaults(ctx context.Context, p auth.Principal) (LoadResult, error) {
	if err := auth.RequireStaff(p); err != nil {
		return LoadResult{}, err
	}
	defaults, err := Defaults()
	if err != nil {
		return LoadResult{}, err
	}

	var res LoadResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.repo.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			res.Existing = n
			return nil
		}
		now := s.now().UTC()
		for _, in := range defaults {
			in, err := in.Validate()
			if err != nil {
				return err
			}
			m := &Medicine{CreatedAt: now}
			m.apply(in)
			if err := s.repo.Create(ctx, m); err != nil {
				return err
			}
			res.Inserted++
		}
		return nil
	})
	if err != nil {
		return LoadResult{}, err
	}
	if res.Inserted > 0 {
		s.logger.Info().Int("inserted", res.Inserted).Msg("default medicines loaded")
	}
	return res, nil
}
