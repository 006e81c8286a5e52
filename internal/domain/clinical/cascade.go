package clinical

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/metrics"
)

// cascade collects the rows and files removed by one delete. Rows are
// deleted inside the transaction; files are removed by finish only after
// it committed, so no surviving row names a removed file.
type cascade struct {
	s       *Service
	files   []string
	seen    map[string]bool
	removed map[string]int
}

func (s *Service) newCascade() *cascade {
	return &cascade{s: s, seen: make(map[string]bool), removed: make(map[string]int)}
}

func (c *cascade) addFile(name string) {
	if name == "" || c.seen[name] {
		return
	}
	c.seen[name] = true
	c.files = append(c.files, name)
}

func (c *cascade) count(entity string, n int) {
	if n > 0 {
		c.removed[entity] += n
	}
}

// treatment deletes one treatment: follow-ups, payments, radiographs, then
// the row itself. Children must already be gone.
func (c *cascade) treatment(ctx context.Context, t *Treatment) error {
	st := c.s.st

	fus, err := st.FollowUps.ListByTreatment(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("list follow-ups of treatment %d: %w", t.ID, err)
	}
	for _, f := range fus {
		c.addFile(f.Attachment)
	}
	n, err := st.FollowUps.DeleteByTreatment(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("delete follow-ups of treatment %d: %w", t.ID, err)
	}
	c.count("followup", n)

	if n, err = st.Payments.DeleteByTreatment(ctx, t.ID); err != nil {
		return fmt.Errorf("delete payments of treatment %d: %w", t.ID, err)
	}
	c.count("payment", n)

	rads, err := st.Radiographs.ListByTreatment(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("list files of treatment %d: %w", t.ID, err)
	}
	for _, r := range rads {
		if err := st.Radiographs.Delete(ctx, r.ID); err != nil {
			return fmt.Errorf("delete file record %d: %w", r.ID, err)
		}
		c.addFile(r.Filename)
	}
	c.count("radiograph", len(rads))

	if err := st.Treatments.Delete(ctx, t.ID); err != nil {
		return fmt.Errorf("delete treatment %d: %w", t.ID, err)
	}
	c.addFile(t.Attachment)
	c.count("treatment", 1)
	return nil
}

func (c *cascade) treatments(ctx context.Context, ordered []*Treatment) error {
	for _, t := range ordered {
		if err := c.treatment(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// visit deletes the visit's treatment subtrees, its prescription and the
// visit row.
func (c *cascade) visit(ctx context.Context, v *Visit, idx *TreatmentIndex) error {
	var roots []int64
	for _, t := range idx.nodes {
		if t.VisitID == v.ID {
			roots = append(roots, t.ID)
		}
	}
	if err := c.treatments(ctx, idx.DeletionOrder(roots...)); err != nil {
		return err
	}
	if err := c.s.st.Prescriptions.DeleteByVisit(ctx, v.ID); err != nil {
		return fmt.Errorf("delete prescription of visit %d: %w", v.ID, err)
	}
	if err := c.s.st.Visits.Delete(ctx, v.ID); err != nil {
		return fmt.Errorf("delete visit %d: %w", v.ID, err)
	}
	c.addFile(v.Attachment)
	c.count("visit", 1)
	return nil
}

// finish removes collected files and reports any that could not be
// removed as a CascadeFailure.
func (c *cascade) finish(ctx context.Context, entity string, p auth.Principal) error {
	for e, n := range c.removed {
		metrics.RecordDeleted(e, n)
	}

	var errs error
	var leftovers []string
	for _, name := range c.files {
		if err := c.s.files.Remove(ctx, name); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("remove %s: %w", name, err))
			leftovers = append(leftovers, name)
		}
	}
	if errs == nil {
		c.s.logger.Info().Str("entity", entity).Int("files", len(c.files)).Str("by", p.Username).Msg("deleted")
		return nil
	}

	metrics.CascadeFailure(entity)
	c.s.logger.Error().Err(errs).Str("entity", entity).Strs("leftovers", leftovers).
		Msg("records deleted but stored files remain")
	return apperr.CascadeFailure(entity, leftovers, errs)
}

func (s *Service) DeleteTreatment(ctx context.Context, p auth.Principal, id int64) error {
	if err := auth.RequireStaff(p); err != nil {
		return err
	}
	c := s.newCascade()
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := s.st.Treatments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		all, err := s.st.Treatments.ListByPatient(ctx, t.PatientID)
		if err != nil {
			return err
		}
		return c.treatments(ctx, NewTreatmentIndex(all).Subtree(id))
	})
	if err != nil {
		return err
	}
	return c.finish(ctx, "treatment", p)
}

func (s *Service) DeleteVisit(ctx context.Context, p auth.Principal, id int64) error {
	if err := auth.RequireStaff(p); err != nil {
		return err
	}
	c := s.newCascade()
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		v, err := s.st.Visits.GetByID(ctx, id)
		if err != nil {
			return err
		}
		all, err := s.st.Treatments.ListByPatient(ctx, v.PatientID)
		if err != nil {
			return err
		}
		return c.visit(ctx, v, NewTreatmentIndex(all))
	})
	if err != nil {
		return err
	}
	return c.finish(ctx, "visit", p)
}

// DeleteCase deletes the case's treatments and unlinks payments and files
// that still point at it.
func (s *Service) DeleteCase(ctx context.Context, p auth.Principal, id int64) error {
	if err := auth.RequireStaff(p); err != nil {
		return err
	}
	c := s.newCascade()
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		cs, err := s.st.Cases.GetByID(ctx, id)
		if err != nil {
			return err
		}
		all, err := s.st.Treatments.ListByPatient(ctx, cs.PatientID)
		if err != nil {
			return err
		}
		var roots []int64
		for _, t := range all {
			if t.CaseRef != nil && *t.CaseRef == id {
				roots = append(roots, t.ID)
			}
		}
		if err := c.treatments(ctx, NewTreatmentIndex(all).DeletionOrder(roots...)); err != nil {
			return err
		}
		if err := s.st.Payments.ClearCaseRef(ctx, id); err != nil {
			return err
		}
		if err := s.st.Radiographs.ClearCaseRef(ctx, id); err != nil {
			return err
		}
		if err := s.st.Cases.Delete(ctx, id); err != nil {
			return err
		}
		c.count("case", 1)
		return nil
	})
	if err != nil {
		return err
	}
	return c.finish(ctx, "case", p)
}

// DeletePatient removes the patient and everything filed under it,
// including the patient's login.
func (s *Service) DeletePatient(ctx context.Context, p auth.Principal, id int64) error {
	if err := auth.RequireStaff(p); err != nil {
		return err
	}
	c := s.newCascade()
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		pt, err := s.st.Patients.GetByID(ctx, id)
		if err != nil {
			return err
		}
		all, err := s.st.Treatments.ListByPatient(ctx, id)
		if err != nil {
			return err
		}
		idx := NewTreatmentIndex(all)
		ids := make([]int64, 0, len(all))
		for _, t := range all {
			ids = append(ids, t.ID)
		}
		if err := c.treatments(ctx, idx.DeletionOrder(ids...)); err != nil {
			return err
		}

		n, err := s.st.Payments.DeleteByPatient(ctx, id)
		if err != nil {
			return err
		}
		c.count("payment", n)

		rads, err := s.st.Radiographs.ListByPatient(ctx, id)
		if err != nil {
			return err
		}
		for _, r := range rads {
			if err := s.st.Radiographs.Delete(ctx, r.ID); err != nil {
				return err
			}
			c.addFile(r.Filename)
		}
		c.count("radiograph", len(rads))

		visits, err := s.st.Visits.ListByPatient(ctx, id)
		if err != nil {
			return err
		}
		empty := NewTreatmentIndex(nil)
		for _, v := range visits {
			if err := c.visit(ctx, v, empty); err != nil {
				return err
			}
		}

		cases, err := s.st.Cases.ListByPatient(ctx, id)
		if err != nil {
			return err
		}
		for _, cs := range cases {
			if err := s.st.Cases.Delete(ctx, cs.ID); err != nil {
				return err
			}
		}
		c.count("case", len(cases))

		if err := s.st.Patients.Delete(ctx, id); err != nil {
			return err
		}
		c.count("patient", 1)

		if s.logins != nil && pt.FileNo != "" {
			return s.logins.RemoveLogin(ctx, pt.FileNo)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return c.finish(ctx, "patient", p)
}

func (s *Service) DeleteFollowUp(ctx context.Context, p auth.Principal, id int64) error {
	if err := auth.RequireStaff(p); err != nil {
		return err
	}
	c := s.newCascade()
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		f, err := s.st.FollowUps.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.st.FollowUps.Delete(ctx, id); err != nil {
			return err
		}
		c.addFile(f.Attachment)
		c.count("followup", 1)
		return nil
	})
	if err != nil {
		return err
	}
	return c.finish(ctx, "followup", p)
}

// DeletePayment removes one payment. Balances are recomputed on read so
// nothing else changes.
func (s *Service) DeletePayment(ctx context.Context, p auth.Principal, id int64) error {
	if err := auth.RequireStaff(p); err != nil {
		return err
	}
	if _, err := s.st.Payments.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.st.Payments.Delete(ctx, id); err != nil {
		return err
	}
	metrics.RecordDeleted("payment", 1)
	return nil
}
