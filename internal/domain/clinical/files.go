package clinical

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/blobstore"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/idgen"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/metrics"
)

// Upload is one file received from a client.
type Upload struct {
	Name    string
	Content io.Reader
}

func checkUpload(u *Upload) error {
	if u == nil || strings.TrimSpace(u.Name) == "" || u.Content == nil {
		return apperr.ValidationField("file", "no file selected")
	}
	if err := blobstore.CheckExtension(u.Name); err != nil {
		return apperr.ValidationField("file", "only png, jpg, jpeg and pdf files are allowed")
	}
	return nil
}

func checkOptionalUpload(u *Upload) error {
	if u == nil {
		return nil
	}
	return checkUpload(u)
}

// pendingFiles tracks files written during a transaction so they can be
// removed if it does not commit.
type pendingFiles struct {
	saved []string
}

// mutate runs fn in a transaction and removes any file fn stored when the
// transaction fails.
func (s *Service) mutate(ctx context.Context, fn func(ctx context.Context, pf *pendingFiles) error) error {
	pf := &pendingFiles{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return fn(ctx, pf)
	})
	if err != nil {
		for _, name := range pf.saved {
			if rerr := s.files.Remove(ctx, name); rerr != nil {
				s.logger.Warn().Err(rerr).Str("file", name).Msg("remove file of failed write")
			}
		}
	}
	return err
}

// maxNameAttempts bounds redraws of the file name suffix when the generated
// name is already taken in the store.
const maxNameAttempts = 5

func (s *Service) freeName(ctx context.Context, original string) (string, error) {
	now := s.now()
	for attempt := 1; ; attempt++ {
		name := idgen.FileName(now, s.suffix(), original)
		taken, err := s.files.Exists(ctx, name)
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
		if attempt == maxNameAttempts {
			return "", apperr.DuplicateKey("file "+name, nil)
		}
		s.logger.Debug().Str("file", name).Int("attempt", attempt).Msg("file name taken, redrawing suffix")
	}
}

func (s *Service) storeUpload(ctx context.Context, pf *pendingFiles, u *Upload) (string, error) {
	name, err := s.freeName(ctx, u.Name)
	if err != nil {
		return "", err
	}
	if _, err := s.files.Save(ctx, name, u.Content); err != nil {
		switch {
		case errors.Is(err, blobstore.ErrFileTooLarge):
			return "", apperr.ValidationField("file", "file is too large")
		case errors.Is(err, blobstore.ErrDisallowedExtension):
			return "", apperr.ValidationField("file", "only png, jpg, jpeg and pdf files are allowed")
		}
		return "", err
	}
	pf.saved = append(pf.saved, name)
	return name, nil
}

type UploadInput struct {
	PatientID   int64  `json:"patient_id"`
	TreatmentID *int64 `json:"treatment_id,omitempty"`
	CaseRef     *int64 `json:"case_ref,omitempty"`
}

// UploadFiles stores one or more radiographs for a patient. Every file is
// checked before anything is written.
func (s *Service) UploadFiles(ctx context.Context, p auth.Principal, in UploadInput, uploads []*Upload) ([]*Radiograph, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, apperr.ValidationField("file", "no file selected")
	}
	for _, u := range uploads {
		if err := checkUpload(u); err != nil {
			return nil, err
		}
	}

	var out []*Radiograph
	err := s.mutate(ctx, func(ctx context.Context, pf *pendingFiles) error {
		if _, err := s.st.Patients.GetByID(ctx, in.PatientID); err != nil {
			return err
		}
		caseRef := in.CaseRef
		if in.TreatmentID != nil {
			t, err := s.st.Treatments.GetByID(ctx, *in.TreatmentID)
			if err != nil {
				return err
			}
			if t.PatientID != in.PatientID {
				return apperr.ValidationField("treatment_id", "belongs to another patient")
			}
			if caseRef == nil {
				caseRef = t.CaseRef
			}
		}
		if caseRef != nil {
			c, err := s.st.Cases.GetByID(ctx, *caseRef)
			if err != nil {
				return err
			}
			if c.PatientID != in.PatientID {
				return apperr.ValidationField("case_ref", "belongs to another patient")
			}
		}
		for _, u := range uploads {
			name, err := s.storeUpload(ctx, pf, u)
			if err != nil {
				return err
			}
			r := &Radiograph{
				PatientID:   in.PatientID,
				TreatmentID: in.TreatmentID,
				CaseRef:     caseRef,
				Filename:    name,
				UploadedBy:  p.Username,
				UploadedAt:  s.now(),
			}
			if err := s.st.Radiographs.Create(ctx, r); err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for range out {
		metrics.RecordCreated("radiograph")
	}
	return out, nil
}

func (s *Service) ListFiles(ctx context.Context, p auth.Principal, patientID int64) ([]*Radiograph, error) {
	if err := auth.RequireStaff(p); err != nil {
		return nil, err
	}
	return s.st.Radiographs.ListByPatient(ctx, patientID)
}

// OpenFile returns a stored file. Staff may open any file; a patient only
// the radiographs filed under their own file number.
func (s *Service) OpenFile(ctx context.Context, p auth.Principal, name string) (io.ReadCloser, error) {
	if err := auth.Require(p, auth.RoleDoctor, auth.RoleAssistant, auth.RolePatient); err != nil {
		return nil, err
	}
	if !p.IsStaff() {
		r, err := s.st.Radiographs.GetByFilename(ctx, name)
		if err != nil {
			return nil, err
		}
		pt, err := s.st.Patients.GetByID(ctx, r.PatientID)
		if err != nil {
			return nil, err
		}
		if pt.FileNo != p.Username {
			return nil, apperr.Forbidden("file belongs to another patient")
		}
	}
	rc, err := s.files.Open(ctx, name)
	if errors.Is(err, blobstore.ErrNotFound) || errors.Is(err, blobstore.ErrInvalidName) {
		return nil, apperr.NotFound("file", name)
	}
	return rc, err
}

// DeleteFile removes a radiograph row, clears a treatment attachment that
// points at the same file, then removes the stored file.
func (s *Service) DeleteFile(ctx context.Context, p auth.Principal, id int64) error {
	if err := auth.RequireStaff(p); err != nil {
		return err
	}
	c := s.newCascade()
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.st.Radiographs.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if r.TreatmentID != nil {
			t, err := s.st.Treatments.GetByID(ctx, *r.TreatmentID)
			if err != nil && !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
			if t != nil && t.Attachment == r.Filename {
				t.Attachment = ""
				if err := s.st.Treatments.Update(ctx, t); err != nil {
					return err
				}
			}
		}
		if err := s.st.Radiographs.Delete(ctx, id); err != nil {
			return err
		}
		c.addFile(r.Filename)
		c.count("radiograph", 1)
		return nil
	})
	if err != nil {
		return err
	}
	return c.finish(ctx, "file", p)
}
