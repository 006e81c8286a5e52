package identity

import (
	"context"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
)

type UserRepository interface {
	// Create fails with apperr.ErrDuplicateKey when the username is taken.
	Create(ctx context.Context, u *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	DeleteByUsername(ctx context.Context, username string) error
	Count(ctx context.Context) (int, error)
	// ListByRole filters by a case-insensitive username substring when
	// query is non-empty.
	ListByRole(ctx context.Context, role auth.Role, query string, limit, offset int) ([]*User, int, error)
}
