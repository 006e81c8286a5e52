package formulary

import "context"

type Repository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id int64) (*Medicine, error)
	Update(ctx context.Context, m *Medicine) error
	Delete(ctx context.Context, id int64) error
	// List returns medicines ordered by category then drug name. A non-empty
	// query matches drug name or category, case-insensitively.
	List(ctx context.Context, query string, limit, offset int) ([]*Medicine, int, error)
	Count(ctx context.Context) (int, error)
}
