package formulary

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/db"
)

type medicineRepoPG struct {
	pool *pgxpool.Pool
}

func NewMedicineRepoPG(pool *pgxpool.Pool) Repository {
	return &medicineRepoPG{pool: pool}
}

func (r *medicineRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const medCols = `id, category, drug_name, dosage_form, strength, quantity, frequency, duration, notes, created_at`

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.Category, &m.DrugName, &m.DosageForm, &m.Strength,
		&m.Quantity, &m.Frequency, &m.Duration, &m.Notes, &m.CreatedAt)
	return &m, err
}

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicines (category, drug_name, dosage_form, strength, quantity, frequency, duration, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		m.Category, m.DrugName, m.DosageForm, m.Strength, m.Quantity, m.Frequency, m.Duration, m.Notes, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert medicine: %w", err)
	}
	return nil
}

func (r *medicineRepoPG) GetByID(ctx context.Context, id int64) (*Medicine, error) {
	m, err := scanMedicine(r.conn(ctx).QueryRow(ctx, `SELECT `+medCols+` FROM medicines WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("medicine", id)
		}
		return nil, fmt.Errorf("get medicine: %w", err)
	}
	return m, nil
}

func (r *medicineRepoPG) Update(ctx context.Context, m *Medicine) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medicines SET category=$2, drug_name=$3, dosage_form=$4, strength=$5,
			quantity=$6, frequency=$7, duration=$8, notes=$9
		WHERE id = $1`,
		m.ID, m.Category, m.DrugName, m.DosageForm, m.Strength, m.Quantity, m.Frequency, m.Duration, m.Notes)
	if err != nil {
		return fmt.Errorf("update medicine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medicine", m.ID)
	}
	return nil
}

func (r *medicineRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medicines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete medicine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medicine", id)
	}
	return nil
}

func (r *medicineRepoPG) List(ctx context.Context, query string, limit, offset int) ([]*Medicine, int, error) {
	where := ""
	args := []any{}
	if query != "" {
		where = ` WHERE drug_name ILIKE $1 OR category ILIKE $1`
		args = append(args, "%"+query+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicines`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medicines: %w", err)
	}

	sql := fmt.Sprintf(`SELECT %s FROM medicines%s ORDER BY category, drug_name, id LIMIT $%d OFFSET $%d`,
		medCols, where, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list medicines: %w", err)
	}
	defer rows.Close()

	var items []*Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *medicineRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicines`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count medicines: %w", err)
	}
	return n, nil
}
