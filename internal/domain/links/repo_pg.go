package links

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claramente/claramente/internal/platform/db"
)

const uniqueViolation = "23505"

const linkCols = `id, professional_id, patient_id, status, created_at, updated_at`

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func scanLink(row pgx.Row) (*Link, error) {
	var l Link
	var status string
	if err := row.Scan(&l.ID, &l.ProfessionalID, &l.PatientID, &status, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.Status = Status(status)
	return &l, nil
}

func (r *repoPG) Create(ctx context.Context, l *Link) error {
	l.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO professional_links (id, professional_id, patient_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		l.ID, l.ProfessionalID, l.PatientID, string(l.Status),
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Link, error) {
	l, err := scanLink(r.conn(ctx).QueryRow(ctx,
		`SELECT `+linkCols+` FROM professional_links WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return l, nil
}

func (r *repoPG) Transition(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Link, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	l, err := scanLink(r.conn(ctx).QueryRow(ctx, `
		UPDATE professional_links SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+linkCols, id, string(to), states))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("update link status: %w", err)
	}
	return l, nil
}

func (r *repoPG) HasActive(ctx context.Context, professionalID, patientID uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM professional_links
			WHERE professional_id = $1 AND patient_id = $2 AND status = 'active'
		)`, professionalID, patientID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check active link: %w", err)
	}
	return ok, nil
}

func (r *repoPG) ListByProfessional(ctx context.Context, professionalID uuid.UUID, limit, offset int) ([]*Link, int, error) {
	return r.list(ctx, "professional_id", professionalID, limit, offset)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Link, int, error) {
	return r.list(ctx, "patient_id", patientID, limit, offset)
}

// list filters on column, which is always one of the two constants above.
func (r *repoPG) list(ctx context.Context, column string, id uuid.UUID, limit, offset int) ([]*Link, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM professional_links WHERE `+column+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count links: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+linkCols+` FROM professional_links WHERE `+column+` = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	items := []*Link{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan link: %w", err)
		}
		items = append(items, l)
	}
	return items, total, rows.Err()
}
