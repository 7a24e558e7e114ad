package activity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claramente/claramente/internal/platform/db"
	"github.com/claramente/claramente/internal/platform/privacy"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) Insert(ctx context.Context, e *Event) error {
	var meta any
	if len(e.Meta) > 0 {
		meta = e.Meta
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO user_activity_events (id, user_id, type, meta, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.UserID, e.Type, meta, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity event: %w", err)
	}
	return nil
}

func (r *repoPG) ListRecent(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, user_id, type, meta, created_at
		FROM user_activity_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list activity events: %w", err)
	}
	defer rows.Close()

	items := []*Event{}
	for rows.Next() {
		var e Event
		var meta privacy.Meta
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity event: %w", err)
		}
		// Rows written before a policy change are filtered again on the way out.
		e.Meta = privacy.SanitizeMeta(meta, privacy.ActivityPolicy)
		items = append(items, &e)
	}
	return items, rows.Err()
}
