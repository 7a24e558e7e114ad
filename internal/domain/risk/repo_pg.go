package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claramente/claramente/internal/platform/db"
)

const (
	insertEventSQL = `
		INSERT INTO risk_events (id, patient_id, source, severity, signal, meta, visible_for_professional, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	// Counters are added to the stored row by Postgres itself, so concurrent
	// writers for the same patient and day never lose an increment.
	upsertDailySQL = `
		INSERT INTO risk_event_daily_agg (patient_id, day, panic_count, detection_count, high_critical_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (patient_id, day) DO UPDATE SET
			panic_count         = risk_event_daily_agg.panic_count + EXCLUDED.panic_count,
			detection_count     = risk_event_daily_agg.detection_count + EXCLUDED.detection_count,
			high_critical_count = risk_event_daily_agg.high_critical_count + EXCLUDED.high_critical_count,
			updated_at          = NOW()`

	totalsSQL = `
		SELECT
			COUNT(*) FILTER (WHERE source = 'PANIC_BUTTON'),
			COUNT(*) FILTER (WHERE source = 'CHAT_DETECTION'),
			COUNT(*) FILTER (WHERE severity IN ('HIGH', 'CRITICAL'))
		FROM risk_events
		WHERE patient_id = $1`

	seriesSQL = `
		SELECT day, panic_count, detection_count, high_critical_count
		FROM risk_event_daily_agg
		WHERE patient_id = $1 AND day >= $2
		ORDER BY day ASC`
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) InsertEvent(ctx context.Context, e *RiskEvent) error {
	var meta any
	if len(e.Meta) > 0 {
		meta = e.Meta
	}
	_, err := r.conn(ctx).Exec(ctx, insertEventSQL,
		e.ID, e.PatientID, string(e.Source), string(e.Severity), e.Signal, meta,
		e.VisibleForProfessional, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert risk event: %w", err)
	}
	return nil
}

func (r *repoPG) IncrementDaily(ctx context.Context, patientID uuid.UUID, day time.Time, inc Increments) error {
	_, err := r.conn(ctx).Exec(ctx, upsertDailySQL,
		patientID, DayOf(day), inc.Panic, inc.Detection, inc.HighCritical)
	if err != nil {
		return fmt.Errorf("upsert daily aggregate: %w", err)
	}
	return nil
}

func (r *repoPG) Totals(ctx context.Context, patientID uuid.UUID) (Counts, error) {
	var c Counts
	err := r.conn(ctx).QueryRow(ctx, totalsSQL, patientID).Scan(&c.Panic, &c.Detection, &c.HighCritical)
	if err != nil {
		return Counts{}, fmt.Errorf("count risk events: %w", err)
	}
	return c, nil
}

func (r *repoPG) Series(ctx context.Context, patientID uuid.UUID, from time.Time) ([]DailyPoint, error) {
	rows, err := r.conn(ctx).Query(ctx, seriesSQL, patientID, DayOf(from))
	if err != nil {
		return nil, fmt.Errorf("query daily aggregates: %w", err)
	}
	defer rows.Close()

	series := []DailyPoint{}
	for rows.Next() {
		var day time.Time
		var p DailyPoint
		if err := rows.Scan(&day, &p.PanicCount, &p.DetectionCount, &p.HighCriticalCount); err != nil {
			return nil, fmt.Errorf("scan daily aggregate: %w", err)
		}
		p.Date = day.Format(DateLayout)
		series = append(series, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily aggregates: %w", err)
	}
	return series, nil
}
