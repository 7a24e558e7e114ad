package risk

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the storage side of the recorder and the summary reader.
// Writes must run inside the transaction carried on ctx.
type Repository interface {
	InsertEvent(ctx context.Context, e *RiskEvent) error
	// IncrementDaily adds inc to the (patient, day) row, creating it if absent,
	// as one atomic statement.
	IncrementDaily(ctx context.Context, patientID uuid.UUID, day time.Time, inc Increments) error
	Totals(ctx context.Context, patientID uuid.UUID) (Counts, error)
	// Series returns aggregate rows with day >= from, oldest first.
	Series(ctx context.Context, patientID uuid.UUID, from time.Time) ([]DailyPoint, error)
}
