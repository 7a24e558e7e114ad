package activity

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, e *Event) error
	// ListRecent returns the user's newest events first, skipping offset.
	ListRecent(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Event, error)
}
