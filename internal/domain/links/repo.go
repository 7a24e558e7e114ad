package links

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create fails with ErrDuplicate when the pair already has a pending or
	// active link.
	Create(ctx context.Context, l *Link) error
	GetByID(ctx context.Context, id uuid.UUID) (*Link, error)
	// Transition moves the link to status "to" only if it is currently in one
	// of "from". It returns ErrInvalidTransition when the row exists in
	// another state.
	Transition(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Link, error)
	HasActive(ctx context.Context, professionalID, patientID uuid.UUID) (bool, error)
	ListByProfessional(ctx context.Context, professionalID uuid.UUID, limit, offset int) ([]*Link, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Link, int, error)
}
