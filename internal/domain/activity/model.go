package activity

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/claramente/claramente/internal/platform/privacy"
)

// MaxTypeLength bounds the event type label.
const MaxTypeLength = 64

// TypePatientDataAccess marks a professional or service reading or writing
// another user's risk data. These events come from the audit middleware.
const TypePatientDataAccess = "patient_data_access"

var ErrInvalidType = errors.New("activity type must be a single-line label of at most 64 characters")

// Event is a usage signal such as "exercise_completed". Meta has been through
// privacy.ActivityPolicy.
type Event struct {
	ID        uuid.UUID    `json:"id"`
	UserID    uuid.UUID    `json:"userId"`
	Type      string       `json:"type"`
	Meta      privacy.Meta `json:"meta,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}
