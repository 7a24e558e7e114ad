package links

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("link not found")
	ErrDuplicate         = errors.New("a pending or active link already exists")
	ErrInvalidTransition = errors.New("link cannot move to the requested status")
	ErrForbidden         = errors.New("not a party to this link")
	ErrSelfLink          = errors.New("professional and patient must differ")
)

// Status moves pending -> active -> revoked; pending may also go straight
// to revoked. Revoked is terminal.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Link grants a professional read access to a patient's aggregate data once
// the patient accepts it.
type Link struct {
	ID             uuid.UUID `json:"id"`
	ProfessionalID uuid.UUID `json:"professionalId"`
	PatientID      uuid.UUID `json:"patientId"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// HasParty reports whether id is the professional or the patient on l.
func (l *Link) HasParty(id uuid.UUID) bool {
	return l.ProfessionalID == id || l.PatientID == id
}
