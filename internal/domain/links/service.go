package links

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Request opens a pending link from a professional to a patient.
func (s *Service) Request(ctx context.Context, professionalID, patientID uuid.UUID) (*Link, error) {
	if professionalID == patientID {
		return nil, ErrSelfLink
	}
	l := &Link{ProfessionalID: professionalID, PatientID: patientID, Status: StatusPending}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, err
	}
	s.logger.Info().Str("link_id", l.ID.String()).Str("professional_id", professionalID.String()).
		Str("patient_id", patientID.String()).Msg("link requested")
	return l, nil
}

// Accept activates a pending link. Only the linked patient may accept.
func (s *Service) Accept(ctx context.Context, linkID, patientID uuid.UUID) (*Link, error) {
	l, err := s.repo.GetByID(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if l.PatientID != patientID {
		return nil, ErrForbidden
	}
	l, err = s.repo.Transition(ctx, linkID, []Status{StatusPending}, StatusActive)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("link_id", l.ID.String()).Msg("link accepted")
	return l, nil
}

// Revoke ends a pending or active link. Either party may revoke.
func (s *Service) Revoke(ctx context.Context, linkID, actorID uuid.UUID) (*Link, error) {
	l, err := s.repo.GetByID(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if !l.HasParty(actorID) {
		return nil, ErrForbidden
	}
	l, err = s.repo.Transition(ctx, linkID, []Status{StatusPending, StatusActive}, StatusRevoked)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("link_id", l.ID.String()).Str("actor_id", actorID.String()).Msg("link revoked")
	return l, nil
}

func (s *Service) HasActiveLink(ctx context.Context, professionalID, patientID uuid.UUID) (bool, error) {
	return s.repo.HasActive(ctx, professionalID, patientID)
}

func (s *Service) ListByProfessional(ctx context.Context, professionalID uuid.UUID, limit, offset int) ([]*Link, int, error) {
	return s.repo.ListByProfessional(ctx, professionalID, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Link, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}
