package activity

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claramente/claramente/internal/platform/privacy"
	"github.com/claramente/claramente/pkg/pagination"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Record stores one activity event. Metadata is sanitized with the activity
// policy, so message bodies never reach the table.
func (s *Service) Record(ctx context.Context, userID uuid.UUID, typ string, meta map[string]any) (*Event, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" || utf8.RuneCountInString(typ) > MaxTypeLength || strings.ContainsAny(typ, "\r\n") {
		return nil, ErrInvalidType
	}
	e := &Event{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      typ,
		Meta:      privacy.Sanitize(meta, privacy.ActivityPolicy),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Debug().
		Str("user_id", userID.String()).
		Str("type", typ).
		Strs("meta_keys", privacy.ActivityPolicy.LogKeys(e.Meta)).
		Msg("activity recorded")
	return e, nil
}

// ListRecent returns up to limit events, newest first, after skipping offset.
// Limits outside 1..pagination.MaxLimit fall back to the default or the cap.
func (s *Service) ListRecent(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Event, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	if limit > pagination.MaxLimit {
		limit = pagination.MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListRecent(ctx, userID, limit, offset)
}
