package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/claramente/claramente/internal/platform/cache"
)

// SummaryCache holds computed summaries per patient and window. Get returns
// cache.ErrMiss when nothing is stored. Readers take Version before reading
// the store and hand it to Put, which returns cache.ErrStale if an
// Invalidate happened in between.
type SummaryCache interface {
	Version(ctx context.Context, patientID uuid.UUID) (string, error)
	Get(ctx context.Context, patientID uuid.UUID, windowDays int) (*Summary, error)
	Put(ctx context.Context, patientID uuid.UUID, windowDays int, version string, s *Summary) error
	Invalidate(ctx context.Context, patientID uuid.UUID) error
}

type redisSummaryCache struct {
	hash *cache.Hash
	ttl  time.Duration
}

// NewRedisSummaryCache stores each patient's summaries as fields of one hash
// so a new event drops every window at once.
func NewRedisSummaryCache(h *cache.Hash, ttl time.Duration) SummaryCache {
	return &redisSummaryCache{hash: h, ttl: ttl}
}

func summaryKey(patientID uuid.UUID) string {
	return "risk:summary:" + patientID.String()
}

func (c *redisSummaryCache) Version(ctx context.Context, patientID uuid.UUID) (string, error) {
	return c.hash.Version(ctx, summaryKey(patientID))
}

func (c *redisSummaryCache) Get(ctx context.Context, patientID uuid.UUID, windowDays int) (*Summary, error) {
	raw, err := c.hash.Get(ctx, summaryKey(patientID), strconv.Itoa(windowDays))
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode cached summary: %w", err)
	}
	return &s, nil
}

func (c *redisSummaryCache) Put(ctx context.Context, patientID uuid.UUID, windowDays int, version string, s *Summary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return c.hash.SetIfVersion(ctx, summaryKey(patientID), version, strconv.Itoa(windowDays), raw, c.ttl)
}

func (c *redisSummaryCache) Invalidate(ctx context.Context, patientID uuid.UUID) error {
	return c.hash.Bump(ctx, summaryKey(patientID), c.ttl)
}
