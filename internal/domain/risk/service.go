package risk

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claramente/claramente/internal/platform/cache"
	"github.com/claramente/claramente/internal/platform/db"
	"github.com/claramente/claramente/internal/platform/metrics"
	"github.com/claramente/claramente/internal/platform/privacy"
)

// Options carries the window policy and clock shared by the recorder, the
// summary reader and the handlers. It is derived from config once at start.
type Options struct {
	DefaultWindowDays int
	MaxWindowDays     int
	RollupDays        int
	Now               func() time.Time
}

func DefaultOptions() Options {
	return Options{DefaultWindowDays: 30, MaxWindowDays: 90, RollupDays: 7, Now: time.Now}
}

func (o Options) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now().UTC()
}

// Recorder persists risk events together with their daily aggregate.
type Recorder struct {
	repo    Repository
	tx      db.Transactor
	cache   SummaryCache
	metrics *metrics.Metrics
	logger  zerolog.Logger
	opts    Options
}

func NewRecorder(repo Repository, tx db.Transactor, logger zerolog.Logger, opts Options) *Recorder {
	return &Recorder{repo: repo, tx: tx, logger: logger, opts: opts}
}

// SetCache attaches the summary cache the recorder invalidates after each write.
func (r *Recorder) SetCache(c SummaryCache) { r.cache = c }

func (r *Recorder) SetMetrics(m *metrics.Metrics) { r.metrics = m }

// Record writes one event and adds it to the (patient, day) aggregate in a
// single transaction. Calling it twice with the same input records two events.
func (r *Recorder) Record(ctx context.Context, in RecordInput) (*RiskEvent, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient id is required", ErrInvalidInput)
	}
	if !in.Source.Valid() {
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidInput, in.Source)
	}
	if !in.Severity.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, in.Severity)
	}

	e := &RiskEvent{
		ID:                     uuid.New(),
		PatientID:              in.PatientID,
		Source:                 in.Source,
		Severity:               in.Severity,
		Meta:                   privacy.Sanitize(in.Meta, privacy.RiskPolicy),
		VisibleForProfessional: true,
		CreatedAt:              r.opts.now(),
	}
	if s := privacy.TruncateSignal(in.Signal); s != "" {
		e.Signal = &s
	}
	if in.VisibleForProfessional != nil {
		e.VisibleForProfessional = *in.VisibleForProfessional
	}
	if in.CreatedAt != nil {
		e.CreatedAt = in.CreatedAt.UTC()
	}

	err := r.tx.InTx(ctx, db.ReadWrite, func(ctx context.Context) error {
		if err := r.repo.InsertEvent(ctx, e); err != nil {
			return err
		}
		return r.repo.IncrementDaily(ctx, e.PatientID, DayOf(e.CreatedAt), IncrementsFor(e.Source, e.Severity))
	})
	if err != nil {
		r.metrics.RecordFailed()
		return nil, fmt.Errorf("record risk event: %w", err)
	}

	r.metrics.EventRecorded(string(e.Source), string(e.Severity))
	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, e.PatientID); err != nil {
			r.logger.Warn().Err(err).Str("patient_id", e.PatientID.String()).Msg("summary cache invalidation failed")
		}
	}
	r.logger.Info().
		Str("event_id", e.ID.String()).
		Str("patient_id", e.PatientID.String()).
		Str("source", string(e.Source)).
		Str("severity", string(e.Severity)).
		Strs("meta_keys", privacy.RiskPolicy.LogKeys(e.Meta)).
		Msg("risk event recorded")
	return e, nil
}

// SummaryReader answers windowed aggregate queries. It never reads event
// payloads, only counts.
type SummaryReader struct {
	repo    Repository
	tx      db.Transactor
	cache   SummaryCache
	metrics *metrics.Metrics
	logger  zerolog.Logger
	opts    Options
}

func NewSummaryReader(repo Repository, tx db.Transactor, logger zerolog.Logger, opts Options) *SummaryReader {
	return &SummaryReader{repo: repo, tx: tx, logger: logger, opts: opts}
}

func (s *SummaryReader) SetCache(c SummaryCache) { s.cache = c }

func (s *SummaryReader) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// Summary returns all-time totals and the daily series for the last
// windowDays days, today included. windowDays <= 0 selects the default.
// Both reads share one snapshot.
func (s *SummaryReader) Summary(ctx context.Context, patientID uuid.UUID, windowDays int) (*Summary, error) {
	if windowDays <= 0 {
		windowDays = s.opts.DefaultWindowDays
	}
	start := time.Now()
	defer func() { s.metrics.SummaryObserved(time.Since(start)) }()

	today := DayOf(s.opts.now())
	from := WindowStart(today, windowDays)

	version, cacheable := "", false
	if s.cache != nil {
		if cached, ok := s.cached(ctx, patientID, windowDays); ok && cached.From == from.Format(DateLayout) {
			return cached, nil
		}
		// The version is taken before the snapshot so a record committed
		// after it makes the Put below a no-op.
		v, err := s.cache.Version(ctx, patientID)
		if err != nil {
			s.logger.Warn().Err(err).Msg("summary cache version read failed")
		} else {
			version, cacheable = v, true
		}
	}

	sum := &Summary{WindowDays: windowDays, From: from.Format(DateLayout)}
	err := s.tx.InTx(ctx, db.ReadSnapshot, func(ctx context.Context) error {
		totals, err := s.repo.Totals(ctx, patientID)
		if err != nil {
			return err
		}
		series, err := s.repo.Series(ctx, patientID, from)
		if err != nil {
			return err
		}
		sum.Totals = totals
		sum.Series = series
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read risk summary: %w", err)
	}
	if sum.Series == nil {
		sum.Series = []DailyPoint{}
	}

	if cacheable {
		err := s.cache.Put(ctx, patientID, windowDays, version, sum)
		switch {
		case errors.Is(err, cache.ErrStale):
			s.logger.Debug().Str("patient_id", patientID.String()).Msg("summary changed while reading, not cached")
		case err != nil:
			s.logger.Warn().Err(err).Msg("summary cache write failed")
		}
	}
	return sum, nil
}

func (s *SummaryReader) cached(ctx context.Context, patientID uuid.UUID, windowDays int) (*Summary, bool) {
	if s.cache == nil {
		return nil, false
	}
	sum, err := s.cache.Get(ctx, patientID, windowDays)
	switch {
	case err == nil:
		s.metrics.CacheLookup(metrics.CacheHit)
		return sum, true
	case errors.Is(err, cache.ErrMiss):
		s.metrics.CacheLookup(metrics.CacheMiss)
	default:
		s.metrics.CacheLookup(metrics.CacheError)
		s.logger.Warn().Err(err).Msg("summary cache read failed")
	}
	return nil, false
}

// Rollup sums the series points dated within the last days days ending today,
// using the same inclusive lower bound as the series itself.
func Rollup(series []DailyPoint, today time.Time, days int) Counts {
	if days <= 0 {
		return Counts{}
	}
	lo := WindowStart(today, days).Format(DateLayout)
	hi := DayOf(today).Format(DateLayout)
	var c Counts
	for _, p := range series {
		if p.Date < lo || p.Date > hi {
			continue
		}
		c.Panic += p.PanicCount
		c.Detection += p.DetectionCount
		c.HighCritical += p.HighCriticalCount
	}
	return c
}

// ParseWindow turns a ?days= value into a window: empty, malformed or zero
// gives def, negatives become 1, and anything above max is capped.
func ParseWindow(raw string, def, max int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n == 0 {
		n = def
	}
	if n < 1 {
		n = 1
	}
	if n > max {
		n = max
	}
	return n
}
