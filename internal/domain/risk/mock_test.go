package risk

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/claramente/claramente/internal/platform/cache"
	"github.com/claramente/claramente/internal/platform/db"
)

var errStoreDown = errors.New("store down")

type dayKey struct {
	patient uuid.UUID
	day     string
}

// memStore is an in-memory Repository and db.Transactor. Transactions are
// serialized and a failing transaction restores the state it started from.
type memStore struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	events []RiskEvent
	daily  map[dayKey]DailyPoint
	failOn  string
	readErr error
	txs    []pgx.TxOptions
}

func newMemStore() *memStore {
	return &memStore{daily: make(map[dayKey]DailyPoint)}
}

func (m *memStore) InTx(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	m.txs = append(m.txs, opts)
	events := append([]RiskEvent(nil), m.events...)
	daily := make(map[dayKey]DailyPoint, len(m.daily))
	for k, v := range m.daily {
		daily[k] = v
	}
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.events, m.daily = events, daily
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) InsertEvent(_ context.Context, e *RiskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "insert" {
		return errStoreDown
	}
	m.events = append(m.events, *e)
	return nil
}

func (m *memStore) IncrementDaily(_ context.Context, patientID uuid.UUID, day time.Time, inc Increments) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "increment" {
		return errStoreDown
	}
	k := dayKey{patient: patientID, day: DayOf(day).Format(DateLayout)}
	p := m.daily[k]
	p.Date = k.day
	p.PanicCount += int64(inc.Panic)
	p.DetectionCount += int64(inc.Detection)
	p.HighCriticalCount += int64(inc.HighCritical)
	m.daily[k] = p
	return nil
}

func (m *memStore) Totals(_ context.Context, patientID uuid.UUID) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return Counts{}, m.readErr
	}
	var c Counts
	for _, e := range m.events {
		if e.PatientID != patientID {
			continue
		}
		switch e.Source {
		case SourcePanicButton:
			c.Panic++
		case SourceChatDetection:
			c.Detection++
		}
		if e.Severity.HighOrCritical() {
			c.HighCritical++
		}
	}
	return c, nil
}

func (m *memStore) Series(_ context.Context, patientID uuid.UUID, from time.Time) ([]DailyPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	lo := DayOf(from).Format(DateLayout)
	var out []DailyPoint
	for k, p := range m.daily {
		if k.patient == patientID && k.day >= lo {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (m *memStore) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *memStore) day(patientID uuid.UUID, day string) (DailyPoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.daily[dayKey{patient: patientID, day: day}]
	return p, ok
}

// memCache is a SummaryCache backed by a map. Versions are per-patient
// counters bumped by Invalidate.
type memCache struct {
	mu          sync.Mutex
	entries     map[cacheKey]*Summary
	versions    map[uuid.UUID]int
	invalidated int
	getErr      error
}

type cacheKey struct {
	patient uuid.UUID
	days    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[cacheKey]*Summary), versions: make(map[uuid.UUID]int)}
}

func (c *memCache) Version(_ context.Context, id uuid.UUID) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strconv.Itoa(c.versions[id]), nil
}

func (c *memCache) Get(_ context.Context, id uuid.UUID, days int) (*Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	s, ok := c.entries[cacheKey{id, days}]
	if !ok {
		return nil, cache.ErrMiss
	}
	return s, nil
}

func (c *memCache) Put(_ context.Context, id uuid.UUID, days int, version string, s *Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if version != strconv.Itoa(c.versions[id]) {
		return cache.ErrStale
	}
	c.entries[cacheKey{id, days}] = s
	return nil
}

func (c *memCache) Invalidate(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.patient == id {
			delete(c.entries, k)
		}
	}
	c.versions[id]++
	c.invalidated++
	return nil
}

// interleavedTx runs between once, right after the first snapshot
// transaction commits and before the caller continues.
type interleavedTx struct {
	db.Transactor
	once    sync.Once
	between func()
}

func (t *interleavedTx) InTx(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context) error) error {
	err := t.Transactor.InTx(ctx, opts, fn)
	if opts == db.ReadSnapshot {
		t.once.Do(t.between)
	}
	return err
}

var testNow = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return testNow }
	return opts
}

func newTestServices(store *memStore) (*Recorder, *SummaryReader) {
	opts := testOptions()
	return NewRecorder(store, store, zerolog.Nop(), opts), NewSummaryReader(store, store, zerolog.Nop(), opts)
}
