package risk

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/claramente/claramente/internal/platform/privacy"
)

// ErrInvalidInput wraps every rejection of a RecordInput.
var ErrInvalidInput = errors.New("invalid risk event input")

type Source string

const (
	SourcePanicButton   Source = "PANIC_BUTTON"
	SourceChatDetection Source = "CHAT_DETECTION"
)

func (s Source) Valid() bool {
	return s == SourcePanicButton || s == SourceChatDetection
}

// Severity is ordinal: LOW < MODERATE < HIGH < CRITICAL.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityModerate Severity = "MODERATE"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityModerate: 2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns 0 for unknown severities.
func (s Severity) Rank() int { return severityRank[s] }

func (s Severity) HighOrCritical() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// PanicSignal labels events from the patient's panic button.
const PanicSignal = "panic_manual"

// DetectionSignals are the only conditions the classifier may report.
var DetectionSignals = []string{
	"suicide_ideation",
	"self_harm",
	"panic_attack",
	"hopelessness",
	"agitation",
	"severe_distress",
}

func IsDetectionSignal(s string) bool {
	for _, d := range DetectionSignals {
		if s == d {
			return true
		}
	}
	return false
}

// RiskEvent is one append-only row of risk_events.
type RiskEvent struct {
	ID                     uuid.UUID    `json:"id"`
	PatientID              uuid.UUID    `json:"patientId"`
	Source                 Source       `json:"source"`
	Severity               Severity     `json:"severity"`
	Signal                 *string      `json:"signal,omitempty"`
	Meta                   privacy.Meta `json:"meta,omitempty"`
	VisibleForProfessional bool         `json:"visibleForProfessional"`
	CreatedAt              time.Time    `json:"createdAt"`
}

// RecordInput is what callers hand to Recorder.Record. Meta is raw and is
// sanitized before it reaches storage.
type RecordInput struct {
	PatientID              uuid.UUID
	Source                 Source
	Severity               Severity
	Signal                 string
	Meta                   map[string]any
	VisibleForProfessional *bool
	CreatedAt              *time.Time
}

// Increments is what one event adds to its day's aggregate row.
type Increments struct {
	Panic        int
	Detection    int
	HighCritical int
}

func IncrementsFor(source Source, severity Severity) Increments {
	var inc Increments
	switch source {
	case SourcePanicButton:
		inc.Panic = 1
	case SourceChatDetection:
		inc.Detection = 1
	}
	if severity.HighOrCritical() {
		inc.HighCritical = 1
	}
	return inc
}

// DateLayout is the ISO day format used for series dates.
const DateLayout = "2006-01-02"

// DayOf returns the start of t's UTC calendar day.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// WindowStart is the first day included in a window of n days ending today.
func WindowStart(today time.Time, n int) time.Time {
	return DayOf(today).AddDate(0, 0, -(n - 1))
}

// Counts is used both for all-time totals and for rollups over the series.
type Counts struct {
	Panic        int64 `json:"panic"`
	Detection    int64 `json:"detection"`
	HighCritical int64 `json:"highCritical"`
}

// DailyPoint is one row of the daily aggregate, projected for clients.
type DailyPoint struct {
	Date              string `json:"date"`
	PanicCount        int64  `json:"panicCount"`
	DetectionCount    int64  `json:"detectionCount"`
	HighCriticalCount int64  `json:"highCriticalCount"`
}

type Summary struct {
	Totals     Counts       `json:"totals"`
	Series     []DailyPoint `json:"series"`
	WindowDays int          `json:"windowDays"`
	From       string       `json:"from"`
}
