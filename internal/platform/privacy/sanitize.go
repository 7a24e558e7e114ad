// Package privacy reduces caller-supplied metadata to a subset that is safe to
// persist and log. Nothing that looks like a message body, transcript or other
// free text may survive.
package privacy

import (
	"sort"
	"strings"
)

// MaxSignalLength bounds the short condition label stored alongside risk events.
const MaxSignalLength = 120

var freeTextMarkers = []string{"text", "message", "content", "transcript"}

// Policy is the configurable part of the sanitizer: which keys are known to be
// safe and which key fragments always indicate free text. Only the forbidden
// fragments filter stored metadata; an unlisted scalar key is still kept. The
// allow-list decides which key names LogKeys may put in a log line.
type Policy struct {
	allowed   map[string]struct{}
	forbidden []string
}

// NewPolicy builds a Policy. Keys and fragments are compared case-insensitively.
func NewPolicy(allowed, forbidden []string) Policy {
	p := Policy{allowed: make(map[string]struct{}, len(allowed))}
	for _, k := range allowed {
		p.allowed[strings.ToLower(k)] = struct{}{}
	}
	for _, f := range forbidden {
		p.forbidden = append(p.forbidden, strings.ToLower(f))
	}
	return p
}

var (
	// RiskPolicy applies to risk event metadata.
	RiskPolicy = NewPolicy(
		[]string{"classifier", "confidence", "score", "severity", "signal", "model", "version"},
		freeTextMarkers,
	)

	// ActivityPolicy applies to general user-activity events.
	ActivityPolicy = NewPolicy(
		[]string{"classifier", "confidence", "score", "severity", "signal", "model", "version",
			"source", "screen", "duration_ms", "exercise_id", "step"},
		append(append([]string{}, freeTextMarkers...), "message_body"),
	)
)

// Forbidden reports whether the key names a free-text field.
func (p Policy) Forbidden(key string) bool {
	k := strings.ToLower(key)
	for _, f := range p.forbidden {
		if strings.Contains(k, f) {
			return true
		}
	}
	return false
}

// Allowed reports whether the key is on the policy's allow-list.
func (p Policy) Allowed(key string) bool {
	_, ok := p.allowed[strings.ToLower(key)]
	return ok
}

// LogKeys returns the sorted allow-listed keys present in m. Non-listed key
// names are withheld from logs because the names themselves are caller data.
func (p Policy) LogKeys(m Meta) []string {
	var keys []string
	for k := range m {
		if p.Allowed(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Sanitize drops every entry whose key names free text, then keeps entries
// that are allow-listed or scalar. Allow-listing never rescues a nested value
// since Meta cannot hold one. It returns nil when nothing survives.
func Sanitize(meta map[string]any, p Policy) Meta {
	if len(meta) == 0 {
		return nil
	}
	out := make(Meta, len(meta))
	for k, raw := range meta {
		if p.Forbidden(k) {
			continue
		}
		v, scalar := ValueOf(raw)
		if !scalar {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SanitizeMeta re-applies a policy to an already typed mapping.
func SanitizeMeta(meta Meta, p Policy) Meta {
	if len(meta) == 0 {
		return nil
	}
	raw := make(map[string]any, len(meta))
	for k, v := range meta {
		raw[k] = v
	}
	return Sanitize(raw, p)
}

// TruncateSignal normalizes a condition label: first line only, trimmed, at
// most MaxSignalLength characters.
func TruncateSignal(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) > MaxSignalLength {
		s = string(r[:MaxSignalLength])
	}
	return s
}
