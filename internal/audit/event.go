package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/straja-ai/entityshield/internal/spans"
)

// EventVersion is bumped whenever the event shape changes.
const EventVersion = "1"

// Outcome is how a request ended from the service's perspective.
type Outcome string

const (
	OutcomeOK              Outcome = "ok"
	OutcomeRejected        Outcome = "rejected"
	OutcomeUnauthorized    Outcome = "unauthorized"
	OutcomeClassifierError Outcome = "classifier_error"
	OutcomeCancelled       Outcome = "cancelled"
	OutcomeInternalError   Outcome = "internal_error"
)

// TimingMs holds per-stage latencies in milliseconds.
type TimingMs struct {
	Inference float64 `json:"inference"`
	Render    float64 `json:"render"`
	Total     float64 `json:"total"`
}

// Event is one audit record. It never carries input text or entity
// surfaces, only counts per category.
type Event struct {
	Version     string         `json:"version"`
	Timestamp   time.Time      `json:"timestamp"`
	RequestID   string         `json:"request_id"`
	ClientID    string         `json:"client_id,omitempty"`
	Backend     string         `json:"backend"`
	Outcome     Outcome        `json:"outcome"`
	InputChars  int            `json:"input_chars"`
	EntityCount int            `json:"entity_count"`
	Categories  map[string]int `json:"categories,omitempty"`
	TimingMs    TimingMs       `json:"timing_ms"`
}

// BuildParams is the input to BuildEvent.
type BuildParams struct {
	Timestamp  time.Time
	RequestID  string
	ClientID   string
	Backend    string
	Outcome    Outcome
	InputChars int
	Entities   []spans.EntitySpan
	Inference  time.Duration
	Render     time.Duration
	Total      time.Duration
}

// BuildEvent assembles an Event from a finished request.
func BuildEvent(p BuildParams) *Event {
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	ev := &Event{
		Version:     EventVersion,
		Timestamp:   ts,
		RequestID:   p.RequestID,
		ClientID:    p.ClientID,
		Backend:     p.Backend,
		Outcome:     p.Outcome,
		InputChars:  p.InputChars,
		EntityCount: len(p.Entities),
		TimingMs: TimingMs{
			Inference: durationMs(p.Inference),
			Render:    durationMs(p.Render),
			Total:     durationMs(p.Total),
		},
	}
	if len(p.Entities) > 0 {
		ev.Categories = CountCategories(p.Entities)
	}
	return ev
}

// CountCategories tallies entity spans per category.
func CountCategories(entities []spans.EntitySpan) map[string]int {
	out := make(map[string]int, len(entities))
	for _, e := range entities {
		out[e.Category]++
	}
	return out
}

// NewRequestID returns a random UUID.
func NewRequestID() string {
	return uuid.NewString()
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
