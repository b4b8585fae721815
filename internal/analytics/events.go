package analytics

import (
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomePartial Outcome = "partial"
)

// ExpansionEvent summarises one served expansion request.
type ExpansionEvent struct {
	ID                  string    `json:"id"`
	RequestID           string    `json:"request_id,omitempty"`
	Outcome             Outcome   `json:"outcome"`
	Query               string    `json:"query"`
	Terms               []string  `json:"terms"`
	Modules             []string  `json:"modules"`
	Suggestions         int       `json:"suggestions"`
	FailedModules       []string  `json:"failed_modules,omitempty"`
	TimedOutModules     []string  `json:"timed_out_modules,omitempty"`
	ZeroSuggestionTerms []string  `json:"zero_suggestion_terms,omitempty"`
	LatencyMs           int64     `json:"latency_ms"`
	Timestamp           time.Time `json:"timestamp"`
}

// NewEventID returns a random event id.
func NewEventID() string {
	return uuid.NewString()
}

// ModulePoint is one persisted reading of a module's failure counters.
type ModulePoint struct {
	CapturedAt time.Time `json:"captured_at"`
	Failures   int64     `json:"failures"`
	Timeouts   int64     `json:"timeouts"`
}
