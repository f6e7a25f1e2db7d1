package model

import (
	"time"

	json "github.com/goccy/go-json"
)

// EventView is how an event is rendered in the API payload.
type EventView struct {
	ID     string  `json:"id"`
	Source Source  `json:"source"`
	Time   string  `json:"time"`
	RA     float64 `json:"ra"`
	Dec    float64 `json:"dec"`
}

// Rejected describes a raw record that failed standardization.
type Rejected struct {
	ID     string `json:"id"`
	Source Source `json:"source"`
	Reason string `json:"reason"`
}

// PolicyView echoes the thresholds a run was evaluated with.
type PolicyView struct {
	TimeWindowSeconds          float64 `json:"time_window_seconds"`
	SeparationThresholdDegrees float64 `json:"separation_threshold_degrees"`
}

// Payload is the response body of /api/events and the unit pushed to sinks.
type Payload struct {
	AllEvents    []EventView `json:"all_events"`
	Correlations []Pair      `json:"correlations"`
	RunID        string      `json:"run_id"`
	GeneratedAt  time.Time   `json:"generated_at"`
	Rejected     []Rejected  `json:"rejected"`
	Fallback     []Source    `json:"fallback"`
	Policy       PolicyView  `json:"policy"`
}

// NewEventView renders the instant as RFC 3339 text in UTC.
func NewEventView(e CanonicalEvent) EventView {
	return EventView{
		ID:     e.ID,
		Source: e.Source,
		Time:   e.Instant.UTC().Format(time.RFC3339Nano),
		RA:     e.Position.RA,
		Dec:    e.Position.Dec,
	}
}

// MarshalJSON renders a pair as a two element array, ["idA","idB"].
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.A, p.B})
}

func (p *Pair) UnmarshalJSON(b []byte) error {
	var ids [2]string
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	p.A, p.B = ids[0], ids[1]
	return nil
}
