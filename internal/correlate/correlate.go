// Package correlate finds cross-source coincidences in a batch of canonical events.
package correlate

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/galois26/transient-correlator/internal/model"
	"github.com/galois26/transient-correlator/internal/sky"
)

const (
	DefaultTimeWindowSeconds = 600
	DefaultSeparationDegrees = 5.0

	// largest window a time.Duration can hold
	maxWindowSeconds = float64(math.MaxInt64) / float64(time.Second)
)

// InvalidPolicyError reports a threshold that is not a positive finite number.
type InvalidPolicyError struct {
	Param string
	Value float64
}

func (e *InvalidPolicyError) Error() string {
	return fmt.Sprintf("invalid correlation policy: %s must be a positive finite number, got %v", e.Param, e.Value)
}

// Policy bounds what counts as a coincidence. Both limits are exclusive.
// Build one with NewPolicy or DefaultPolicy; the zero value matches nothing.
type Policy struct {
	TimeWindow    time.Duration
	SeparationDeg float64
}

// NewPolicy validates the thresholds and returns a Policy.
func NewPolicy(timeWindowSeconds, separationDeg float64) (Policy, error) {
	if !positive(timeWindowSeconds) || timeWindowSeconds > maxWindowSeconds {
		return Policy{}, &InvalidPolicyError{Param: "time_window_seconds", Value: timeWindowSeconds}
	}
	if !positive(separationDeg) {
		return Policy{}, &InvalidPolicyError{Param: "separation_threshold_degrees", Value: separationDeg}
	}
	window := time.Duration(timeWindowSeconds * float64(time.Second))
	if window <= 0 {
		return Policy{}, &InvalidPolicyError{Param: "time_window_seconds", Value: timeWindowSeconds}
	}
	return Policy{
		TimeWindow:    window,
		SeparationDeg: separationDeg,
	}, nil
}

func DefaultPolicy() Policy {
	return Policy{
		TimeWindow:    DefaultTimeWindowSeconds * time.Second,
		SeparationDeg: DefaultSeparationDegrees,
	}
}

// View renders the policy for payloads.
func (p Policy) View() model.PolicyView {
	return model.PolicyView{
		TimeWindowSeconds:          p.TimeWindow.Seconds(),
		SeparationThresholdDegrees: p.SeparationDeg,
	}
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Matches reports whether a and b are a coincidence under p.
func (p Policy) Matches(a, b model.CanonicalEvent) bool {
	if a.Source == b.Source {
		return false
	}
	dt := a.Instant.Sub(b.Instant)
	if dt < 0 {
		dt = -dt
	}
	if dt >= p.TimeWindow {
		return false
	}
	return sky.Separation(a.Position, b.Position) < p.SeparationDeg
}

// Correlate evaluates every unordered pair once, outer index before inner
// index, and returns the pairs that match. The result is never nil.
func Correlate(events []model.CanonicalEvent, p Policy) []model.Pair {
	pairs := make([]model.Pair, 0)
	for i := 0; i < len(events); i++ {
		pairs = scanRow(events, i, p, pairs)
	}
	return pairs
}

// CorrelateParallel returns exactly what Correlate returns, splitting the
// outer loop across up to workers goroutines. workers <= 0 means GOMAXPROCS.
func CorrelateParallel(events []model.CanonicalEvent, p Policy, workers int) []model.Pair {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers == 1 || len(events) < 2 {
		return Correlate(events, p)
	}

	rows := make([][]model.Pair, len(events))
	next := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				rows[i] = scanRow(events, i, p, nil)
			}
		}()
	}
	for i := range events {
		next <- i
	}
	close(next)
	wg.Wait()

	pairs := make([]model.Pair, 0)
	for _, r := range rows {
		pairs = append(pairs, r...)
	}
	return pairs
}

func scanRow(events []model.CanonicalEvent, i int, p Policy, out []model.Pair) []model.Pair {
	a := events[i]
	for j := i + 1; j < len(events); j++ {
		if p.Matches(a, events[j]) {
			out = append(out, model.Pair{A: a.ID, B: events[j].ID})
		}
	}
	return out
}
