package source

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/galois26/transient-correlator/internal/config"
	"github.com/galois26/transient-correlator/internal/model"
)

type fallbackSource struct {
	tag    model.Source
	count  int
	maxAge time.Duration
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFallbackSource generates synthetic events tagged as tag: random sky
// positions and arrival times between now-MaxAge and now-1m.
func NewFallbackSource(tag model.Source, cfg config.Fallback) *fallbackSource {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	count := cfg.Count
	if count <= 0 {
		count = 20
	}
	return &fallbackSource{
		tag:    tag,
		count:  count,
		maxAge: defaultDur(cfg.MaxAge, time.Hour),
		now:    time.Now,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (s *fallbackSource) Name() string { return "fallback-" + string(s.tag) }

func (s *fallbackSource) Fetch(_ context.Context) ([]model.RawEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.now().UTC()
	span := float64(s.maxAge - time.Minute)
	if span < 0 {
		span = 0
	}
	out := make([]model.RawEvent, 0, s.count)
	for i := 0; i < s.count; i++ {
		age := time.Minute + time.Duration(s.rng.Float64()*span)
		out = append(out, model.RawEvent{
			ID:     fmt.Sprintf("MOCK_%s_%d", s.tag, i),
			Source: s.tag,
			Time:   model.CivilTime(base.Add(-age)),
			RA:     s.rng.Float64() * 360,
			Dec:    s.rng.Float64()*180 - 90,
		})
	}
	return out, nil
}
