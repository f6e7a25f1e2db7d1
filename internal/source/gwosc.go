package source

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/galois26/transient-correlator/internal/config"
	"github.com/galois26/transient-correlator/internal/model"
)

type gwoscSource struct {
	cfg config.GWOSCConfig
	f   fetcher

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGWOSCSource reads recent gravitational-wave candidates from GWOSC.
//
// GW events are not localized to a point: the real localization is a
// probability skymap that can span hundreds of square degrees. Each event is
// given a uniformly random placeholder position instead, so any match
// involving a GWOSC event is a visualization aid, not a scientific result.
func NewGWOSCSource(cfg config.GWOSCConfig) *gwoscSource {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &gwoscSource{
		cfg: cfg,
		f:   newFetcher("gwosc", cfg.HTTP, cfg.Resilience),
		rng: rand.New(rand.NewSource(seed)),
	}
}

func (s *gwoscSource) Name() string { return string(model.SourceGWOSC) }

type gwoscEvent struct {
	name string
	gps  any
}

// Fetch maps every listed event; GPS is seconds on the GPS time scale.
func (s *gwoscSource) Fetch(ctx context.Context) ([]model.RawEvent, error) {
	base := strings.TrimRight(s.cfg.BaseURL, "/")
	if base == "" {
		base = "https://gwosc.org/api/v1"
	}
	u := base + "/events/?page_size=" + strconv.Itoa(max(1, s.cfg.PageSize))
	log.Debug().Str("source", s.Name()).Str("url", u).Msg("fetching")

	body, err := s.f.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("gwosc: %w", err)
	}
	evs, err := parseGWOSC(body)
	if err != nil {
		return nil, fmt.Errorf("gwosc: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.RawEvent, 0, len(evs))
	for _, e := range evs {
		out = append(out, model.RawEvent{
			ID:     e.name,
			Source: model.SourceGWOSC,
			Time:   model.GPS(e.gps),
			RA:     s.rng.Float64() * 360,
			Dec:    s.rng.Float64()*180 - 90,
		})
	}
	log.Debug().Str("source", s.Name()).Int("events", len(out)).Msg("fetched")
	return out, nil
}

// parseGWOSC accepts {"results": {name: {...}}}, the event API's
// {"events": {name: {...}}} and {"results": [{"name": ..., "GPS": ...}]}.
// Events are returned sorted by name.
func parseGWOSC(body []byte) ([]gwoscEvent, error) {
	var top map[string]any
	if err := decodeNumbers(body, &top); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	var out []gwoscEvent
	found := false
	for _, key := range []string{"results", "events"} {
		switch v := top[key].(type) {
		case map[string]any:
			found = true
			for name, raw := range v {
				m, _ := raw.(map[string]any)
				out = append(out, gwoscEvent{name: name, gps: pickGPS(m)})
			}
		case []any:
			found = true
			for _, it := range v {
				m, ok := it.(map[string]any)
				if !ok {
					continue
				}
				out = append(out, gwoscEvent{name: pickStr(m, "name", "commonName", "id"), gps: pickGPS(m)})
			}
		}
		if found {
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("unrecognized response shape (len=%d)", len(body))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func pickGPS(m map[string]any) any {
	for _, k := range []string{"GPS", "gps", "gpstime"} {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// pickStr returns the first non-empty string value among keys.
func pickStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				if s2 := strings.TrimSpace(s); s2 != "" {
					return s2
				}
			}
		}
	}
	return ""
}
