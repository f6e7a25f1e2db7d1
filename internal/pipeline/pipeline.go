// Package pipeline runs one correlation pass: fetch every feed, standardize,
// correlate and assemble the payload.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/galois26/transient-correlator/internal/correlate"
	"github.com/galois26/transient-correlator/internal/metrics"
	"github.com/galois26/transient-correlator/internal/model"
	"github.com/galois26/transient-correlator/internal/source"
	"github.com/galois26/transient-correlator/internal/standardize"
)

type Options struct {
	Policy            correlate.Policy
	ParallelThreshold int // batch size from which CorrelateParallel is used; <= 0 disables it
	Workers           int
	Metrics           *metrics.Metrics // optional
}

type Pipeline struct {
	feeds []source.Feed
	opts  Options
	now   func() time.Time
}

func New(feeds []source.Feed, opts Options) *Pipeline {
	return &Pipeline{feeds: feeds, opts: opts, now: time.Now}
}

// feedResult is one slot per feed, filled by its fetch goroutine.
type feedResult struct {
	raws     []model.RawEvent
	fallback bool
}

// Run executes one pass. Upstream failures never fail the run: a feed that
// errors or returns nothing is replaced by its fallback, or by an empty set.
// The returned error is only ever ctx.Err().
func (p *Pipeline) Run(ctx context.Context) (*model.Payload, error) {
	start := p.now()

	results := make([]feedResult, len(p.feeds))
	var wg sync.WaitGroup
	for i, f := range p.feeds {
		wg.Add(1)
		go func(i int, f source.Feed) {
			defer wg.Done()
			results[i] = p.fetchFeed(ctx, f)
		}(i, f)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raws []model.RawEvent
	fallback := []model.Source{}
	for i, r := range results {
		raws = append(raws, r.raws...)
		if r.fallback {
			fallback = append(fallback, model.Source(p.feeds[i].Source.Name()))
		}
	}

	events, rejections := standardize.StandardizeAll(raws)
	rejected := make([]model.Rejected, 0, len(rejections))
	for _, rj := range rejections {
		log.Warn().
			Str("source", string(rj.Err.Source)).
			Str("id", rj.Err.ID).
			Str("field", rj.Err.Field).
			Msg(rj.Err.Reason)
		rejected = append(rejected, model.Rejected{ID: rj.Err.ID, Source: rj.Err.Source, Reason: rj.Err.Error()})
		if m := p.opts.Metrics; m != nil {
			m.RejectedTotal.WithLabelValues(string(rj.Err.Source)).Inc()
		}
	}

	var pairs []model.Pair
	if t := p.opts.ParallelThreshold; t > 0 && len(events) >= t {
		pairs = correlate.CorrelateParallel(events, p.opts.Policy, p.opts.Workers)
	} else {
		pairs = correlate.Correlate(events, p.opts.Policy)
	}

	views := make([]model.EventView, 0, len(events))
	for _, e := range events {
		views = append(views, model.NewEventView(e))
	}

	end := p.now()
	payload := &model.Payload{
		AllEvents:    views,
		Correlations: pairs,
		RunID:        uuid.NewString(),
		GeneratedAt:  end.UTC(),
		Rejected:     rejected,
		Fallback:     fallback,
		Policy:       p.opts.Policy.View(),
	}

	if m := p.opts.Metrics; m != nil {
		for _, e := range events {
			m.EventsTotal.WithLabelValues(string(e.Source)).Inc()
		}
		m.MatchesTotal.Add(float64(len(pairs)))
		m.LastRunMatches.Set(float64(len(pairs)))
		m.LastRunUnixTime.Set(float64(end.Unix()))
		m.RunDuration.Observe(end.Sub(start).Seconds())
	}

	log.Info().
		Str("run_id", payload.RunID).
		Int("events", len(events)).
		Int("rejected", len(rejected)).
		Int("matches", len(pairs)).
		Strs("fallback", sourceNames(fallback)).
		Dur("took", end.Sub(start)).
		Msg("correlation run finished")
	return payload, nil
}

func (p *Pipeline) fetchFeed(ctx context.Context, f source.Feed) feedResult {
	name := f.Source.Name()
	t0 := time.Now()
	raws, err := f.Source.Fetch(ctx)
	if m := p.opts.Metrics; m != nil {
		m.FetchDuration.WithLabelValues(name).Observe(time.Since(t0).Seconds())
		m.FetchTotal.WithLabelValues(name, metrics.Status(err)).Inc()
	}
	switch {
	case err != nil:
		log.Error().Err(err).Str("source", name).Msg("fetch failed")
	case len(raws) == 0:
		log.Warn().Str("source", name).Msg("feed returned no events")
	default:
		log.Debug().Str("source", name).Int("events", len(raws)).Msg("fetched")
		return feedResult{raws: raws}
	}

	if f.Fallback == nil || ctx.Err() != nil {
		return feedResult{}
	}
	fb, ferr := f.Fallback.Fetch(ctx)
	if ferr != nil {
		log.Error().Err(ferr).Str("source", name).Str("fallback", f.Fallback.Name()).Msg("fallback failed")
		return feedResult{}
	}
	if m := p.opts.Metrics; m != nil {
		m.FallbackTotal.WithLabelValues(name).Inc()
	}
	log.Warn().Str("source", name).Str("fallback", f.Fallback.Name()).Int("events", len(fb)).Msg("using fallback data")
	return feedResult{raws: fb, fallback: true}
}

func sourceNames(ss []model.Source) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}
