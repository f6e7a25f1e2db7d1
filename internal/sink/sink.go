package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/galois26/transient-correlator/internal/config"
	"github.com/galois26/transient-correlator/internal/metrics"
	"github.com/galois26/transient-correlator/internal/model"
)

// Sink receives the result of every run in push mode.
type Sink interface {
	Name() string
	Push(ctx context.Context, p *model.Payload) error
}

// FromConfig builds every sink whose destination is configured.
func FromConfig(ctx context.Context, c *config.Config) ([]Sink, error) {
	var sinks []Sink
	if strings.TrimSpace(c.Loki.URL) != "" {
		sinks = append(sinks, NewLoki(c.Loki))
	}
	if strings.TrimSpace(c.Victoria.URL) != "" {
		sinks = append(sinks, NewVictoria(c.Victoria))
	}
	if strings.TrimSpace(c.Archive.Bucket) != "" {
		s, err := NewArchive(ctx, c.Archive)
		if err != nil {
			return nil, fmt.Errorf("init archive sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// PushAll pushes p to every sink concurrently. A failing sink does not stop
// the others; all failures are returned joined.
func PushAll(ctx context.Context, sinks []Sink, p *model.Payload, m *metrics.Metrics) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(sinks))
	for _, sk := range sinks {
		wg.Add(1)
		go func(sk Sink) {
			defer wg.Done()
			err := sk.Push(ctx, p)
			if m != nil {
				m.SinkPushTotal.WithLabelValues(sk.Name(), metrics.Status(err)).Inc()
			}
			if err != nil {
				errCh <- fmt.Errorf("push run %s -> %s: %w", p.RunID, sk.Name(), err)
				return
			}
			log.Debug().Str("sink", sk.Name()).Str("run_id", p.RunID).Msg("pushed")
		}(sk)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		log.Error().Err(err).Msg("sink push failed")
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
