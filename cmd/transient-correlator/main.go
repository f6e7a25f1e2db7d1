package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/galois26/transient-correlator/internal/config"
	"github.com/galois26/transient-correlator/internal/logger"
	"github.com/galois26/transient-correlator/internal/metrics"
	"github.com/galois26/transient-correlator/internal/pipeline"
	"github.com/galois26/transient-correlator/internal/server"
	"github.com/galois26/transient-correlator/internal/sink"
	"github.com/galois26/transient-correlator/internal/source"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	var (
		cfgPath  = flag.String("config", "", "path to YAML config (defaults only when empty)")
		mode     = flag.String("mode", "serve", "serve: HTTP API and visualizer; push: periodic runs to sinks")
		interval = flag.Duration("interval", 15*time.Minute, "run interval in push mode")
		once     = flag.Bool("once", false, "push mode: run a single cycle then exit")
	)
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger.Init(cfg.Log)
	log.Info().Str("version", Version).Str("mode", *mode).Msg("transient-correlator starting")

	var m *metrics.Metrics
	if cfg.Metrics.Enable {
		m = metrics.New()
	}

	feeds := source.FeedsFromConfig(cfg)
	for _, f := range feeds {
		ev := log.Info().Str("source", f.Source.Name())
		if f.Fallback != nil {
			ev = ev.Str("fallback", f.Fallback.Name())
		}
		ev.Msg("configured feed")
	}
	p := pipeline.New(feeds, pipeline.Options{
		Policy:            cfg.Policy,
		ParallelThreshold: cfg.Correlation.ParallelThreshold,
		Workers:           cfg.Correlation.Workers,
		Metrics:           m,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "serve":
		err = serve(ctx, cfg, p, m)
	case "push":
		err = push(ctx, cfg, p, m, *interval, *once)
	default:
		log.Fatal().Str("mode", *mode).Msg("unknown mode (want serve or push)")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("exiting")
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Parse(nil)
	}
	return config.Load(path)
}

func serve(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, m *metrics.Metrics) error {
	srv, err := server.New(cfg.Server, p, m)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.ListenAddress).Msg("listening")
		if err := srv.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shCtx)
}

func push(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, m *metrics.Metrics, interval time.Duration, once bool) error {
	sinks, err := sink.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	if len(sinks) == 0 {
		return errors.New("no sinks configured (need loki, victoria and/or archive)")
	}
	for _, s := range sinks {
		log.Info().Str("sink", s.Name()).Msg("configured sink")
	}

	runOnce := func() {
		payload, err := p.Run(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("run aborted")
			return
		}
		if err := sink.PushAll(ctx, sinks, payload, m); err != nil {
			return
		}
		log.Info().Str("run_id", payload.RunID).Int("sinks", len(sinks)).Msg("run pushed")
	}

	log.Info().Dur("interval", interval).Msg("push loop started")
	runOnce()
	if once {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Err(ctx.Err()).Msg("stopping")
			return nil
		case <-ticker.C:
			runOnce()
		}
	}
}
