// Package server exposes correlation runs over HTTP together with the
// visualizer page, health and metrics endpoints.
package server

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"

	"github.com/galois26/transient-correlator/internal/config"
	"github.com/galois26/transient-correlator/internal/metrics"
	"github.com/galois26/transient-correlator/internal/model"
)

//go:embed static
var staticFS embed.FS

// Runner produces one payload per call.
type Runner interface {
	Run(ctx context.Context) (*model.Payload, error)
}

type Server struct {
	runner Runner
	mux    *http.ServeMux
	server *http.Server
}

// New wires the routes. m may be nil, in which case /metrics is not served.
func New(cfg config.Server, runner Runner, m *metrics.Metrics) (*Server, error) {
	s := &Server{runner: runner, mux: http.NewServeMux()}

	static, err := staticHandler(cfg.StaticDir)
	if err != nil {
		return nil, err
	}
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if m != nil {
		s.mux.Handle("/metrics", m.Handler())
	}
	s.mux.Handle("/", static)

	s.server = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

// Handler is the full route tree with gzip compression applied.
func (s *Server) Handler() http.Handler { return gzhttp.GzipHandler(s.mux) }

func (s *Server) Serve() error                       { return s.server.ListenAndServe() }
func (s *Server) Shutdown(ctx context.Context) error { return s.server.Shutdown(ctx) }

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	p, err := s.runner.Run(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("events request aborted")
		http.Error(w, "request canceled", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("encode payload")
		return
	}
	log.Debug().
		Str("run_id", p.RunID).
		Str("remote", r.RemoteAddr).
		Dur("took", time.Since(start)).
		Msg("served events")
}

// staticHandler serves dir when set, the embedded page otherwise.
func staticHandler(dir string) (http.Handler, error) {
	if strings.TrimSpace(dir) != "" {
		return http.FileServer(http.Dir(dir)), nil
	}
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}
	return http.FileServer(http.FS(sub)), nil
}
