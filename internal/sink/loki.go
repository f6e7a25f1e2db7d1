package sink

import (
	"bytes"
	"context"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/galois26/transient-correlator/internal/config"
	"github.com/galois26/transient-correlator/internal/model"
)

type lokiSink struct {
	cfg    config.LokiConfig
	client *httpPoster
}

func NewLoki(cfg config.LokiConfig) Sink {
	to := cfg.Timeout
	if to == 0 {
		to = 10 * time.Second
	}
	return &lokiSink{cfg: cfg, client: newHTTPPoster("loki", to, cfg.UserAgent)}
}

func (l *lokiSink) Name() string { return "loki" }

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

// Push writes two streams: one summary line for the run (kind=run) and one
// line per correlated pair (kind=match), all stamped with the run time.
func (l *lokiSink) Push(ctx context.Context, p *model.Payload) error {
	ts := strconv.FormatInt(p.GeneratedAt.UnixNano(), 10)
	job := l.cfg.Job
	if job == "" {
		job = "transient-correlator"
	}

	summary, err := json.Marshal(map[string]any{
		"run_id":       p.RunID,
		"events":       len(p.AllEvents),
		"matches":      len(p.Correlations),
		"rejected":     len(p.Rejected),
		"fallback":     p.Fallback,
		"policy":       p.Policy,
		"generated_at": p.GeneratedAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	streams := []lokiStream{{
		Stream: map[string]string{"job": job, "kind": "run"},
		Values: [][2]string{{ts, string(summary)}},
	}}

	if len(p.Correlations) > 0 {
		byID := make(map[string]model.EventView, len(p.AllEvents))
		for _, e := range p.AllEvents {
			byID[e.ID] = e
		}
		matches := lokiStream{Stream: map[string]string{"job": job, "kind": "match"}}
		for _, pr := range p.Correlations {
			line, err := json.Marshal(map[string]any{
				"run_id": p.RunID,
				"a":      byID[pr.A],
				"b":      byID[pr.B],
			})
			if err != nil {
				return err
			}
			matches.Values = append(matches.Values, [2]string{ts, string(line)})
		}
		streams = append(streams, matches)
	}

	body, err := json.Marshal(struct {
		Streams []lokiStream `json:"streams"`
	}{streams})
	if err != nil {
		return err
	}
	hdr := map[string]string{"Content-Type": "application/json"}
	if l.cfg.TenantID != "" {
		hdr["X-Scope-OrgID"] = l.cfg.TenantID
	}
	return l.client.post(ctx, l.cfg.URL+"/loki/api/v1/push", bytes.NewReader(body), hdr)
}
