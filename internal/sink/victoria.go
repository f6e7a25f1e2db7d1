package sink

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/galois26/transient-correlator/internal/config"
	"github.com/galois26/transient-correlator/internal/model"
)

type victoriaSink struct {
	cfg    config.VictoriaConfig
	client *httpPoster
}

func NewVictoria(cfg config.VictoriaConfig) Sink {
	to := cfg.Timeout
	if to == 0 {
		to = 10 * time.Second
	}
	return &victoriaSink{cfg: cfg, client: newHTTPPoster("victoria", to, cfg.UserAgent)}
}

func (v *victoriaSink) Name() string { return "victoria" }

// Push imports per-run samples in the Prometheus text format:
//
//	correlator_run_events{source="ZTF"} 20 <ms>
//	correlator_run_matches 3 <ms>
//	correlator_run_rejected{source="ZTF"} 1 <ms>
//	correlator_run_fallback{source="ZTF"} 1 <ms>
func (v *victoriaSink) Push(ctx context.Context, p *model.Payload) error {
	ts := p.GeneratedAt.UnixMilli()

	events := map[model.Source]int{}
	for _, e := range p.AllEvents {
		events[e.Source]++
	}
	rejected := map[model.Source]int{}
	for _, r := range p.Rejected {
		rejected[r.Source]++
	}

	var buf bytes.Buffer
	writeBySource(&buf, "correlator_run_events", events, ts)
	fmt.Fprintf(&buf, "correlator_run_matches %d %d\n", len(p.Correlations), ts)
	writeBySource(&buf, "correlator_run_rejected", rejected, ts)
	for _, s := range p.Fallback {
		fmt.Fprintf(&buf, "correlator_run_fallback{source=\"%s\"} 1 %d\n", escape(string(s)), ts)
	}

	return v.client.post(ctx, v.cfg.URL+"/api/v1/import/prometheus", &buf, map[string]string{"Content-Type": "text/plain"})
}

// writeBySource emits one sample per source, sorted by source.
func writeBySource(buf *bytes.Buffer, metric string, counts map[model.Source]int, ts int64) {
	keys := make([]string, 0, len(counts))
	for s := range counts {
		keys = append(keys, string(s))
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{source=\"%s\"} %d %d\n", metric, escape(k), counts[model.Source(k)], ts)
	}
}

// escape quotes a label value.
func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
}
