package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galois26/transient-correlator/internal/config"
	"github.com/galois26/transient-correlator/internal/metrics"
	"github.com/galois26/transient-correlator/internal/model"
)

type stubRunner struct {
	p   *model.Payload
	err error
}

func (s stubRunner) Run(context.Context) (*model.Payload, error) { return s.p, s.err }

func samplePayload() *model.Payload {
	return &model.Payload{
		AllEvents: []model.EventView{
			{ID: "ZTF_A", Source: model.SourceZTF, Time: "2015-09-14T09:52:00Z", RA: 10, Dec: 20},
			{ID: "GW150914", Source: model.SourceGWOSC, Time: "2015-09-14T09:50:45.4Z", RA: 11, Dec: 21},
		},
		Correlations: []model.Pair{{A: "ZTF_A", B: "GW150914"}},
		RunID:        "run-1",
		GeneratedAt:  time.Date(2015, 9, 14, 10, 0, 0, 0, time.UTC),
		Rejected:     []model.Rejected{},
		Fallback:     []model.Source{},
		Policy:       model.PolicyView{TimeWindowSeconds: 600, SeparationThresholdDegrees: 5},
	}
}

func newTestServer(t *testing.T, r Runner, m *metrics.Metrics) *httptest.Server {
	t.Helper()
	s, err := New(config.Server{ListenAddress: ":0"}, r, m)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestEvents_PayloadShape(t *testing.T) {
	ts := newTestServer(t, stubRunner{p: samplePayload()}, nil)

	res, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, []any{[]any{"ZTF_A", "GW150914"}}, body["correlations"])
	events, ok := body["all_events"].([]any)
	require.True(t, ok)
	require.Len(t, events, 2)
	first := events[0].(map[string]any)
	assert.Equal(t, "ZTF_A", first["id"])
	assert.Equal(t, "ZTF", first["source"])
	assert.Equal(t, "2015-09-14T09:52:00Z", first["time"])
	assert.Equal(t, "run-1", body["run_id"])
	assert.Contains(t, body, "rejected")
	assert.Contains(t, body, "fallback")
	assert.Contains(t, body, "policy")
}

func TestEvents_Gzip(t *testing.T) {
	p := samplePayload()
	for i := 0; i < 100; i++ {
		p.AllEvents = append(p.AllEvents, model.EventView{ID: fmt.Sprintf("MOCK_ZTF_%d", i), Source: model.SourceZTF, Time: "2015-09-14T09:00:00Z", RA: float64(i), Dec: 1})
	}
	ts := newTestServer(t, stubRunner{p: p}, nil)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/events", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	res, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, "gzip", res.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(res.Body)
	require.NoError(t, err)
	var got model.Payload
	require.NoError(t, json.NewDecoder(zr).Decode(&got))
	assert.Len(t, got.AllEvents, 102)
	assert.Equal(t, []model.Pair{{A: "ZTF_A", B: "GW150914"}}, got.Correlations)
}

func TestEvents_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, stubRunner{p: samplePayload()}, nil)

	res, err := http.Post(ts.URL+"/api/events", "application/json", nil)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
}

func TestEvents_RunAborted(t *testing.T) {
	ts := newTestServer(t, stubRunner{err: context.Canceled}, nil)

	res, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestHealthzAndMetrics(t *testing.T) {
	m := metrics.New()
	m.MatchesTotal.Add(2)
	ts := newTestServer(t, stubRunner{p: samplePayload()}, m)

	res, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	b, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, "ok", string(b))

	res, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	b, _ = io.ReadAll(res.Body)
	res.Body.Close()
	assert.Contains(t, string(b), "transient_correlator_matches_total 2")
}

func TestMetricsAbsentWithoutCollectors(t *testing.T) {
	ts := newTestServer(t, stubRunner{p: samplePayload()}, nil)

	res, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestStatic_Embedded(t *testing.T) {
	ts := newTestServer(t, stubRunner{p: samplePayload()}, nil)

	res, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	b, _ := io.ReadAll(res.Body)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(b), "/api/events")
}

func TestStatic_Dir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<p>custom</p>"), 0o644))

	s, err := New(config.Server{StaticDir: dir}, stubRunner{p: samplePayload()}, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	b, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, "<p>custom</p>", string(b))
}
