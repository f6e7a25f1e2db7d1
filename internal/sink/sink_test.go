package sink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galois26/transient-correlator/internal/config"
	"github.com/galois26/transient-correlator/internal/metrics"
	"github.com/galois26/transient-correlator/internal/model"
)

var runAt = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func payload() *model.Payload {
	return &model.Payload{
		AllEvents: []model.EventView{
			{ID: "MOCK_ZTF_0", Source: model.SourceZTF, Time: "2024-05-06T07:00:00Z", RA: 10, Dec: 20},
			{ID: "MOCK_ZTF_1", Source: model.SourceZTF, Time: "2024-05-06T07:01:00Z", RA: 50, Dec: 20},
			{ID: "GW1", Source: model.SourceGWOSC, Time: "2024-05-06T07:02:00Z", RA: 11, Dec: 21},
		},
		Correlations: []model.Pair{{A: "MOCK_ZTF_0", B: "GW1"}},
		RunID:        "3f1c",
		GeneratedAt:  runAt,
		Rejected:     []model.Rejected{{ID: "bad", Source: model.SourceZTF, Reason: "dec out of range"}},
		Fallback:     []model.Source{model.SourceZTF},
		Policy:       model.PolicyView{TimeWindowSeconds: 600, SeparationThresholdDegrees: 5},
	}
}

type captured struct {
	mu      sync.Mutex
	path    string
	headers http.Header
	body    []byte
}

func captureServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.path, c.headers, c.body = r.URL.Path, r.Header.Clone(), b
		c.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestLoki_Push(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	s := NewLoki(config.LokiConfig{URL: srv.URL, TenantID: "astro", Job: "tc", UserAgent: "ua/1"})

	require.NoError(t, s.Push(context.Background(), payload()))
	assert.Equal(t, "/loki/api/v1/push", got.path)
	assert.Equal(t, "astro", got.headers.Get("X-Scope-OrgID"))
	assert.Equal(t, "ua/1", got.headers.Get("User-Agent"))

	var req struct {
		Streams []lokiStream `json:"streams"`
	}
	require.NoError(t, json.Unmarshal(got.body, &req))
	require.Len(t, req.Streams, 2)
	assert.Equal(t, map[string]string{"job": "tc", "kind": "run"}, req.Streams[0].Stream)
	assert.Equal(t, "1714979289000000000", req.Streams[0].Values[0][0])
	assert.Contains(t, req.Streams[0].Values[0][1], `"matches":1`)
	assert.Contains(t, req.Streams[0].Values[0][1], `"run_id":"3f1c"`)

	assert.Equal(t, "match", req.Streams[1].Stream["kind"])
	require.Len(t, req.Streams[1].Values, 1)
	assert.Contains(t, req.Streams[1].Values[0][1], `"id":"MOCK_ZTF_0"`)
	assert.Contains(t, req.Streams[1].Values[0][1], `"id":"GW1"`)
}

func TestLoki_NoMatchesOnlySummary(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	p := payload()
	p.Correlations = []model.Pair{}

	require.NoError(t, NewLoki(config.LokiConfig{URL: srv.URL}).Push(context.Background(), p))
	var req struct {
		Streams []lokiStream `json:"streams"`
	}
	require.NoError(t, json.Unmarshal(got.body, &req))
	require.Len(t, req.Streams, 1)
	assert.Equal(t, "transient-correlator", req.Streams[0].Stream["job"])
}

func TestLoki_ErrorStatus(t *testing.T) {
	srv, _ := captureServer(t, http.StatusBadRequest)
	err := NewLoki(config.LokiConfig{URL: srv.URL}).Push(context.Background(), payload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestVictoria_Push(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	s := NewVictoria(config.VictoriaConfig{URL: srv.URL})

	require.NoError(t, s.Push(context.Background(), payload()))
	assert.Equal(t, "/api/v1/import/prometheus", got.path)
	assert.Equal(t, "text/plain", got.headers.Get("Content-Type"))

	want := strings.Join([]string{
		`correlator_run_events{source="GWOSC"} 1 1714979289000`,
		`correlator_run_events{source="ZTF"} 2 1714979289000`,
		`correlator_run_matches 1 1714979289000`,
		`correlator_run_rejected{source="ZTF"} 1 1714979289000`,
		`correlator_run_fallback{source="ZTF"} 1 1714979289000`,
	}, "\n") + "\n"
	assert.Equal(t, want, string(got.body))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `a\"b\\c`, escape(`a"b\c`))
}

type fakePutter struct {
	mu    sync.Mutex
	fails int
	calls int
	last  *s3.PutObjectInput
	body  []byte
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = in
	b, _ := io.ReadAll(in.Body)
	f.body = b
	if f.calls <= f.fails {
		return nil, errors.New("slow down")
	}
	return &s3.PutObjectOutput{}, nil
}

func TestArchive_Push(t *testing.T) {
	fp := &fakePutter{fails: 1}
	a := newArchive(config.ArchiveConfig{Bucket: "runs-bucket", Prefix: "runs/", Retries: 3}, fp)

	require.NoError(t, a.Push(context.Background(), payload()))
	assert.Equal(t, 2, fp.calls)
	assert.Equal(t, "runs-bucket", aws.ToString(fp.last.Bucket))
	assert.Equal(t, "runs/2024/05/06/3f1c.json.gz", aws.ToString(fp.last.Key))
	assert.Equal(t, "gzip", aws.ToString(fp.last.ContentEncoding))
	assert.Equal(t, int64(len(fp.body)), aws.ToInt64(fp.last.ContentLength))

	zr, err := gzip.NewReader(bytes.NewReader(fp.body))
	require.NoError(t, err)
	var p model.Payload
	require.NoError(t, json.NewDecoder(zr).Decode(&p))
	assert.Equal(t, "3f1c", p.RunID)
	assert.Equal(t, []model.Pair{{A: "MOCK_ZTF_0", B: "GW1"}}, p.Correlations)
}

func TestArchive_GivesUp(t *testing.T) {
	fp := &fakePutter{fails: 10}
	a := newArchive(config.ArchiveConfig{Bucket: "b", Retries: 2}, fp)

	require.Error(t, a.Push(context.Background(), payload()))
	assert.Equal(t, 2, fp.calls)
}

type stubSink struct {
	name string
	err  error
	got  *model.Payload
}

func (s *stubSink) Name() string { return s.name }
func (s *stubSink) Push(_ context.Context, p *model.Payload) error {
	s.got = p
	return s.err
}

func TestPushAll(t *testing.T) {
	ok := &stubSink{name: "ok"}
	bad := &stubSink{name: "bad", err: errors.New("unreachable")}
	m := metrics.New()
	p := payload()

	err := PushAll(context.Background(), []Sink{ok, bad}, p, m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Same(t, p, ok.got)
	assert.Same(t, p, bad.got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkPushTotal.WithLabelValues("ok", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkPushTotal.WithLabelValues("bad", "error")))

	assert.NoError(t, PushAll(context.Background(), nil, p, nil))
}

func TestFromConfig(t *testing.T) {
	c := config.Default()
	sinks, err := FromConfig(context.Background(), c)
	require.NoError(t, err)
	assert.Empty(t, sinks)

	c.Loki.URL = "http://loki:3100"
	c.Victoria.URL = "http://vm:8428"
	sinks, err = FromConfig(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, sinks, 2)
	assert.Equal(t, "loki", sinks[0].Name())
	assert.Equal(t, "victoria", sinks[1].Name())
}
