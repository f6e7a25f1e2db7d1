package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.MatchesTotal.Add(3)

	assert.Equal(t, 3.0, testutil.ToFloat64(a.MatchesTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.MatchesTotal))
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.FetchTotal.WithLabelValues("ZTF", Status(nil)).Inc()
	m.FetchTotal.WithLabelValues("GWOSC", Status(errors.New("boom"))).Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `transient_correlator_fetch_total{source="ZTF",status="ok"} 1`)
	assert.Contains(t, string(body), `transient_correlator_fetch_total{source="GWOSC",status="error"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
