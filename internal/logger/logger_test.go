package logger

import (
	"bytes"
	stdlog "log"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galois26/transient-correlator/internal/config"
)

func TestInitWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(config.Log{Level: "warn", Service: "svc"}, &buf)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	zlog.Info().Msg("dropped")
	zlog.Warn().Str("source", "ZTF").Msg("kept")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "kept", rec["message"])
	assert.Equal(t, "warn", rec["level"])
	assert.Equal(t, "svc", rec["service"])
	assert.Equal(t, "ZTF", rec["source"])
}

func TestInitWriter_StdlogRedirect(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(config.Log{Level: "debug", Service: "svc"}, &buf)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	stdlog.Print("from stdlib")
	assert.Contains(t, buf.String(), "from stdlib")
}

func TestInitWriter_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(config.Log{Level: "loud"}, &buf)

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	zlog.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
}
