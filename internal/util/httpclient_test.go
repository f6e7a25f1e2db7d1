package util

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, 2*time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ReturnsLastError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, time.Millisecond, time.Millisecond, func() error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 2, calls)
}

func TestRetry_PermanentStops(t *testing.T) {
	calls := 0
	sentinel := errors.New("forbidden")
	err := Retry(context.Background(), 5, time.Millisecond, time.Millisecond, func() error {
		calls++
		return Permanent(sentinel)
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)

	err = Retry(context.Background(), 1, 0, 0, func() error { return Permanent(sentinel) })
	assert.Same(t, sentinel, err)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 3, time.Hour, time.Hour, func() error { return errors.New("x") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckResponse(t *testing.T) {
	codes := map[int]bool{ // status -> permanent
		http.StatusNotFound:           true,
		http.StatusForbidden:          true,
		http.StatusTooManyRequests:    false,
		http.StatusBadGateway:         false,
		http.StatusServiceUnavailable: false,
	}
	for code, permanent := range codes {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(" nope "))
		}))
		resp, err := http.Get(srv.URL)
		require.NoError(t, err)

		err = CheckResponse("feed", resp)
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, code, se.Code)
		assert.Equal(t, "nope", se.Body)

		var perm *permanentError
		assert.Equal(t, permanent, errors.As(err, &perm), "status %d", code)
		srv.Close()
	}
}
