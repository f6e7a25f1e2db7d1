package sink

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/galois26/transient-correlator/internal/util"
)

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// httpPoster sends one request per push; retries belong to the next cycle.
type httpPoster struct {
	service   string
	client    httpDoer
	userAgent string
}

func newHTTPPoster(service string, timeout time.Duration, ua string) *httpPoster {
	return &httpPoster{service: service, client: util.NewHTTPClient(timeout), userAgent: ua}
}

func (h *httpPoster) post(ctx context.Context, url string, body io.Reader, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	if err := util.CheckResponse(h.service, resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
