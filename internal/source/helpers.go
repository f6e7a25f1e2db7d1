package source

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/galois26/transient-correlator/internal/config"
	"github.com/galois26/transient-correlator/internal/util"
)

// fetcher carries what every HTTP source needs: a client, a limiter and
// retry settings.
type fetcher struct {
	name      string
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	res       config.Resilience
}

func newFetcher(name string, h config.CommonHTTP, res config.Resilience) fetcher {
	to := defaultDur(h.Timeout, 15*time.Second)
	var lim *rate.Limiter
	if res.RatePerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(res.RatePerSecond), max(1, res.Burst))
	}
	return fetcher{
		name:      name,
		client:    util.NewHTTPClient(to),
		limiter:   lim,
		userAgent: h.UserAgent,
		res:       res,
	}
}

// get performs a GET with rate limiting and retries and returns the body.
func (f fetcher) get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := util.Retry(ctx, max(1, f.res.MaxRetries), defaultDur(f.res.Backoff, 500*time.Millisecond), defaultDur(f.res.MaxBackoff, 5*time.Second), func() error {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return util.Permanent(err)
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return util.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if f.userAgent != "" {
			req.Header.Set("User-Agent", f.userAgent)
		}
		r, err := f.client.Do(req)
		if err != nil {
			return err
		}
		if err := util.CheckResponse(f.name, r); err != nil {
			return err
		}
		defer r.Body.Close()
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	return body, err
}

// decodeNumbers unmarshals keeping numbers as json.Number so that the
// standardizer sees exactly what the feed sent.
func decodeNumbers(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}

func defaultDur(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
