package source

import (
	"context"

	"github.com/galois26/transient-correlator/internal/config"
	"github.com/galois26/transient-correlator/internal/model"
)

// Source fetches the current snapshot of one upstream feed.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]model.RawEvent, error)
}

// Feed is an upstream source and what to use when it yields nothing.
// A nil Fallback means an empty set.
type Feed struct {
	Source   Source
	Fallback Source
}

// FeedsFromConfig builds the ZTF and GWOSC feeds. ZTF falls back to
// synthetic events when enabled; GWOSC has no fallback.
func FeedsFromConfig(c *config.Config) []Feed {
	ztf := Feed{Source: NewZTFSource(c.Sources.ZTF)}
	if c.Fallback.Enable {
		ztf.Fallback = NewFallbackSource(model.SourceZTF, c.Fallback)
	}
	return []Feed{
		ztf,
		{Source: NewGWOSCSource(c.Sources.GWOSC)},
	}
}
