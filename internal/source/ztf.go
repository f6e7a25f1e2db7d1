package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/galois26/transient-correlator/internal/config"
	"github.com/galois26/transient-correlator/internal/model"
)

// alerceObject is the subset of an ALeRCE object we map. Position and time
// stay untyped; the standardizer validates them.
type alerceObject struct {
	OID     string `json:"oid"`
	MeanRA  any    `json:"meanra"`
	MeanDec any    `json:"meandec"`
	LastMJD any    `json:"lastmjd"`
}

type ztfSource struct {
	cfg config.ZTFConfig
	f   fetcher
}

// NewZTFSource reads the latest classified ZTF objects from the ALeRCE API.
func NewZTFSource(cfg config.ZTFConfig) *ztfSource {
	return &ztfSource{cfg: cfg, f: newFetcher("alerce", cfg.HTTP, cfg.Resilience)}
}

func (s *ztfSource) Name() string { return string(model.SourceZTF) }

func (s *ztfSource) endpoint() string {
	base := strings.TrimRight(s.cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.alerce.online/ztf/v1"
	}
	q := url.Values{}
	if s.cfg.Classifier != "" {
		q.Set("classifier", s.cfg.Classifier)
	}
	if s.cfg.ClassName != "" {
		q.Set("class_name", s.cfg.ClassName)
	}
	q.Set("page_size", strconv.Itoa(max(1, s.cfg.PageSize)))
	q.Set("order_by", "lastmjd")
	q.Set("order_mode", "DESC")
	return base + "/objects?" + q.Encode()
}

// Fetch returns one page of objects, newest first. lastmjd is an MJD on the
// UTC scale.
func (s *ztfSource) Fetch(ctx context.Context) ([]model.RawEvent, error) {
	u := s.endpoint()
	log.Debug().Str("source", s.Name()).Str("url", u).Msg("fetching")

	body, err := s.f.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("ztf: %w", err)
	}
	objs, err := parseALeRCE(body)
	if err != nil {
		return nil, fmt.Errorf("ztf: %w", err)
	}

	out := make([]model.RawEvent, 0, len(objs))
	for _, o := range objs {
		out = append(out, model.RawEvent{
			ID:     o.OID,
			Source: model.SourceZTF,
			Time:   model.MJD(o.LastMJD),
			RA:     o.MeanRA,
			Dec:    o.MeanDec,
		})
	}
	log.Debug().Str("source", s.Name()).Int("events", len(out)).Msg("fetched")
	return out, nil
}

// parseALeRCE accepts the paginated {"items": [...]} shape and a bare array.
func parseALeRCE(body []byte) ([]alerceObject, error) {
	var page struct {
		Items *[]alerceObject `json:"items"`
	}
	if err := decodeNumbers(body, &page); err == nil && page.Items != nil {
		return *page.Items, nil
	}
	var arr []alerceObject
	if err := decodeNumbers(body, &arr); err == nil {
		return arr, nil
	}
	return nil, fmt.Errorf("unrecognized response shape (len=%d)", len(body))
}
