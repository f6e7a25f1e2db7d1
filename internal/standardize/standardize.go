// Package standardize turns raw feed records into canonical events.
package standardize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/galois26/transient-correlator/internal/astrotime"
	"github.com/galois26/transient-correlator/internal/model"
	"github.com/galois26/transient-correlator/internal/sky"
)

// MalformedRecordError reports a raw record that cannot be standardized.
type MalformedRecordError struct {
	ID     string
	Source model.Source
	Field  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	id := e.ID
	if id == "" {
		id = "<no id>"
	}
	return fmt.Sprintf("malformed record %s/%s: %s: %s", e.Source, id, e.Field, e.Reason)
}

// Rejection pairs a raw record with the reason it was dropped.
type Rejection struct {
	Event model.RawEvent
	Err   *MalformedRecordError
}

// Standardize validates a raw record and converts it to a CanonicalEvent.
// Any failure is a *MalformedRecordError.
func Standardize(raw model.RawEvent) (model.CanonicalEvent, error) {
	bad := func(field, reason string) error {
		return &MalformedRecordError{ID: raw.ID, Source: raw.Source, Field: field, Reason: reason}
	}

	if strings.TrimSpace(raw.ID) == "" {
		return model.CanonicalEvent{}, bad("id", "missing")
	}
	if strings.TrimSpace(string(raw.Source)) == "" {
		return model.CanonicalEvent{}, bad("source", "missing")
	}

	instant, err := toInstant(raw.Time)
	if err != nil {
		return model.CanonicalEvent{}, bad("time", err.Error())
	}

	ra, err := toFloat(raw.RA)
	if err != nil {
		return model.CanonicalEvent{}, bad("ra", err.Error())
	}
	dec, err := toFloat(raw.Dec)
	if err != nil {
		return model.CanonicalEvent{}, bad("dec", err.Error())
	}
	p := model.SkyPosition{RA: ra, Dec: dec}
	if err := sky.Validate(p); err != nil {
		field := "ra"
		if ra >= 0 && ra < 360 {
			field = "dec"
		}
		return model.CanonicalEvent{}, bad(field, err.Error())
	}

	return model.CanonicalEvent{
		ID:       raw.ID,
		Source:   raw.Source,
		Instant:  instant,
		Position: p,
	}, nil
}

// StandardizeAll standardizes a batch. Malformed records are collected as
// rejections instead of aborting; accepted events keep their input order.
func StandardizeAll(raws []model.RawEvent) ([]model.CanonicalEvent, []Rejection) {
	out := make([]model.CanonicalEvent, 0, len(raws))
	var rejected []Rejection
	for _, r := range raws {
		ev, err := Standardize(r)
		if err != nil {
			var mre *MalformedRecordError
			if !errors.As(err, &mre) {
				mre = &MalformedRecordError{ID: r.ID, Source: r.Source, Field: "record", Reason: err.Error()}
			}
			rejected = append(rejected, Rejection{Event: r, Err: mre})
			continue
		}
		out = append(out, ev)
	}
	return out, rejected
}

// toInstant dispatches on the time variant.
func toInstant(rt model.RawTime) (time.Time, error) {
	if rt.IsZero() || rt.Value == nil {
		return time.Time{}, errors.New("missing")
	}
	switch rt.Format {
	case model.TimeCivil:
		switch v := rt.Value.(type) {
		case time.Time:
			if v.IsZero() {
				return time.Time{}, errors.New("missing")
			}
			return v.UTC(), nil
		case *time.Time:
			if v == nil || v.IsZero() {
				return time.Time{}, errors.New("missing")
			}
			return v.UTC(), nil
		case string:
			return astrotime.ParseCivil(v)
		default:
			return time.Time{}, fmt.Errorf("unsupported civil time type %T", v)
		}
	case model.TimeMJD:
		f, err := toFloat(rt.Value)
		if err != nil {
			return time.Time{}, fmt.Errorf("mjd: %w", err)
		}
		return astrotime.FromMJD(f)
	case model.TimeGPS:
		f, err := toFloat(rt.Value)
		if err != nil {
			return time.Time{}, fmt.Errorf("gps: %w", err)
		}
		return astrotime.FromGPS(f)
	default:
		return time.Time{}, fmt.Errorf("unknown time format %q", rt.Format)
	}
}

// toFloat accepts the numeric shapes JSON decoders and feed mappers produce.
func toFloat(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0, errors.New("missing")
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case *float64:
		if n == nil {
			return 0, errors.New("missing")
		}
		f = *n
	case json.Number:
		x, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", n.String())
		}
		f = x
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, errors.New("missing")
		}
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", n)
		}
		f = x
	default:
		return 0, fmt.Errorf("not numeric: %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not finite")
	}
	return f, nil
}
