package model

import "time"

// Source tags the detection stream an event came from.
type Source string

const (
	SourceZTF   Source = "ZTF"   // optical transients via the ALeRCE broker
	SourceGWOSC Source = "GWOSC" // gravitational-wave candidates
)

// TimeFormat names the producer-specific encoding of an arrival time.
type TimeFormat string

const (
	TimeCivil TimeFormat = "civil" // time.Time or a textual timestamp
	TimeMJD   TimeFormat = "mjd"   // modified Julian date, UTC scale
	TimeGPS   TimeFormat = "gps"   // seconds since the GPS epoch
)

// RawTime is an arrival time as the producer reported it.
// Value holds a time.Time or string for civil times and a number
// (float64, json.Number, numeric string) for MJD and GPS.
type RawTime struct {
	Format TimeFormat
	Value  any
}

func CivilTime(t time.Time) RawTime { return RawTime{Format: TimeCivil, Value: t} }
func CivilString(s string) RawTime { return RawTime{Format: TimeCivil, Value: s} }
func MJD(v any) RawTime { return RawTime{Format: TimeMJD, Value: v} }
func GPS(v any) RawTime { return RawTime{Format: TimeGPS, Value: v} }
func (t RawTime) IsZero() bool { return t.Format == "" && t.Value == nil }
func (t RawTime) String() string { return string(t.Format) }

// RawEvent is a record as mapped from an upstream feed, before validation.
type RawEvent struct {
	ID     string  // unique within its source
	Source Source  // e.g. ZTF
	Time   RawTime // producer-specific arrival time
	RA     any     // right ascension, degrees
	Dec    any     // declination, degrees
}

// SkyPosition is a point on the celestial sphere in degrees.
type SkyPosition struct {
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
}

// CanonicalEvent is the normalized representation used by the correlation engine.
type CanonicalEvent struct {
	ID       string
	Source   Source
	Instant  time.Time // UTC
	Position SkyPosition
}

// Pair is an unordered pair of event IDs from different sources.
// A is the event that appeared first in the correlated batch.
type Pair struct {
	A string
	B string
}
