// Package astrotime converts the time encodings used by astronomical feeds
// into UTC instants.
package astrotime

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	secondsPerDay = 86400
	// MJD of the Unix epoch, 1970-01-01T00:00:00Z.
	mjdUnixEpoch = 40587
	// Unix seconds of the GPS epoch, 1980-01-06T00:00:00Z.
	gpsUnixEpoch = 315964800
)

// ErrNotFinite is returned for NaN and infinite inputs.
var ErrNotFinite = errors.New("astrotime: value is not finite")

// ErrOutOfRange is returned for inputs that fall outside years 1 to 9999.
var ErrOutOfRange = errors.New("astrotime: value out of range")

// Unix seconds bounding the accepted instants: [0001-01-01, 10000-01-01).
var (
	minUnix = float64(date(1, 1, 1))
	maxUnix = float64(date(10000, 1, 1))
)

func inRange(unixSec float64) bool {
	return unixSec >= minUnix && unixSec < maxUnix
}

// leap is a step of the GPS-UTC offset taking effect at a UTC instant.
type leap struct {
	utc    int64 // unix seconds at which the new offset applies
	offset int64 // GPS-UTC after the step, seconds
}

// leapSeconds lists every leap second since the GPS epoch (IERS Bulletin C).
// Append new entries here when one is announced.
var leapSeconds = []leap{
	{date(1981, 7, 1), 1},
	{date(1982, 7, 1), 2},
	{date(1983, 7, 1), 3},
	{date(1985, 7, 1), 4},
	{date(1988, 1, 1), 5},
	{date(1990, 1, 1), 6},
	{date(1991, 1, 1), 7},
	{date(1992, 7, 1), 8},
	{date(1993, 7, 1), 9},
	{date(1994, 7, 1), 10},
	{date(1996, 1, 1), 11},
	{date(1997, 7, 1), 12},
	{date(1999, 1, 1), 13},
	{date(2006, 1, 1), 14},
	{date(2009, 1, 1), 15},
	{date(2012, 7, 1), 16},
	{date(2015, 7, 1), 17},
	{date(2017, 1, 1), 18},
}

func date(y int, m time.Month, d int) int64 {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}

// FromMJD converts a modified Julian date on the UTC scale to an instant.
// Whole days and the day fraction are converted separately so large day
// counts do not eat into sub-second precision.
func FromMJD(mjd float64) (time.Time, error) {
	if math.IsNaN(mjd) || math.IsInf(mjd, 0) {
		return time.Time{}, ErrNotFinite
	}
	days := math.Floor(mjd)
	if !inRange((days - mjdUnixEpoch) * secondsPerDay) {
		return time.Time{}, fmt.Errorf("%w: mjd %v", ErrOutOfRange, mjd)
	}
	frac := mjd - days
	ns := int64(math.Round(frac * secondsPerDay * 1e9))
	sec := (int64(days) - mjdUnixEpoch) * secondsPerDay
	return time.Unix(sec, 0).Add(time.Duration(ns)).UTC(), nil
}

// ToMJD is the inverse of FromMJD.
func ToMJD(t time.Time) float64 {
	t = t.UTC()
	return float64(t.Unix())/secondsPerDay + float64(t.Nanosecond())/(secondsPerDay*1e9) + mjdUnixEpoch
}

// FromGPS converts GPS seconds to a UTC instant, removing the leap seconds
// accumulated between the GPS epoch and that instant.
func FromGPS(gps float64) (time.Time, error) {
	if math.IsNaN(gps) || math.IsInf(gps, 0) {
		return time.Time{}, ErrNotFinite
	}
	whole := math.Floor(gps)
	if !inRange(gpsUnixEpoch + whole) {
		return time.Time{}, fmt.Errorf("%w: gps %v", ErrOutOfRange, gps)
	}
	ns := int64(math.Round((gps - whole) * 1e9))
	naive := gpsUnixEpoch + int64(whole)
	return time.Unix(naive-gpsOffsetAt(naive), ns).UTC(), nil
}

// ToGPS is the inverse of FromGPS.
func ToGPS(t time.Time) float64 {
	t = t.UTC()
	sec := t.Unix()
	return float64(sec+GPSMinusUTC(t)-gpsUnixEpoch) + float64(t.Nanosecond())/1e9
}

// GPSMinusUTC returns the GPS-UTC offset in seconds in force at t.
func GPSMinusUTC(t time.Time) int64 {
	u := t.UTC().Unix()
	for i := len(leapSeconds) - 1; i >= 0; i-- {
		if u >= leapSeconds[i].utc {
			return leapSeconds[i].offset
		}
	}
	return 0
}

// gpsOffsetAt finds the offset for a naive GPS-scale unix time. A step takes
// effect on the GPS scale at utc+offset.
func gpsOffsetAt(naive int64) int64 {
	for i := len(leapSeconds) - 1; i >= 0; i-- {
		if naive >= leapSeconds[i].utc+leapSeconds[i].offset {
			return leapSeconds[i].offset
		}
	}
	return 0
}

var civilLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseCivil parses a textual timestamp. Strings without a zone are taken as UTC.
func ParseCivil(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("astrotime: empty timestamp")
	}
	for _, layout := range civilLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("astrotime: unsupported timestamp %q", s)
}
