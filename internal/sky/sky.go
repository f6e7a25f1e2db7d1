// Package sky holds celestial-sphere geometry on (RA, Dec) positions in degrees.
package sky

import (
	"fmt"
	"math"

	"github.com/galois26/transient-correlator/internal/model"
)

const deg = math.Pi / 180

// Separation returns the great-circle angle between a and b in degrees.
//
// It uses the haversine form, which stays well conditioned for small angles
// and is unaffected by the 0/360 right-ascension wrap.
func Separation(a, b model.SkyPosition) float64 {
	ra1, dec1 := a.RA*deg, a.Dec*deg
	ra2, dec2 := b.RA*deg, b.Dec*deg

	sinDDec := math.Sin((dec2 - dec1) / 2)
	sinDRA := math.Sin((ra2 - ra1) / 2)
	h := sinDDec*sinDDec + math.Cos(dec1)*math.Cos(dec2)*sinDRA*sinDRA
	// rounding can push h slightly outside [0,1] for antipodal points
	h = math.Min(1, math.Max(0, h))
	return 2 * math.Asin(math.Sqrt(h)) / deg
}

// Validate checks that RA lies in [0, 360) and Dec in [-90, 90].
func Validate(p model.SkyPosition) error {
	switch {
	case math.IsNaN(p.RA) || math.IsInf(p.RA, 0):
		return fmt.Errorf("ra %v is not finite", p.RA)
	case math.IsNaN(p.Dec) || math.IsInf(p.Dec, 0):
		return fmt.Errorf("dec %v is not finite", p.Dec)
	case p.RA < 0 || p.RA >= 360:
		return fmt.Errorf("ra %v outside [0, 360)", p.RA)
	case p.Dec < -90 || p.Dec > 90:
		return fmt.Errorf("dec %v outside [-90, 90]", p.Dec)
	}
	return nil
}
