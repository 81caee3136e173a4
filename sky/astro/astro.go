// Package astro holds the low-precision ephemeris math the scheduler needs:
// sidereal time, horizontal coordinates, and approximate sun and moon
// positions. Accuracy is a few arc-minutes for the sun and about a quarter
// degree for the moon, which is well inside what one-minute scheduling
// resolution can use.
package astro

import (
	"math"
	"time"
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi

	// J2000 epoch as a Julian day
	J2000 = 2451545.0

	// SiderealRate is sidereal seconds per solar second
	SiderealRate = 1.00273790935
)

// Equatorial coordinates. RA is in hours, Dec in degrees.
type Equatorial struct {
	RA  float64
	Dec float64
}

// JulianDay converts t to a Julian day number.
func JulianDay(t time.Time) float64 {
	return float64(t.UTC().UnixNano())/86400e9 + 2440587.5
}

// GMST returns Greenwich mean sidereal time in degrees [0, 360).
func GMST(t time.Time) float64 {
	jd := JulianDay(t)
	d := jd - J2000
	c := d / 36525
	gmst := 280.46061837 + 360.98564736629*d + 0.000387933*c*c - c*c*c/38710000
	return normDeg(gmst)
}

// LST returns local sidereal time in hours [0, 24) for an east-positive longitude.
func LST(t time.Time, longitude float64) float64 {
	return normDeg(GMST(t)+longitude) / 15
}

// Altitude returns the altitude in degrees of p seen from latitude at sidereal time lst (hours).
func Altitude(p Equatorial, latitude, lst float64) float64 {
	ha := (lst - p.RA) * 15 * deg2rad
	lat := latitude * deg2rad
	dec := p.Dec * deg2rad
	s := math.Sin(lat)*math.Sin(dec) + math.Cos(lat)*math.Cos(dec)*math.Cos(ha)
	return math.Asin(clampUnit(s)) * rad2deg
}

// Separation returns the angular distance between a and b in degrees.
func Separation(a, b Equatorial) float64 {
	ra1, dec1 := a.RA*15*deg2rad, a.Dec*deg2rad
	ra2, dec2 := b.RA*15*deg2rad, b.Dec*deg2rad
	// haversine keeps precision for small separations
	sd := math.Sin((dec2 - dec1) / 2)
	sr := math.Sin((ra2 - ra1) / 2)
	h := sd*sd + math.Cos(dec1)*math.Cos(dec2)*sr*sr
	return 2 * math.Asin(math.Sqrt(clampUnit(h))) * rad2deg
}

// Sun returns the apparent equatorial position of the sun at t.
func Sun(t time.Time) Equatorial {
	d := JulianDay(t) - J2000
	g := normDeg(357.529+0.98560028*d) * deg2rad
	q := normDeg(280.459 + 0.98564736*d)
	l := (q + 1.915*math.Sin(g) + 0.020*math.Sin(2*g)) * deg2rad
	e := (23.439 - 0.00000036*d) * deg2rad

	ra := math.Atan2(math.Cos(e)*math.Sin(l), math.Cos(l)) * rad2deg
	dec := math.Asin(math.Sin(e)*math.Sin(l)) * rad2deg
	return Equatorial{RA: normDeg(ra) / 15, Dec: dec}
}

// Moon returns the geocentric equatorial position of the moon at t and its
// horizontal parallax in degrees.
func Moon(t time.Time) (Equatorial, float64) {
	d := JulianDay(t) - J2000
	c := d / 36525

	lambda := 218.32 + 481267.881*c +
		6.29*sinDeg(135.0+477198.87*c) -
		1.27*sinDeg(259.3-413335.36*c) +
		0.66*sinDeg(235.7+890534.22*c) +
		0.21*sinDeg(269.9+954397.74*c) -
		0.19*sinDeg(357.5+35999.05*c) -
		0.11*sinDeg(186.5+966404.03*c)
	beta := 5.13*sinDeg(93.3+483202.02*c) +
		0.28*sinDeg(228.2+960400.89*c) -
		0.28*sinDeg(318.3+6003.15*c) -
		0.17*sinDeg(217.6-407332.21*c)
	parallax := 0.9508 +
		0.0518*cosDeg(134.9+477198.85*c) +
		0.0095*cosDeg(259.2-413335.38*c) +
		0.0078*cosDeg(235.7+890534.23*c) +
		0.0028*cosDeg(269.9+954397.70*c)

	l := normDeg(lambda) * deg2rad
	b := beta * deg2rad
	e := (23.439 - 0.00000036*d) * deg2rad

	x := math.Cos(b) * math.Cos(l)
	y := math.Cos(e)*math.Cos(b)*math.Sin(l) - math.Sin(e)*math.Sin(b)
	z := math.Sin(e)*math.Cos(b)*math.Sin(l) + math.Cos(e)*math.Sin(b)

	ra := math.Atan2(y, x) * rad2deg
	dec := math.Asin(clampUnit(z)) * rad2deg
	return Equatorial{RA: normDeg(ra) / 15, Dec: dec}, parallax
}

// MoonIllumination returns the illuminated fraction of the lunar disc [0, 1].
func MoonIllumination(t time.Time) float64 {
	moon, _ := Moon(t)
	elongation := Separation(Sun(t), moon) * deg2rad
	return (1 - math.Cos(elongation)) / 2
}

// TopocentricAltitude corrects a geocentric altitude for horizontal parallax.
func TopocentricAltitude(alt, parallax float64) float64 {
	return alt - parallax*math.Cos(alt*deg2rad)
}

func normDeg(x float64) float64 {
	x = math.Mod(x, 360)
	if x < 0 {
		x += 360
	}
	return x
}

func sinDeg(x float64) float64 { return math.Sin(x * deg2rad) }
func cosDeg(x float64) float64 { return math.Cos(x * deg2rad) }

func clampUnit(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
