package astro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJulianDay(t *testing.T) {
	j2000 := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.InDelta(t, J2000, JulianDay(j2000), 1e-9)

	// Meeus example 7.a: 1957 October 4.81
	sputnik := time.Date(1957, 10, 4, 19, 26, 24, 0, time.UTC)
	assert.InDelta(t, 2436116.31, JulianDay(sputnik), 1e-6)
}

func TestGMST(t *testing.T) {
	// Meeus example 12.a: 1987 April 10, 0h UT -> 13h10m46.3668s
	at := time.Date(1987, 4, 10, 0, 0, 0, 0, time.UTC)
	want := (13 + 10.0/60 + 46.3668/3600) * 15
	assert.InDelta(t, want, GMST(at), 1e-3)
}

func TestAltitude(t *testing.T) {
	// Object on the meridian: altitude = 90 - |lat - dec|
	p := Equatorial{RA: 5, Dec: 20}
	assert.InDelta(t, 60.0, Altitude(p, 50, 5), 1e-9)

	// Celestial pole sits at the site latitude regardless of time
	pole := Equatorial{RA: 0, Dec: 90}
	for _, lst := range []float64{0, 6, 12, 18} {
		assert.InDelta(t, 40.0, Altitude(pole, 40, lst), 1e-9)
	}

	// 12h from the meridian the object culminates below the pole
	assert.InDelta(t, 0.0, Altitude(Equatorial{RA: 0, Dec: 40}, 50, 12), 1e-9)
}

func TestSeparation(t *testing.T) {
	a := Equatorial{RA: 0, Dec: 0}
	assert.InDelta(t, 90.0, Separation(a, Equatorial{RA: 6, Dec: 0}), 1e-9)
	assert.InDelta(t, 90.0, Separation(a, Equatorial{RA: 0, Dec: 90}), 1e-9)
	assert.InDelta(t, 0.0, Separation(a, a), 1e-9)
	assert.InDelta(t, 180.0, Separation(a, Equatorial{RA: 12, Dec: 0}), 1e-6)
}

func TestSunAtSolstice(t *testing.T) {
	june := Sun(time.Date(2024, 6, 20, 20, 51, 0, 0, time.UTC))
	assert.InDelta(t, 23.44, june.Dec, 0.05)
	assert.InDelta(t, 6.0, june.RA, 0.02)

	march := Sun(time.Date(2024, 3, 20, 3, 6, 0, 0, time.UTC))
	assert.InDelta(t, 0.0, march.Dec, 0.05)
}

func TestMoonIllumination(t *testing.T) {
	// Full moon 2024-04-23 23:49 UTC, new moon 2024-04-08 18:21 UTC
	full := MoonIllumination(time.Date(2024, 4, 23, 23, 49, 0, 0, time.UTC))
	assert.Greater(t, full, 0.97)

	newMoon := MoonIllumination(time.Date(2024, 4, 8, 18, 21, 0, 0, time.UTC))
	assert.Less(t, newMoon, 0.03)
}

func TestMoonDeclinationBounded(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 24*30; h += 7 {
		m, parallax := Moon(start.Add(time.Duration(h) * time.Hour))
		assert.LessOrEqual(t, m.Dec, 29.0)
		assert.GreaterOrEqual(t, m.Dec, -29.0)
		assert.InDelta(t, 0.95, parallax, 0.07)
	}
}

func TestTopocentricAltitude(t *testing.T) {
	assert.InDelta(t, -1.0, TopocentricAltitude(0, 1), 1e-9)
	assert.InDelta(t, 90.0, TopocentricAltitude(90, 1), 1e-9)
}
