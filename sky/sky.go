// Package sky is the explicit observing context handed to the scheduler's
// components: a clock and a site. Nothing in the scheduler reads wall time
// or location from globals, so tests can pin both.
package sky

import (
	"math"
	"sync"
	"time"

	"github.com/teranos/nightshift/sky/astro"
)

// Clock is the scheduler's source of "now".
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall time.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock is a settable clock for tests and evaluate-only runs.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock returns a clock frozen at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Site is the observatory location.
type Site struct {
	Name      string
	Latitude  float64 // degrees, north positive
	Longitude float64 // degrees, east positive
	Elevation float64 // metres
	Location  *time.Location
}

// Context bundles the clock and the site.
type Context struct {
	Clock Clock
	Site  Site
}

// Now returns the current time in the site's zone.
func (c Context) Now() time.Time {
	return c.Site.Local(c.Clock.Now())
}

// Local converts t to the site's time zone.
func (s Site) Local(t time.Time) time.Time {
	if s.Location == nil {
		return t
	}
	return t.In(s.Location)
}

// Midnight returns the local midnight starting the day containing t.
func (s Site) Midnight(t time.Time) time.Time {
	lt := s.Local(t)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, lt.Location())
}

// DayFraction returns the local time of day of t as a fraction of a day.
func (s Site) DayFraction(t time.Time) float64 {
	lt := s.Local(t)
	secs := lt.Hour()*3600 + lt.Minute()*60 + lt.Second()
	return (float64(secs) + float64(lt.Nanosecond())/1e9) / 86400
}

// LST returns local sidereal time in hours.
func (s Site) LST(t time.Time) float64 {
	return astro.LST(t, s.Longitude)
}

// Altitude returns the altitude of target in degrees at t.
func (s Site) Altitude(target astro.Equatorial, t time.Time) float64 {
	return astro.Altitude(target, s.Latitude, s.LST(t))
}

// HourAngle returns the hour angle of target at t, normalised to (-12, 12].
// Positive values mean the target has transited and is setting.
func (s Site) HourAngle(target astro.Equatorial, t time.Time) float64 {
	ha := math.Mod(s.LST(t)-target.RA, 24)
	if ha > 12 {
		ha -= 24
	} else if ha <= -12 {
		ha += 24
	}
	return ha
}

// SunAltitude returns the sun's altitude in degrees at t.
func (s Site) SunAltitude(t time.Time) float64 {
	return s.Altitude(astro.Sun(t), t)
}

// MoonState describes the moon as seen from the site.
type MoonState struct {
	Position     astro.Equatorial
	Altitude     float64 // topocentric, degrees
	Illumination float64 // fraction [0, 1]
}

// Moon returns the moon's position, altitude and illumination at t.
func (s Site) Moon(t time.Time) MoonState {
	pos, parallax := astro.Moon(t)
	alt := astro.TopocentricAltitude(s.Altitude(pos, t), parallax)
	return MoonState{
		Position:     pos,
		Altitude:     alt,
		Illumination: astro.MoonIllumination(t),
	}
}

// MoonSeparation returns the angular distance between target and the moon at t.
func (s Site) MoonSeparation(target astro.Equatorial, t time.Time) float64 {
	pos, _ := astro.Moon(t)
	return astro.Separation(pos, target)
}

// TransitAfter returns the first meridian transit of target at or after t.
func (s Site) TransitAfter(target astro.Equatorial, t time.Time) time.Time {
	diff := math.Mod(target.RA-s.LST(t), 24)
	if diff < 0 {
		diff += 24
	}
	solarHours := diff / astro.SiderealRate
	return s.Local(t.Add(time.Duration(solarHours * float64(time.Hour))).Truncate(time.Second))
}
