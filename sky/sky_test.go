package sky

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/nightshift/sky/astro"
)

var cet = time.FixedZone("CET", 3600)

func madrid() Site {
	return Site{Name: "Madrid", Latitude: 40.4, Longitude: -3.7, Location: cet}
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2025, 1, 15, 22, 0, 0, 0, cet)
	c := NewFixedClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestDayFraction(t *testing.T) {
	s := madrid()
	assert.InDelta(t, 0.5, s.DayFraction(time.Date(2025, 1, 15, 12, 0, 0, 0, cet)), 1e-9)
	// 11:00 UTC is noon in CET
	assert.InDelta(t, 0.5, s.DayFraction(time.Date(2025, 1, 15, 11, 0, 0, 0, time.UTC)), 1e-9)
	assert.InDelta(t, 0.75, s.DayFraction(time.Date(2025, 1, 15, 18, 0, 0, 0, cet)), 1e-9)
}

func TestTwilightMidLatitudeWinter(t *testing.T) {
	s := madrid()
	tw := s.Twilight(time.Date(2025, 1, 15, 15, 0, 0, 0, cet))

	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, cet), tw.Date)
	assert.InDelta(t, 7.0/24, tw.Dawn, 0.5/24)
	assert.InDelta(t, 19.75/24, tw.Dusk, 0.5/24)
	assert.True(t, tw.IsDark(2.0/24))
	assert.True(t, tw.IsDark(23.0/24))
	assert.False(t, tw.IsDark(12.0/24))

	// sun altitude is close to -18 at both boundaries
	assert.InDelta(t, AstronomicalTwilightAltitude, s.SunAltitude(tw.DawnTime()), 0.5)
	assert.InDelta(t, AstronomicalTwilightAltitude, s.SunAltitude(tw.DuskTime()), 0.5)
}

func TestTwilightWithoutDarkness(t *testing.T) {
	s := Site{Latitude: 60, Longitude: 10, Location: time.FixedZone("CEST", 7200)}
	tw := s.Twilight(time.Date(2025, 6, 21, 12, 0, 0, 0, s.Location))
	assert.Equal(t, 0.0, tw.Dawn)
	assert.Equal(t, 1.0, tw.Dusk)
	assert.False(t, tw.IsDark(0.01))
}

func TestTwilightPolarNight(t *testing.T) {
	s := Site{Latitude: 85, Longitude: 0, Location: time.UTC}
	tw := s.Twilight(time.Date(2025, 12, 21, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, 1.0, tw.Dawn)
	assert.True(t, tw.IsDark(0.5))
}

func TestPreDawn(t *testing.T) {
	s := madrid()
	evening := time.Date(2025, 1, 15, 22, 0, 0, 0, cet)
	cutoff := s.PreDawn(evening, 30*time.Minute)

	// Evening: cutoff is the next morning
	next := s.Twilight(time.Date(2025, 1, 16, 12, 0, 0, 0, cet))
	assert.Equal(t, 16, cutoff.Day())
	assert.InDelta(t, next.DawnTime().Add(-30*time.Minute).Unix(), cutoff.Unix(), 1)

	// Early morning before dawn: cutoff is later the same day
	early := time.Date(2025, 1, 16, 2, 0, 0, 0, cet)
	assert.Equal(t, cutoff.Unix(), s.PreDawn(early, 30*time.Minute).Unix())
}

func TestHourAngleAndTransit(t *testing.T) {
	s := madrid()
	target := astro.Equatorial{RA: 5.5, Dec: 22}
	from := time.Date(2025, 1, 15, 12, 0, 0, 0, cet)

	transit := s.TransitAfter(target, from)
	require.True(t, !transit.Before(from))
	assert.True(t, transit.Sub(from) < 24*time.Hour)
	assert.InDelta(t, 0.0, s.HourAngle(target, transit), 0.01)
	assert.InDelta(t, 90-(40.4-22), s.Altitude(target, transit), 0.1)

	// an hour later the target is setting
	assert.InDelta(t, 1.0, s.HourAngle(target, transit.Add(time.Hour)), 0.01)
	assert.InDelta(t, -1.0, s.HourAngle(target, transit.Add(-time.Hour)), 0.01)
}

func TestMoonState(t *testing.T) {
	s := madrid()
	at := time.Date(2024, 4, 23, 23, 49, 0, 0, time.UTC)
	m := s.Moon(at)
	assert.Greater(t, m.Illumination, 0.97)
	assert.InDelta(t, 0.0, s.MoonSeparation(m.Position, at), 1e-9)
}

func TestContextNowUsesSiteZone(t *testing.T) {
	ctx := Context{
		Clock: NewFixedClock(time.Date(2025, 1, 15, 21, 0, 0, 0, time.UTC)),
		Site:  madrid(),
	}
	assert.Equal(t, 22, ctx.Now().Hour())
}
