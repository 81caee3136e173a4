package score

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/nightshift/equipment"
	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/scheduler/job"
	"github.com/teranos/nightshift/sky"
)

var cet = time.FixedZone("CET", 3600)

func madrid() sky.Site {
	return sky.Site{Name: "Madrid", Latitude: 40.4, Longitude: -3.7, Location: cet}
}

func at(h, m int) time.Time {
	return time.Date(2025, 1, 15, h, m, 0, 0, cet)
}

// syntheticScorer has dawn at 06:00 and dusk at 19:12.
func syntheticScorer(t *testing.T) *Scorer {
	night := Night{
		Twilight:      sky.Twilight{Date: at(0, 0), Dawn: 0.25, Dusk: 0.8},
		PreDawnMargin: 30 * time.Minute,
	}
	return New(madrid(), night, zaptest.NewLogger(t).Sugar())
}

func realScorer(t *testing.T, now time.Time) *Scorer {
	site := madrid()
	night := Night{Twilight: site.Twilight(now), PreDawnMargin: 30 * time.Minute}
	return New(site, night, zaptest.NewLogger(t).Sugar())
}

// raForHourAngle returns the right ascension that has hour angle ha at t.
func raForHourAngle(site sky.Site, t time.Time, ha float64) float64 {
	ra := math.Mod(site.LST(t)-ha, 24)
	if ra < 0 {
		ra += 24
	}
	return ra
}

func TestDarkSky(t *testing.T) {
	s := syntheticScorer(t)

	tests := []struct {
		name string
		at   time.Time
		want int16
	}{
		{"after midnight", at(1, 0), 20},
		{"inside pre-dawn margin", at(5, 45), job.BadScore / 50},
		{"daylight", at(12, 0), job.BadScore},
		{"evening", at(22, 0), 11},
		{"exactly dusk", at(19, 12), job.BadScore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.DarkSky(tt.at))
		})
	}
}

func TestAltitudeScore(t *testing.T) {
	site := madrid()
	s := syntheticScorer(t)
	now := at(22, 0)

	t.Run("never rises", func(t *testing.T) {
		j := job.New("south")
		j.RA, j.Dec = 0, -80
		assert.Equal(t, job.BadScore, s.Altitude(j, now))
	})

	t.Run("below minimum altitude", func(t *testing.T) {
		j := job.New("low")
		j.RA, j.Dec = raForHourAngle(site, now, 0), -40
		j.MinAltitude = 30
		assert.Equal(t, job.BadScore, s.Altitude(j, now))
	})

	t.Run("low without constraint scores a tenth of altitude", func(t *testing.T) {
		j := job.New("low")
		j.RA, j.Dec = raForHourAngle(site, now, 0), -40
		// culminates near 9.6 degrees
		assert.Equal(t, int16(0), s.Altitude(j, now))
	})

	t.Run("setting close to minimum", func(t *testing.T) {
		j := job.New("setting")
		j.RA, j.Dec = raForHourAngle(site, now, 2), site.Latitude
		j.MinAltitude = 66
		assert.Equal(t, job.BadScore/2, s.Altitude(j, now))
	})

	t.Run("rising at the same altitude scores the curve", func(t *testing.T) {
		j := job.New("rising")
		j.RA, j.Dec = raForHourAngle(site, now, -2), site.Latitude
		j.MinAltitude = 66
		got := s.Altitude(j, now)
		assert.InDelta(t, 74, float64(got), 2)
	})

	t.Run("zenith", func(t *testing.T) {
		j := job.New("zenith")
		j.RA, j.Dec = raForHourAngle(site, now, 0), site.Latitude
		got := s.Altitude(j, now)
		assert.Greater(t, got, int16(270))
		assert.Less(t, got, int16(290))
	})
}

// findMoon scans hourly from start for a time whose moon altitude satisfies ok.
func findMoon(t *testing.T, site sky.Site, start time.Time, ok func(alt float64) bool) time.Time {
	for i := 0; i < 24*30; i++ {
		when := start.Add(time.Duration(i) * time.Hour)
		m := site.Moon(when)
		if ok(m.Altitude) && m.Illumination > 0.05 {
			return when
		}
	}
	t.Fatal("no suitable moon position in 30 days")
	return time.Time{}
}

func TestMoonScore(t *testing.T) {
	site := madrid()
	s := syntheticScorer(t)

	up := findMoon(t, site, at(0, 0), func(alt float64) bool { return alt > 30 })
	moon := site.Moon(up)

	t.Run("on the moon without constraint", func(t *testing.T) {
		j := job.New("moon")
		j.RA, j.Dec = moon.Position.RA, moon.Position.Dec
		assert.Equal(t, int16(0), s.Moon(j, up))
	})

	t.Run("inside minimum separation", func(t *testing.T) {
		j := job.New("moon")
		j.RA, j.Dec = moon.Position.RA, moon.Position.Dec
		j.MinMoonSeparation = 10
		assert.Equal(t, job.BadScore, s.Moon(j, up))
	})

	t.Run("far from the moon stays within range", func(t *testing.T) {
		j := job.New("far")
		j.RA = math.Mod(moon.Position.RA+12, 24)
		j.Dec = -moon.Position.Dec
		got := s.Moon(j, up)
		assert.GreaterOrEqual(t, got, int16(0))
		assert.LessOrEqual(t, got, int16(20))
	})

	t.Run("moon below horizon", func(t *testing.T) {
		down := findMoon(t, site, at(0, 0), func(alt float64) bool { return alt < -10 })
		j := job.New("any")
		j.RA, j.Dec = 3, 20
		j.MinMoonSeparation = 170
		assert.Equal(t, int16(20), s.Moon(j, down))
	})
}

func TestJobScoreSkipsUnusedTerms(t *testing.T) {
	s := syntheticScorer(t)
	noon := at(12, 0)

	j := job.New("calibration")
	j.RA, j.Dec = 0, -80
	// daylight and a target below the horizon do not count without twilight or steps
	assert.Equal(t, s.Moon(j, noon), s.Job(j, noon))

	j.EnforceTwilight = true
	assert.Equal(t, job.BadScore+s.Moon(j, noon), s.Job(j, noon))

	j.Steps = job.UseTrack
	assert.Equal(t, 2*job.BadScore+s.Moon(j, noon), s.Job(j, noon))
}

func TestWeather(t *testing.T) {
	assert.Equal(t, int16(0), Weather(false, equipment.StateAlert))
	assert.Equal(t, int16(0), Weather(true, equipment.StateOk))
	assert.Equal(t, int16(0), Weather(true, equipment.StateIdle))
	assert.Equal(t, job.BadScore/2, Weather(true, equipment.StateBusy))
	assert.Equal(t, job.BadScore, Weather(true, equipment.StateAlert))
}

func TestAltitudeTime(t *testing.T) {
	site := madrid()
	now := at(12, 0)
	s := realScorer(t, now)

	j := job.New("M1")
	j.RA, j.Dec = 5.575, 22.01

	start, err := s.AltitudeTime(j, now, 30, -1)
	require.NoError(t, err)
	assert.True(t, start.After(now))
	assert.Greater(t, site.Altitude(target(j), start), 30.0)
	assert.True(t, s.Night.Twilight.IsDark(site.DayFraction(start)))
	assert.Equal(t, 0, start.Second())
}

func TestAltitudeTimeFailsDeterministically(t *testing.T) {
	now := at(12, 0)
	s := realScorer(t, now)

	j := job.New("south")
	j.RA, j.Dec = 0, -80

	_, err1 := s.AltitudeTime(j, now, 30, -1)
	_, err2 := s.AltitudeTime(j, now, 30, -1)
	require.Error(t, err1)
	assert.True(t, errors.Is(err1, ErrNoNightWindow))
	assert.Equal(t, err1.Error(), err2.Error())
}

func TestAltitudeTimeTooCloseToDawn(t *testing.T) {
	night := Night{
		Twilight:      sky.Twilight{Date: at(0, 0), Dawn: 0.25, Dusk: 1},
		PreDawnMargin: 6 * time.Hour,
	}
	s := New(madrid(), night, zaptest.NewLogger(t).Sugar())

	j := job.New("any")
	j.RA, j.Dec = 0, 40

	_, err := s.AltitudeTime(j, at(2, 0), -90, -1)
	assert.True(t, errors.Is(err, ErrTooCloseToDawn))
}

func TestCulmination(t *testing.T) {
	site := madrid()
	now := at(12, 0)
	s := realScorer(t, now)

	t.Run("tonight with offset", func(t *testing.T) {
		j := job.New("late")
		j.RA, j.Dec = raForHourAngle(site, at(23, 0), 0), 30
		j.CulminationOffset = 30
		got, err := s.Culmination(j, now)
		require.NoError(t, err)
		assert.WithinDuration(t, at(23, 30), got, 2*time.Minute)
	})

	t.Run("daylight transit", func(t *testing.T) {
		j := job.New("day")
		j.RA, j.Dec = raForHourAngle(site, at(13, 0), 0), 30
		_, err := s.Culmination(j, at(10, 0))
		assert.True(t, errors.Is(err, ErrCulminatesInDaylight))
	})

	t.Run("offset already passed", func(t *testing.T) {
		j := job.New("passed")
		j.RA, j.Dec = raForHourAngle(site, at(23, 0), 0), 30
		j.CulminationOffset = -20
		_, err := s.Culmination(j, at(22, 50))
		assert.True(t, errors.Is(err, ErrAlreadyPassed))
	})
}
