// Package score rates how suitable a job is to run at a given moment. All
// functions are pure: they read the job, the site and the night's twilight
// and return a 16-bit score. Negative scores mean "do not run"; BadScore is
// reserved for hard failures.
//
// The constants and curves here are empirical. They are preserved exactly,
// including the truncation of intermediate results to 16-bit integers.
package score

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/nightshift/equipment"
	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/logger"
	"github.com/teranos/nightshift/scheduler/job"
	"github.com/teranos/nightshift/sky"
	"github.com/teranos/nightshift/sky/astro"
)

const (
	// DefaultMinAltitude is the altitude floor used when a job sets none.
	DefaultMinAltitude = 15.0

	// SettingAltitudeCutoff is how close to its minimum altitude a setting
	// target may be before it is no longer worth starting.
	SettingAltitudeCutoff = 3.0

	// MoonScoreDivisor scales the moon effect down to roughly 0..20.
	MoonScoreDivisor = 5.0
)

// Failures reported by the start-time searches.
var (
	ErrNoNightWindow        = errors.New("no night time found above minimum altitude")
	ErrTooCloseToDawn       = errors.New("target rises too close to astronomical dawn")
	ErrCulminatesInDaylight = errors.New("target culminates during the day")
	ErrAlreadyPassed        = errors.New("observation time already passed")
)

// Night is the twilight window scores are computed against.
type Night struct {
	Twilight      sky.Twilight
	PreDawnMargin time.Duration
}

// EarlyDawn returns the start of the pre-dawn margin as a day fraction.
func (n Night) EarlyDawn() float64 {
	return n.Twilight.Dawn - n.PreDawnMargin.Minutes()/(60.0*24.0)
}

// Scorer computes scores for one site and one night.
type Scorer struct {
	Site  sky.Site
	Night Night
	log   *zap.SugaredLogger
}

// New returns a Scorer. A nil logger discards output.
func New(site sky.Site, night Night, log *zap.SugaredLogger) *Scorer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Scorer{Site: site, Night: night, log: logger.AddEvalSymbol(log)}
}

func target(j *job.Job) astro.Equatorial {
	return astro.Equatorial{RA: j.RA, Dec: j.Dec}
}

// toScore truncates toward zero and saturates at the int16 range.
func toScore(v float64) int16 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// DarkSky rates t by its distance from astronomical dawn or dusk.
func (s *Scorer) DarkSky(t time.Time) int16 {
	frac := s.Site.DayFraction(t)
	tw := s.Night.Twilight

	var score int16
	switch {
	case frac > s.Night.EarlyDawn() && frac < tw.Dawn:
		score = job.BadScore / 50
	case frac < tw.Dawn:
		score = toScore((tw.Dawn - frac) * 100)
	case frac > tw.Dusk:
		score = toScore((frac - tw.Dusk) * 100)
	default:
		score = job.BadScore
	}

	s.log.Debugw("Dark sky score", logger.FieldScore, score, "at", t)
	return score
}

// Altitude rates the target's altitude at t.
func (s *Scorer) Altitude(j *job.Job, t time.Time) int16 {
	alt := s.Site.Altitude(target(j), t)

	var score int16
	switch {
	case alt < 0:
		score = job.BadScore
	case j.HasMinAltitude():
		if alt < j.MinAltitude {
			score = job.BadScore
			break
		}
		// a setting target close to its limit would end almost at once
		ha := s.Site.HourAngle(target(j), t)
		if ha > 0 && alt-SettingAltitudeCutoff < j.MinAltitude {
			score = job.BadScore / 2
		} else {
			score = altitudeCurve(alt)
		}
	case alt < DefaultMinAltitude:
		score = toScore(alt / 10.0)
	default:
		score = altitudeCurve(alt)
	}

	s.log.Infow("Altitude score",
		logger.FieldJob, j.Name,
		logger.FieldAltitude, alt,
		logger.FieldScore, score,
		"at", t)
	return score
}

func altitudeCurve(alt float64) int16 {
	return toScore(1.5*math.Pow(1.06, alt) - DefaultMinAltitude/10.0)
}

// Moon rates the target's distance from the moon at t, weighted by the
// moon's altitude and illumination.
func (s *Scorer) Moon(j *job.Job, t time.Time) int16 {
	p := target(j)
	targetAlt := s.Site.Altitude(p, t)
	moon := s.Site.Moon(t)

	illum := moon.Illumination * 100.0
	separation := astro.Separation(moon.Position, p)
	zMoon := 90 - moon.Altitude
	zTarget := 90 - targetAlt

	var score int16
	if zMoon == zTarget || illum == 0 || zMoon >= 90 {
		score = 100
	} else {
		effect := (math.Pow(separation, 1.7) * math.Pow(zMoon, 0.5)) /
			(math.Pow(zTarget, 1.1) * math.Pow(illum, 0.5))
		effect = math.Max(0, math.Min(100, effect))

		if j.HasMinMoonSeparation() && separation < j.MinMoonSeparation {
			score = job.BadScore * 5
		} else {
			score = toScore(effect)
		}
	}
	score = toScore(float64(score) / MoonScoreDivisor)

	s.log.Infow("Moon score",
		logger.FieldJob, j.Name,
		logger.FieldScore, score,
		"separation", separation)
	return score
}

// Job sums the scores that apply to j at t. Dark sky counts only when the
// job enforces twilight and altitude only when it has pipeline steps.
func (s *Scorer) Job(j *job.Job, t time.Time) int16 {
	var total int16
	if j.EnforceTwilight {
		total += s.DarkSky(t)
	}
	if j.Steps != job.UseNone {
		total += s.Altitude(j, t)
	}
	total += s.Moon(j, t)
	return total
}

// Weather rates the site weather. Disabled checks score zero.
func Weather(enabled bool, state equipment.PropertyState) int16 {
	if !enabled {
		return 0
	}
	switch state {
	case equipment.StateBusy:
		return job.BadScore / 2
	case equipment.StateAlert:
		return job.BadScore
	}
	return 0
}

// AltitudeTime scans the next 24 hours minute by minute from now for the
// first dark moment at which the target is above minAltitude and, when
// minMoonSeparation is positive, the moon score is not negative.
//
// A candidate that falls inside the pre-dawn margin ends the search with
// ErrTooCloseToDawn.
func (s *Scorer) AltitudeTime(j *job.Job, now time.Time, minAltitude, minMoonSeparation float64) (time.Time, error) {
	p := target(j)
	start := s.Site.Local(now).Truncate(time.Minute)
	tw := s.Night.Twilight
	earlyDawn := s.Night.EarlyDawn()

	for i := 0; i < 24*60; i++ {
		at := start.Add(time.Duration(i) * time.Minute)
		frac := s.Site.DayFraction(at)
		if !tw.IsDark(frac) {
			continue
		}
		alt := s.Site.Altitude(p, at)
		if alt <= minAltitude {
			continue
		}
		if frac > earlyDawn && frac < tw.Dawn {
			s.log.Infow("Target rises too close to astronomical dawn",
				logger.FieldJob, j.Name,
				logger.FieldAltitude, minAltitude,
				"at", at)
			return time.Time{}, errors.Wrapf(ErrTooCloseToDawn, "%s at %s", j.Name, at.Format(time.RFC3339))
		}
		if minMoonSeparation > 0 && s.Moon(j, at) < 0 {
			continue
		}
		s.log.Infow("Job scheduled by altitude",
			logger.FieldJob, j.Name,
			logger.FieldStartAt, at,
			logger.FieldAltitude, alt)
		return at, nil
	}

	if minMoonSeparation > 0 {
		return time.Time{}, errors.Wrapf(ErrNoNightWindow, "%s above %.3g degrees with moon separation %.3g",
			j.Name, minAltitude, minMoonSeparation)
	}
	return time.Time{}, errors.Wrapf(ErrNoNightWindow, "%s above %.3g degrees", j.Name, minAltitude)
}

// Culmination returns the target's transit time adjusted by the job's
// culmination offset. The transit of today is used unless it has already
// passed, in which case tomorrow's is used.
func (s *Scorer) Culmination(j *job.Job, now time.Time) (time.Time, error) {
	local := s.Site.Local(now)
	midnight := s.Site.Midnight(local)
	transit := s.Site.TransitAfter(target(j), midnight)
	clock := transit.Sub(midnight)

	day := midnight
	if local.Sub(midnight) > clock {
		day = midnight.AddDate(0, 0, 1)
	}
	at := day.Add(clock).Add(time.Duration(j.CulminationOffset) * time.Minute)

	s.log.Infow("Culmination time",
		logger.FieldJob, j.Name,
		"transit", transit,
		logger.FieldStartAt, at)

	if s.DarkSky(at) < 0 {
		return time.Time{}, errors.Wrap(ErrCulminatesInDaylight, j.Name)
	}
	if at.Before(local) {
		return time.Time{}, errors.Wrap(ErrAlreadyPassed, j.Name)
	}
	return at, nil
}
