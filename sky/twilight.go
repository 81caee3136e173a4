package sky

import "time"

// AstronomicalTwilightAltitude is the solar altitude marking astronomical dawn and dusk.
const AstronomicalTwilightAltitude = -18.0

// Twilight holds astronomical dawn and dusk of one local day as fractions of
// the day. Dark sky is any time before Dawn or after Dusk.
type Twilight struct {
	Date time.Time // local midnight of the day
	Dawn float64
	Dusk float64
}

// IsDark reports whether the day fraction lies outside the twilight window.
func (tw Twilight) IsDark(fraction float64) bool {
	return fraction < tw.Dawn || fraction > tw.Dusk
}

// DawnTime returns dawn on the twilight's day.
func (tw Twilight) DawnTime() time.Time {
	return tw.Date.Add(fractionToDuration(tw.Dawn))
}

// DuskTime returns dusk on the twilight's day.
func (tw Twilight) DuskTime() time.Time {
	return tw.Date.Add(fractionToDuration(tw.Dusk))
}

// Twilight computes astronomical dawn and dusk for the local day containing t
// by scanning the sun's altitude minute by minute.
//
// With no astronomical darkness (high-latitude summer) the whole day counts as
// twilight: Dawn = 0, Dusk = 1. With no daylight twilight at all (polar night)
// the whole day is dark: Dawn = 1, Dusk = 1.
func (s Site) Twilight(t time.Time) Twilight {
	midnight := s.Midnight(t)
	tw := Twilight{Date: midnight, Dawn: -1, Dusk: -1}

	const steps = 24 * 60
	prev := s.SunAltitude(midnight)
	everDark := prev < AstronomicalTwilightAltitude
	everLight := !everDark

	for i := 1; i <= steps; i++ {
		at := midnight.Add(time.Duration(i) * time.Minute)
		alt := s.SunAltitude(at)
		if alt < AstronomicalTwilightAltitude {
			everDark = true
		} else {
			everLight = true
		}

		frac := float64(i) / steps
		if tw.Dawn < 0 && prev < AstronomicalTwilightAltitude && alt >= AstronomicalTwilightAltitude {
			tw.Dawn = frac
		}
		if tw.Dusk < 0 && prev >= AstronomicalTwilightAltitude && alt < AstronomicalTwilightAltitude {
			tw.Dusk = frac
		}
		prev = alt
	}

	switch {
	case !everDark:
		tw.Dawn, tw.Dusk = 0, 1
	case !everLight:
		tw.Dawn, tw.Dusk = 1, 1
	default:
		if tw.Dawn < 0 {
			tw.Dawn = 0
		}
		if tw.Dusk < 0 {
			tw.Dusk = 1
		}
	}
	return tw
}

// PreDawn returns the pre-dawn cutoff: astronomical dawn minus margin. If
// that moment has already passed at now, the cutoff for the next day is
// returned.
func (s Site) PreDawn(now time.Time, margin time.Duration) time.Time {
	tw := s.Twilight(now)
	earlyDawn := tw.Dawn - margin.Minutes()/(60*24)
	if s.DayFraction(now) >= tw.Dawn {
		next := s.Twilight(tw.Date.AddDate(0, 0, 1).Add(12 * time.Hour))
		return next.Date.Add(fractionToDuration(next.Dawn - margin.Minutes()/(60*24)))
	}
	return tw.Date.Add(fractionToDuration(earlyDawn))
}

func fractionToDuration(f float64) time.Duration {
	return time.Duration(f * 24 * float64(time.Hour)).Truncate(time.Second)
}
