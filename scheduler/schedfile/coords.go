package schedfile

import (
	"strconv"
	"strings"

	"github.com/teranos/nightshift/errors"
)

// ParseHours reads a right ascension written either as decimal hours or as
// sexagesimal "HH:MM:SS" (spaces or 'h m s' also accepted).
func ParseHours(s string) (float64, error) {
	v, err := parseSexagesimal(s)
	if err != nil {
		return 0, errors.WithHint(invalid("invalid right ascension %q", s),
			"write J2000RA as decimal hours or HH:MM:SS")
	}
	return v, nil
}

// ParseDegrees reads a declination written either as decimal degrees or as
// sexagesimal "±DD:MM:SS".
func ParseDegrees(s string) (float64, error) {
	v, err := parseSexagesimal(s)
	if err != nil {
		return 0, errors.WithHint(invalid("invalid declination %q", s),
			"write J2000DE as decimal degrees or DD:MM:SS")
	}
	return v, nil
}

func parseSexagesimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty")
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimLeft(s, "+-")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ':', ' ', 'h', 'm', 's', 'd', '°', '\'', '"':
			return true
		}
		return false
	})
	if len(fields) == 0 || len(fields) > 3 {
		return 0, errors.New("expected up to three components")
	}

	v := 0.0
	scale := 1.0
	for _, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil || n < 0 {
			return 0, errors.Newf("bad component %q", f)
		}
		v += n / scale
		scale *= 60
	}
	if neg {
		v = -v
	}
	return v, nil
}
