// Package sym defines the glyphs nightshift attaches to log lines and CLI output.
// Each subsystem logs with its glyph in the "symbol" field so that logs stay
// filterable without parsing messages.
package sym

// Scheduling glyphs.
const (
	Pulse      = "꩜" // control loop ticks, sleep and wake
	PulseOpen  = "✿" // startup procedure
	PulseClose = "❀" // shutdown procedure
	Eval       = "⋈" // evaluation pass, scoring and selection
	Job        = "✦" // job execution stages
)

// Equipment glyphs.
const (
	Mount   = "⌖" // mount slew, park and unpark
	Dome    = "⌂" // dome park and unpark
	Weather = "☁" // weather monitor
	Wire    = "⟶" // remote equipment transport
)

// Infrastructure glyphs.
const (
	AM = "≡" // configuration
	DB = "⊔" // database/storage layer
)

// All returns every glyph keyed by its short name.
func All() map[string]string {
	return map[string]string{
		"pulse":       Pulse,
		"pulse_open":  PulseOpen,
		"pulse_close": PulseClose,
		"eval":        Eval,
		"job":         Job,
		"mount":       Mount,
		"dome":        Dome,
		"weather":     Weather,
		"wire":        Wire,
		"am":          AM,
		"db":          DB,
	}
}
