package orchestrate

import "time"

// Procedure is the startup and shutdown procedure of a schedule.
type Procedure struct {
	StartupScript string
	UnparkDome    bool
	UnparkMount   bool
	UnparkCap     bool

	WarmCCD        bool
	ParkCap        bool
	ParkMount      bool
	ParkDome       bool
	ShutdownScript string
}

// DefaultProcedure unparks and parks everything and runs no scripts.
func DefaultProcedure() Procedure {
	return Procedure{
		UnparkDome:  true,
		UnparkMount: true,
		UnparkCap:   true,
		WarmCCD:     true,
		ParkCap:     true,
		ParkMount:   true,
		ParkDome:    true,
	}
}

// Capabilities are what the connected devices support. They are discovered
// by the device property check; until then everything but weather is
// assumed supported.
type Capabilities struct {
	MountPark     bool
	DomePark      bool
	CapPark       bool
	CoolerControl bool
	Weather       bool
	WeatherPeriod time.Duration
}

// DefaultCapabilities returns the capabilities assumed before discovery.
func DefaultCapabilities() Capabilities {
	return Capabilities{MountPark: true, DomePark: true, CapPark: true, CoolerControl: true}
}

// Plan combines what the schedule asks for with what the devices support.
type Plan struct {
	Procedure    Procedure
	Capabilities Capabilities
}

// Enabled reports whether the park (or unpark) step of d runs.
func (p Plan) Enabled(d Device, park bool) bool {
	pr, c := p.Procedure, p.Capabilities
	switch d {
	case DeviceMount:
		return c.MountPark && (park && pr.ParkMount || !park && pr.UnparkMount)
	case DeviceDome:
		return c.DomePark && (park && pr.ParkDome || !park && pr.UnparkDome)
	case DeviceCap:
		return c.CapPark && (park && pr.ParkCap || !park && pr.UnparkCap)
	}
	return false
}

// WarmCCD reports whether shutdown disables camera cooling.
func (p Plan) WarmCCD() bool {
	return p.Procedure.WarmCCD && p.Capabilities.CoolerControl
}
