// Package equipment defines the remote services the scheduler drives. Every
// call is a request against a remote process: actions return as soon as the
// request is accepted, and progress is observed by polling a status call on a
// later tick. A service that cannot be reached returns an error wrapping
// errors.ErrServiceUnavailable.
package equipment

import (
	"context"

	"github.com/teranos/nightshift/errors"
)

// Mount is the telescope mount.
type Mount interface {
	Slew(ctx context.Context, ra, dec float64) error
	Abort(ctx context.Context) error
	Park(ctx context.Context) error
	Unpark(ctx context.Context) error
	ParkingStatus(ctx context.Context) (ParkingStatus, error)
	SlewStatus(ctx context.Context) (PropertyState, error)
	HourAngle(ctx context.Context) (float64, error)
	CanPark(ctx context.Context) (bool, error)
	ResetModel(ctx context.Context) error
}

// Dome is the observatory enclosure.
type Dome interface {
	Park(ctx context.Context) error
	Unpark(ctx context.Context) error
	Abort(ctx context.Context) error
	ParkingStatus(ctx context.Context) (ParkingStatus, error)
	IsMoving(ctx context.Context) (bool, error)
	CanPark(ctx context.Context) (bool, error)
}

// DustCap covers the optical tube.
type DustCap interface {
	Park(ctx context.Context) error
	Unpark(ctx context.Context) error
	ParkingStatus(ctx context.Context) (ParkingStatus, error)
	CanPark(ctx context.Context) (bool, error)
}

// Focuser runs the autofocus procedure.
type Focuser interface {
	Start(ctx context.Context) error
	Abort(ctx context.Context) error
	ResetFrame(ctx context.Context) error
	CanAutoFocus(ctx context.Context) (bool, error)
	Status(ctx context.Context) (FocusState, error)
	ClearAutoFocusHFR(ctx context.Context) error
	SetAutoStarEnabled(ctx context.Context, enabled bool) error
}

// Aligner plate-solves and re-points the mount.
type Aligner interface {
	CaptureAndSolve(ctx context.Context) error
	LoadAndSlew(ctx context.Context, file string) error
	Abort(ctx context.Context) error
	Status(ctx context.Context) (AlignState, error)
	SetSolverAction(ctx context.Context, action SolverAction) error
	SetUpdateCoords(ctx context.Context, update bool) error
}

// Guider calibrates and runs autoguiding.
type Guider interface {
	StartAutoCalibrateGuide(ctx context.Context) error
	ClearCalibration(ctx context.Context) error
	Abort(ctx context.Context) error
	Status(ctx context.Context) (GuideState, error)
}

// Capture runs capture sequences on the camera.
type Capture interface {
	LoadSequenceQueue(ctx context.Context, file string) error
	Start(ctx context.Context) error
	Abort(ctx context.Context) error
	ClearSequenceQueue(ctx context.Context) error
	SetTargetName(ctx context.Context, name string) error
	SequenceQueueStatus(ctx context.Context) (QueueStatus, error)
	SetCapturedFramesMap(ctx context.Context, signature string, count int) error
	IgnoreSequenceHistory(ctx context.Context) error
	HasCoolerControl(ctx context.Context) (bool, error)
	SetCoolerControl(ctx context.Context, enabled bool) error
}

// Weather reports the safety status of the site.
type Weather interface {
	Status(ctx context.Context) (PropertyState, error)
	UpdatePeriod(ctx context.Context) (int, error) // seconds, 0 = no periodic updates
}

// Manager starts the equipment stack and connects its devices.
type Manager interface {
	SetProfile(ctx context.Context, name string) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	StartingStatus(ctx context.Context) (CommStatus, error)
	ConnectDevices(ctx context.Context) error
	DisconnectDevices(ctx context.Context) error
	ConnectionStatus(ctx context.Context) (CommStatus, error)
}

// Services bundles every remote service.
type Services struct {
	Mount   Mount
	Dome    Dome
	DustCap DustCap
	Focuser Focuser
	Aligner Aligner
	Guider  Guider
	Capture Capture
	Weather Weather
	Manager Manager
}

// Validate checks that every service is present.
func (s Services) Validate() error {
	missing := map[string]bool{
		"mount":   s.Mount == nil,
		"dome":    s.Dome == nil,
		"dustcap": s.DustCap == nil,
		"focuser": s.Focuser == nil,
		"aligner": s.Aligner == nil,
		"guider":  s.Guider == nil,
		"capture": s.Capture == nil,
		"weather": s.Weather == nil,
		"manager": s.Manager == nil,
	}
	for _, name := range ServiceNames {
		if missing[name] {
			return errors.NewInvalidRequestError("equipment service %s is not configured", name)
		}
	}
	return nil
}

// ServiceNames lists the services in a stable order.
var ServiceNames = []string{"mount", "dome", "dustcap", "focuser", "aligner", "guider", "capture", "weather", "manager"}
