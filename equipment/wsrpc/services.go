package wsrpc

import (
	"context"
	"fmt"

	"github.com/teranos/nightshift/equipment"
	"github.com/teranos/nightshift/errors"
)

// Services returns every equipment service backed by c. Methods are named
// "<service>.<method>".
func (c *Client) Services() equipment.Services {
	return equipment.Services{
		Mount:   mount{c},
		Dome:    dome{c},
		DustCap: dustCap{c},
		Focuser: focuser{c},
		Aligner: aligner{c},
		Guider:  guider{c},
		Capture: capture{c},
		Weather: weather{c},
		Manager: manager{c},
	}
}

// enum decodes a status name sent by the bridge, such as "PARKED".
func enum[T interface {
	~int
	fmt.Stringer
}](ctx context.Context, c *Client, method string) (T, error) {
	var name string
	if err := c.Call(ctx, method, nil, &name); err != nil {
		return 0, err
	}
	for v := T(0); v.String() != "UNKNOWN"; v++ {
		if v.String() == name {
			return v, nil
		}
	}
	return 0, errors.Newf("%s: unknown status %q", method, name)
}

func boolean(ctx context.Context, c *Client, method string) (bool, error) {
	var v bool
	err := c.Call(ctx, method, nil, &v)
	return v, err
}

type mount struct{ c *Client }

func (m mount) Slew(ctx context.Context, ra, dec float64) error {
	return m.c.Call(ctx, "mount.slew", map[string]float64{"ra": ra, "dec": dec}, nil)
}
func (m mount) Abort(ctx context.Context) error  { return m.c.Call(ctx, "mount.abort", nil, nil) }
func (m mount) Park(ctx context.Context) error   { return m.c.Call(ctx, "mount.park", nil, nil) }
func (m mount) Unpark(ctx context.Context) error { return m.c.Call(ctx, "mount.unpark", nil, nil) }
func (m mount) ParkingStatus(ctx context.Context) (equipment.ParkingStatus, error) {
	return enum[equipment.ParkingStatus](ctx, m.c, "mount.getParkingStatus")
}
func (m mount) SlewStatus(ctx context.Context) (equipment.PropertyState, error) {
	return enum[equipment.PropertyState](ctx, m.c, "mount.getSlewStatus")
}
func (m mount) HourAngle(ctx context.Context) (float64, error) {
	var ha float64
	err := m.c.Call(ctx, "mount.getHourAngle", nil, &ha)
	return ha, err
}
func (m mount) CanPark(ctx context.Context) (bool, error) {
	return boolean(ctx, m.c, "mount.canPark")
}
func (m mount) ResetModel(ctx context.Context) error {
	return m.c.Call(ctx, "mount.resetModel", nil, nil)
}

type dome struct{ c *Client }

func (d dome) Park(ctx context.Context) error   { return d.c.Call(ctx, "dome.park", nil, nil) }
func (d dome) Unpark(ctx context.Context) error { return d.c.Call(ctx, "dome.unpark", nil, nil) }
func (d dome) Abort(ctx context.Context) error  { return d.c.Call(ctx, "dome.abort", nil, nil) }
func (d dome) ParkingStatus(ctx context.Context) (equipment.ParkingStatus, error) {
	return enum[equipment.ParkingStatus](ctx, d.c, "dome.getParkingStatus")
}
func (d dome) IsMoving(ctx context.Context) (bool, error) { return boolean(ctx, d.c, "dome.isMoving") }
func (d dome) CanPark(ctx context.Context) (bool, error)  { return boolean(ctx, d.c, "dome.canPark") }

type dustCap struct{ c *Client }

func (d dustCap) Park(ctx context.Context) error   { return d.c.Call(ctx, "dustcap.park", nil, nil) }
func (d dustCap) Unpark(ctx context.Context) error { return d.c.Call(ctx, "dustcap.unpark", nil, nil) }
func (d dustCap) ParkingStatus(ctx context.Context) (equipment.ParkingStatus, error) {
	return enum[equipment.ParkingStatus](ctx, d.c, "dustcap.getParkingStatus")
}
func (d dustCap) CanPark(ctx context.Context) (bool, error) {
	return boolean(ctx, d.c, "dustcap.canPark")
}

type focuser struct{ c *Client }

func (f focuser) Start(ctx context.Context) error { return f.c.Call(ctx, "focuser.start", nil, nil) }
func (f focuser) Abort(ctx context.Context) error { return f.c.Call(ctx, "focuser.abort", nil, nil) }
func (f focuser) ResetFrame(ctx context.Context) error {
	return f.c.Call(ctx, "focuser.resetFrame", nil, nil)
}
func (f focuser) CanAutoFocus(ctx context.Context) (bool, error) {
	return boolean(ctx, f.c, "focuser.canAutoFocus")
}
func (f focuser) Status(ctx context.Context) (equipment.FocusState, error) {
	return enum[equipment.FocusState](ctx, f.c, "focuser.getStatus")
}
func (f focuser) ClearAutoFocusHFR(ctx context.Context) error {
	return f.c.Call(ctx, "focuser.clearAutoFocusHFR", nil, nil)
}
func (f focuser) SetAutoStarEnabled(ctx context.Context, enabled bool) error {
	return f.c.Call(ctx, "focuser.setAutoStarEnabled", map[string]bool{"enabled": enabled}, nil)
}

type aligner struct{ c *Client }

func (a aligner) CaptureAndSolve(ctx context.Context) error {
	return a.c.Call(ctx, "align.captureAndSolve", nil, nil)
}
func (a aligner) LoadAndSlew(ctx context.Context, file string) error {
	return a.c.Call(ctx, "align.loadAndSlew", map[string]string{"file": file}, nil)
}
func (a aligner) Abort(ctx context.Context) error { return a.c.Call(ctx, "align.abort", nil, nil) }
func (a aligner) Status(ctx context.Context) (equipment.AlignState, error) {
	return enum[equipment.AlignState](ctx, a.c, "align.getStatus")
}
func (a aligner) SetSolverAction(ctx context.Context, action equipment.SolverAction) error {
	return a.c.Call(ctx, "align.setSolverAction", map[string]int{"action": int(action)}, nil)
}
func (a aligner) SetUpdateCoords(ctx context.Context, update bool) error {
	return a.c.Call(ctx, "align.setUpdateCoords", map[string]bool{"update": update}, nil)
}

type guider struct{ c *Client }

func (g guider) StartAutoCalibrateGuide(ctx context.Context) error {
	return g.c.Call(ctx, "guide.startAutoCalibrateGuide", nil, nil)
}
func (g guider) ClearCalibration(ctx context.Context) error {
	return g.c.Call(ctx, "guide.clearCalibration", nil, nil)
}
func (g guider) Abort(ctx context.Context) error { return g.c.Call(ctx, "guide.abort", nil, nil) }
func (g guider) Status(ctx context.Context) (equipment.GuideState, error) {
	return enum[equipment.GuideState](ctx, g.c, "guide.getStatus")
}

type capture struct{ c *Client }

func (cp capture) LoadSequenceQueue(ctx context.Context, file string) error {
	return cp.c.Call(ctx, "capture.loadSequenceQueue", map[string]string{"file": file}, nil)
}
func (cp capture) Start(ctx context.Context) error { return cp.c.Call(ctx, "capture.start", nil, nil) }
func (cp capture) Abort(ctx context.Context) error { return cp.c.Call(ctx, "capture.abort", nil, nil) }
func (cp capture) ClearSequenceQueue(ctx context.Context) error {
	return cp.c.Call(ctx, "capture.clearSequenceQueue", nil, nil)
}
func (cp capture) SetTargetName(ctx context.Context, name string) error {
	return cp.c.Call(ctx, "capture.setTargetName", map[string]string{"name": name}, nil)
}
func (cp capture) SequenceQueueStatus(ctx context.Context) (equipment.QueueStatus, error) {
	var st string
	err := cp.c.Call(ctx, "capture.getSequenceQueueStatus", nil, &st)
	return equipment.QueueStatus(st), err
}
func (cp capture) SetCapturedFramesMap(ctx context.Context, signature string, count int) error {
	return cp.c.Call(ctx, "capture.setCapturedFramesMap",
		map[string]any{"signature": signature, "count": count}, nil)
}
func (cp capture) IgnoreSequenceHistory(ctx context.Context) error {
	return cp.c.Call(ctx, "capture.ignoreSequenceHistory", nil, nil)
}
func (cp capture) HasCoolerControl(ctx context.Context) (bool, error) {
	return boolean(ctx, cp.c, "capture.hasCoolerControl")
}
func (cp capture) SetCoolerControl(ctx context.Context, enabled bool) error {
	return cp.c.Call(ctx, "capture.setCoolerControl", map[string]bool{"enabled": enabled}, nil)
}

type weather struct{ c *Client }

func (w weather) Status(ctx context.Context) (equipment.PropertyState, error) {
	return enum[equipment.PropertyState](ctx, w.c, "weather.getWeatherStatus")
}
func (w weather) UpdatePeriod(ctx context.Context) (int, error) {
	var period int
	err := w.c.Call(ctx, "weather.getUpdatePeriod", nil, &period)
	return period, err
}

type manager struct{ c *Client }

func (m manager) SetProfile(ctx context.Context, name string) error {
	return m.c.Call(ctx, "manager.setProfile", map[string]string{"name": name}, nil)
}
func (m manager) Start(ctx context.Context) error { return m.c.Call(ctx, "manager.start", nil, nil) }
func (m manager) Stop(ctx context.Context) error  { return m.c.Call(ctx, "manager.stop", nil, nil) }
func (m manager) StartingStatus(ctx context.Context) (equipment.CommStatus, error) {
	return enum[equipment.CommStatus](ctx, m.c, "manager.getStartingStatus")
}
func (m manager) ConnectDevices(ctx context.Context) error {
	return m.c.Call(ctx, "manager.connectDevices", nil, nil)
}
func (m manager) DisconnectDevices(ctx context.Context) error {
	return m.c.Call(ctx, "manager.disconnectDevices", nil, nil)
}
func (m manager) ConnectionStatus(ctx context.Context) (equipment.CommStatus, error) {
	return enum[equipment.CommStatus](ctx, m.c, "manager.getConnectionStatus")
}
