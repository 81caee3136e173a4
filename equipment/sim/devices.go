package sim

import (
	"context"

	"github.com/teranos/nightshift/equipment"
	"github.com/teranos/nightshift/errors"
)

type mount struct{ o *Observatory }

func (m mount) Slew(_ context.Context, ra, dec float64) error {
	if err := m.o.enter("mount", "Slew"); err != nil {
		return err
	}
	m.o.mu.Lock()
	defer m.o.mu.Unlock()
	if m.o.mount.status.IsParked() {
		return errors.Wrap(errors.ErrConflict, "mount is parked")
	}
	m.o.slewState = equipment.StateBusy
	m.o.slew.start(m.o.latency, m.o.takeFailure(OpSlew))
	return nil
}

func (m mount) Abort(context.Context) error {
	if err := m.o.enter("mount", "Abort"); err != nil {
		return err
	}
	m.o.mu.Lock()
	defer m.o.mu.Unlock()
	m.o.slew = countdown{}
	m.o.slewState = equipment.StateIdle
	if m.o.mount.op.active {
		m.o.mount.op = countdown{}
		m.o.mount.status = equipment.ParkingIdle
	}
	return nil
}

func (m mount) Park(context.Context) error {
	if err := m.o.enter("mount", "Park"); err != nil {
		return err
	}
	m.o.mu.Lock()
	defer m.o.mu.Unlock()
	m.o.mount.begin(equipment.Parked, m.o.latency, m.o.takeFailure(OpMountPark))
	return nil
}

func (m mount) Unpark(context.Context) error {
	if err := m.o.enter("mount", "Unpark"); err != nil {
		return err
	}
	m.o.mu.Lock()
	defer m.o.mu.Unlock()
	m.o.mount.begin(equipment.Unparked, m.o.latency, m.o.takeFailure(OpMountUnpark))
	return nil
}

func (m mount) ParkingStatus(context.Context) (equipment.ParkingStatus, error) {
	if err := m.o.enter("mount", "ParkingStatus"); err != nil {
		return equipment.ParkingError, err
	}
	m.o.mu.Lock()
	defer m.o.mu.Unlock()
	return m.o.mount.poll(), nil
}

func (m mount) SlewStatus(context.Context) (equipment.PropertyState, error) {
	if err := m.o.enter("mount", "SlewStatus"); err != nil {
		return equipment.StateAlert, err
	}
	m.o.mu.Lock()
	defer m.o.mu.Unlock()
	if done, failed := m.o.slew.poll(); done {
		if failed {
			m.o.slewState = equipment.StateAlert
		} else {
			m.o.slewState = equipment.StateOk
		}
	}
	return m.o.slewState, nil
}

func (m mount) HourAngle(context.Context) (float64, error) {
	if err := m.o.enter("mount", "HourAngle"); err != nil {
		return 0, err
	}
	return 0, nil
}

func (m mount) CanPark(context.Context) (bool, error) {
	if err := m.o.enter("mount", "CanPark"); err != nil {
		return false, err
	}
	m.o.mu.Lock()
	defer m.o.mu.Unlock()
	return m.o.mount.canPark, nil
}

func (m mount) ResetModel(context.Context) error {
	return m.o.enter("mount", "ResetModel")
}

type dome struct{ o *Observatory }

func (d dome) Park(context.Context) error {
	if err := d.o.enter("dome", "Park"); err != nil {
		return err
	}
	d.o.mu.Lock()
	defer d.o.mu.Unlock()
	d.o.dome.begin(equipment.Parked, d.o.latency, d.o.takeFailure(OpDomePark))
	return nil
}

func (d dome) Unpark(context.Context) error {
	if err := d.o.enter("dome", "Unpark"); err != nil {
		return err
	}
	d.o.mu.Lock()
	defer d.o.mu.Unlock()
	d.o.dome.begin(equipment.Unparked, d.o.latency, d.o.takeFailure(OpDomeUnpark))
	return nil
}

func (d dome) Abort(context.Context) error {
	if err := d.o.enter("dome", "Abort"); err != nil {
		return err
	}
	d.o.mu.Lock()
	defer d.o.mu.Unlock()
	if d.o.dome.op.active {
		d.o.dome.op = countdown{}
		d.o.dome.status = equipment.ParkingIdle
	}
	return nil
}

func (d dome) ParkingStatus(context.Context) (equipment.ParkingStatus, error) {
	if err := d.o.enter("dome", "ParkingStatus"); err != nil {
		return equipment.ParkingError, err
	}
	d.o.mu.Lock()
	defer d.o.mu.Unlock()
	return d.o.dome.poll(), nil
}

func (d dome) IsMoving(context.Context) (bool, error) {
	if err := d.o.enter("dome", "IsMoving"); err != nil {
		return false, err
	}
	d.o.mu.Lock()
	defer d.o.mu.Unlock()
	return d.o.dome.op.active, nil
}

func (d dome) CanPark(context.Context) (bool, error) {
	if err := d.o.enter("dome", "CanPark"); err != nil {
		return false, err
	}
	d.o.mu.Lock()
	defer d.o.mu.Unlock()
	return d.o.dome.canPark, nil
}

type dustCap struct{ o *Observatory }

func (c dustCap) Park(context.Context) error {
	if err := c.o.enter("dustcap", "Park"); err != nil {
		return err
	}
	c.o.mu.Lock()
	defer c.o.mu.Unlock()
	c.o.cap.begin(equipment.Parked, c.o.latency, c.o.takeFailure(OpCapPark))
	return nil
}

func (c dustCap) Unpark(context.Context) error {
	if err := c.o.enter("dustcap", "Unpark"); err != nil {
		return err
	}
	c.o.mu.Lock()
	defer c.o.mu.Unlock()
	c.o.cap.begin(equipment.Unparked, c.o.latency, c.o.takeFailure(OpCapUnpark))
	return nil
}

func (c dustCap) ParkingStatus(context.Context) (equipment.ParkingStatus, error) {
	if err := c.o.enter("dustcap", "ParkingStatus"); err != nil {
		return equipment.ParkingError, err
	}
	c.o.mu.Lock()
	defer c.o.mu.Unlock()
	return c.o.cap.poll(), nil
}

func (c dustCap) CanPark(context.Context) (bool, error) {
	if err := c.o.enter("dustcap", "CanPark"); err != nil {
		return false, err
	}
	c.o.mu.Lock()
	defer c.o.mu.Unlock()
	return c.o.cap.canPark, nil
}

type focuser struct{ o *Observatory }

func (f focuser) Start(context.Context) error {
	if err := f.o.enter("focuser", "Start"); err != nil {
		return err
	}
	f.o.mu.Lock()
	defer f.o.mu.Unlock()
	f.o.focusState = equipment.FocusInProgress
	f.o.focus.start(f.o.latency, f.o.takeFailure(OpFocus))
	return nil
}

func (f focuser) Abort(context.Context) error {
	if err := f.o.enter("focuser", "Abort"); err != nil {
		return err
	}
	f.o.mu.Lock()
	defer f.o.mu.Unlock()
	f.o.focus = countdown{}
	f.o.focusState = equipment.FocusAborted
	return nil
}

func (f focuser) ResetFrame(context.Context) error {
	return f.o.enter("focuser", "ResetFrame")
}

func (f focuser) CanAutoFocus(context.Context) (bool, error) {
	if err := f.o.enter("focuser", "CanAutoFocus"); err != nil {
		return false, err
	}
	f.o.mu.Lock()
	defer f.o.mu.Unlock()
	return f.o.canAutoFocus, nil
}

func (f focuser) Status(context.Context) (equipment.FocusState, error) {
	if err := f.o.enter("focuser", "Status"); err != nil {
		return equipment.FocusIdle, err
	}
	f.o.mu.Lock()
	defer f.o.mu.Unlock()
	if done, failed := f.o.focus.poll(); done {
		if failed {
			f.o.focusState = equipment.FocusFailed
		} else {
			f.o.focusState = equipment.FocusComplete
		}
	}
	return f.o.focusState, nil
}

func (f focuser) ClearAutoFocusHFR(context.Context) error {
	return f.o.enter("focuser", "ClearAutoFocusHFR")
}

func (f focuser) SetAutoStarEnabled(context.Context, bool) error {
	return f.o.enter("focuser", "SetAutoStarEnabled")
}

type aligner struct{ o *Observatory }

func (a aligner) solve(method string) error {
	if err := a.o.enter("aligner", method); err != nil {
		return err
	}
	a.o.mu.Lock()
	defer a.o.mu.Unlock()
	a.o.alignState = equipment.AlignInProgress
	a.o.align.start(a.o.latency, a.o.takeFailure(OpAlign))
	return nil
}

func (a aligner) CaptureAndSolve(context.Context) error { return a.solve("CaptureAndSolve") }

func (a aligner) LoadAndSlew(_ context.Context, _ string) error { return a.solve("LoadAndSlew") }

func (a aligner) Abort(context.Context) error {
	if err := a.o.enter("aligner", "Abort"); err != nil {
		return err
	}
	a.o.mu.Lock()
	defer a.o.mu.Unlock()
	a.o.align = countdown{}
	a.o.alignState = equipment.AlignAborted
	return nil
}

func (a aligner) Status(context.Context) (equipment.AlignState, error) {
	if err := a.o.enter("aligner", "Status"); err != nil {
		return equipment.AlignIdle, err
	}
	a.o.mu.Lock()
	defer a.o.mu.Unlock()
	if done, failed := a.o.align.poll(); done {
		if failed {
			a.o.alignState = equipment.AlignFailed
		} else {
			a.o.alignState = equipment.AlignComplete
		}
	}
	return a.o.alignState, nil
}

func (a aligner) SetSolverAction(_ context.Context, action equipment.SolverAction) error {
	if err := a.o.enter("aligner", "SetSolverAction"); err != nil {
		return err
	}
	a.o.mu.Lock()
	defer a.o.mu.Unlock()
	a.o.alignAction = action
	return nil
}

func (a aligner) SetUpdateCoords(context.Context, bool) error {
	return a.o.enter("aligner", "SetUpdateCoords")
}

type guider struct{ o *Observatory }

func (g guider) StartAutoCalibrateGuide(context.Context) error {
	if err := g.o.enter("guider", "StartAutoCalibrateGuide"); err != nil {
		return err
	}
	g.o.mu.Lock()
	defer g.o.mu.Unlock()
	g.o.guideState = equipment.GuideCalibrating
	g.o.guide.start(g.o.latency, g.o.takeFailure(OpGuide))
	return nil
}

func (g guider) ClearCalibration(context.Context) error {
	return g.o.enter("guider", "ClearCalibration")
}

func (g guider) Abort(context.Context) error {
	if err := g.o.enter("guider", "Abort"); err != nil {
		return err
	}
	g.o.mu.Lock()
	defer g.o.mu.Unlock()
	g.o.guide = countdown{}
	g.o.guideState = equipment.GuideIdle
	return nil
}

func (g guider) Status(context.Context) (equipment.GuideState, error) {
	if err := g.o.enter("guider", "Status"); err != nil {
		return equipment.GuideIdle, err
	}
	g.o.mu.Lock()
	defer g.o.mu.Unlock()
	if done, failed := g.o.guide.poll(); done {
		if failed {
			g.o.guideState = equipment.GuideCalibrationError
		} else {
			g.o.guideState = equipment.GuideGuiding
		}
	}
	return g.o.guideState, nil
}

type capture struct{ o *Observatory }

func (c capture) LoadSequenceQueue(_ context.Context, file string) error {
	if err := c.o.enter("capture", "LoadSequenceQueue"); err != nil {
		return err
	}
	c.o.mu.Lock()
	defer c.o.mu.Unlock()
	c.o.sequence = file
	return nil
}

func (c capture) Start(context.Context) error {
	if err := c.o.enter("capture", "Start"); err != nil {
		return err
	}
	c.o.mu.Lock()
	defer c.o.mu.Unlock()
	if c.o.sequence == "" {
		return errors.NewInvalidRequestError("no sequence loaded")
	}
	c.o.queueStatus = equipment.QueueRunning
	c.o.capture.start(c.o.latency, c.o.takeFailure(OpCapture))
	return nil
}

func (c capture) Abort(context.Context) error {
	if err := c.o.enter("capture", "Abort"); err != nil {
		return err
	}
	c.o.mu.Lock()
	defer c.o.mu.Unlock()
	if c.o.capture.active {
		c.o.capture = countdown{}
		c.o.queueStatus = equipment.QueueAborted
	}
	return nil
}

func (c capture) ClearSequenceQueue(context.Context) error {
	if err := c.o.enter("capture", "ClearSequenceQueue"); err != nil {
		return err
	}
	c.o.mu.Lock()
	defer c.o.mu.Unlock()
	c.o.sequence = ""
	c.o.capture = countdown{}
	c.o.queueStatus = equipment.QueueIdle
	return nil
}

func (c capture) SetTargetName(_ context.Context, name string) error {
	if err := c.o.enter("capture", "SetTargetName"); err != nil {
		return err
	}
	c.o.mu.Lock()
	defer c.o.mu.Unlock()
	c.o.targetName = name
	return nil
}

func (c capture) SequenceQueueStatus(context.Context) (equipment.QueueStatus, error) {
	if err := c.o.enter("capture", "SequenceQueueStatus"); err != nil {
		return equipment.QueueError, err
	}
	c.o.mu.Lock()
	defer c.o.mu.Unlock()
	if done, failed := c.o.capture.poll(); done {
		if failed {
			c.o.queueStatus = equipment.QueueAborted
		} else {
			c.o.queueStatus = equipment.QueueComplete
		}
	}
	return c.o.queueStatus, nil
}

func (c capture) SetCapturedFramesMap(_ context.Context, signature string, count int) error {
	if err := c.o.enter("capture", "SetCapturedFramesMap"); err != nil {
		return err
	}
	c.o.mu.Lock()
	defer c.o.mu.Unlock()
	c.o.framesMap[signature] = count
	return nil
}

func (c capture) IgnoreSequenceHistory(context.Context) error {
	return c.o.enter("capture", "IgnoreSequenceHistory")
}

func (c capture) HasCoolerControl(context.Context) (bool, error) {
	if err := c.o.enter("capture", "HasCoolerControl"); err != nil {
		return false, err
	}
	c.o.mu.Lock()
	defer c.o.mu.Unlock()
	return c.o.coolerControl, nil
}

func (c capture) SetCoolerControl(_ context.Context, enabled bool) error {
	if err := c.o.enter("capture", "SetCoolerControl"); err != nil {
		return err
	}
	c.o.mu.Lock()
	defer c.o.mu.Unlock()
	c.o.coolerOn = enabled
	return nil
}

type weather struct{ o *Observatory }

func (w weather) Status(context.Context) (equipment.PropertyState, error) {
	if err := w.o.enter("weather", "Status"); err != nil {
		return equipment.StateIdle, err
	}
	w.o.mu.Lock()
	defer w.o.mu.Unlock()
	return w.o.weatherState, nil
}

func (w weather) UpdatePeriod(context.Context) (int, error) {
	if err := w.o.enter("weather", "UpdatePeriod"); err != nil {
		return 0, err
	}
	w.o.mu.Lock()
	defer w.o.mu.Unlock()
	return w.o.weatherPeriod, nil
}

type manager struct{ o *Observatory }

func (m manager) SetProfile(_ context.Context, name string) error {
	if err := m.o.enter("manager", "SetProfile"); err != nil {
		return err
	}
	m.o.mu.Lock()
	defer m.o.mu.Unlock()
	m.o.profile = name
	return nil
}

func (m manager) Start(context.Context) error {
	if err := m.o.enter("manager", "Start"); err != nil {
		return err
	}
	m.o.mu.Lock()
	defer m.o.mu.Unlock()
	m.o.managerStatus = equipment.CommPending
	m.o.managerOp.start(m.o.latency, m.o.takeFailure(OpManagerStart))
	return nil
}

func (m manager) Stop(context.Context) error {
	if err := m.o.enter("manager", "Stop"); err != nil {
		return err
	}
	m.o.mu.Lock()
	defer m.o.mu.Unlock()
	m.o.managerOp = countdown{}
	m.o.managerStatus = equipment.CommIdle
	m.o.connectStatus = equipment.CommIdle
	return nil
}

func (m manager) StartingStatus(context.Context) (equipment.CommStatus, error) {
	if err := m.o.enter("manager", "StartingStatus"); err != nil {
		return equipment.CommError, err
	}
	m.o.mu.Lock()
	defer m.o.mu.Unlock()
	if done, failed := m.o.managerOp.poll(); done {
		if failed {
			m.o.managerStatus = equipment.CommError
		} else {
			m.o.managerStatus = equipment.CommSuccess
		}
	}
	return m.o.managerStatus, nil
}

func (m manager) ConnectDevices(context.Context) error {
	if err := m.o.enter("manager", "ConnectDevices"); err != nil {
		return err
	}
	m.o.mu.Lock()
	defer m.o.mu.Unlock()
	m.o.connectStatus = equipment.CommPending
	m.o.connectOp.start(m.o.latency, m.o.takeFailure(OpDeviceConnect))
	return nil
}

func (m manager) DisconnectDevices(context.Context) error {
	if err := m.o.enter("manager", "DisconnectDevices"); err != nil {
		return err
	}
	m.o.mu.Lock()
	defer m.o.mu.Unlock()
	m.o.connectOp = countdown{}
	m.o.connectStatus = equipment.CommIdle
	return nil
}

func (m manager) ConnectionStatus(context.Context) (equipment.CommStatus, error) {
	if err := m.o.enter("manager", "ConnectionStatus"); err != nil {
		return equipment.CommError, err
	}
	m.o.mu.Lock()
	defer m.o.mu.Unlock()
	if done, failed := m.o.connectOp.poll(); done {
		if failed {
			m.o.connectStatus = equipment.CommError
		} else {
			m.o.connectStatus = equipment.CommSuccess
		}
	}
	return m.o.connectStatus, nil
}
