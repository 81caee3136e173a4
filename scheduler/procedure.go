package scheduler

import (
	"context"

	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/logger"
	"github.com/teranos/nightshift/pulse/tick"
	"github.com/teranos/nightshift/scheduler/orchestrate"
)

// ProcedureKind selects a manually run procedure.
type ProcedureKind int

const (
	ProcedureStartup ProcedureKind = iota
	ProcedureShutdown
)

func (k ProcedureKind) String() string {
	if k == ProcedureShutdown {
		return "shutdown"
	}
	return "startup"
}

type manualRun struct {
	kind   ProcedureKind
	result chan error
}

// RunProcedure runs the startup or shutdown procedure of the loaded
// schedule on its own and blocks until it finishes. Cancelling ctx aborts
// it: the script is terminated and any dome or mount motion halted.
func (s *Scheduler) RunProcedure(ctx context.Context, kind ProcedureKind) error {
	result := make(chan error, 1)
	err := s.do(func() error {
		if s.state != Idle || s.manual != nil {
			return errors.Wrap(errors.ErrConflict, "scheduler is busy")
		}
		s.orch.Reset(true)
		s.manual = &manualRun{kind: kind, result: result}
		s.log.Infow("Running procedure", "procedure", kind.String())
		s.loop.Arm(tick.DriverScheduler)
		return nil
	})
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
	}

	derr := s.do(func() error {
		if s.manual == nil {
			return nil
		}
		err := s.orch.Abort(s.ctx)
		s.finishProcedure(errors.Wrapf(ctx.Err(), "%s procedure aborted", kind))
		return err
	})
	select {
	case err := <-result:
		if derr != nil {
			return errors.WithSecondaryError(err, derr)
		}
		return err
	default:
		return ctx.Err()
	}
}

func (s *Scheduler) finishProcedure(err error) {
	m := s.manual
	s.manual = nil
	s.loop.Arm(tick.DriverNone)
	s.stopWeather()
	if err != nil {
		s.log.Errorw("Procedure failed", "procedure", m.kind.String(), logger.FieldError, err)
	} else {
		s.log.Infow("Procedure complete", "procedure", m.kind.String())
	}
	m.result <- err
}

// stepProcedure advances a manual procedure by one tick.
func (s *Scheduler) stepProcedure(ctx context.Context) {
	check := func(f func() (bool, error)) bool {
		done, err := f()
		if err != nil {
			s.finishProcedure(err)
			return false
		}
		return done
	}

	switch s.manual.kind {
	case ProcedureStartup:
		if st := s.orch.Startup(); st == orchestrate.StartupIdle || st == orchestrate.StartupScript {
			if !check(func() (bool, error) { return s.orch.CheckStartup(ctx, true) }) {
				return
			}
		}
		if !check(func() (bool, error) { return s.orch.CheckManager(ctx) }) {
			return
		}
		if !check(func() (bool, error) { return s.orch.CheckDevices(ctx) }) {
			return
		}
		if check(func() (bool, error) { return s.orch.CheckStartup(ctx, true) }) {
			s.finishProcedure(nil)
		}

	case ProcedureShutdown:
		// once the script phase is reached the devices may be going away
		if s.orch.Shutdown() < orchestrate.ShutdownScript {
			if !check(func() (bool, error) { return s.orch.CheckManager(ctx) }) {
				return
			}
			if !check(func() (bool, error) { return s.orch.CheckDevices(ctx) }) {
				return
			}
		}
		if !check(func() (bool, error) { return s.orch.CheckShutdown(ctx) }) {
			return
		}
		if check(func() (bool, error) { return s.orch.WindDown(ctx) }) {
			s.finishProcedure(nil)
		}
	}
}
