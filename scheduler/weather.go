package scheduler

import (
	"context"
	"time"

	"github.com/teranos/nightshift/equipment"
	"github.com/teranos/nightshift/logger"
	"github.com/teranos/nightshift/pulse/async"
	"github.com/teranos/nightshift/pulse/tick"
	"github.com/teranos/nightshift/scheduler/orchestrate"
	"github.com/teranos/nightshift/sym"
)

// Weather returns the last weather reading.
func (s *Scheduler) Weather() equipment.PropertyState {
	var st equipment.PropertyState
	_ = s.loop.Do(func() { st = s.weather })
	return st
}

// startWeather begins polling the weather station every period. It is
// called by the device property check on the loop goroutine; readings are
// taken on the loop through Do.
func (s *Scheduler) startWeather(period time.Duration) {
	s.stopWeather()
	ctx, cancel := context.WithCancel(s.ctx)
	s.weatherCancel = cancel

	logger.AddSymbol(s.log, sym.Weather).Infow("Weather monitoring started", "period", period)
	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			if err := s.loop.Do(func() {
				if ctx.Err() == nil {
					s.checkWeather(ctx)
				}
			}); err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}

func (s *Scheduler) stopWeather() {
	if s.weatherCancel != nil {
		s.weatherCancel()
		s.weatherCancel = nil
	}
}

// checkWeather takes one weather reading. An alert during a run aborts the
// running job and starts the shutdown procedure.
func (s *Scheduler) checkWeather(ctx context.Context) {
	if s.state == Idle {
		return
	}
	log := logger.AddSymbol(s.log, sym.Weather)

	st, err := s.svc.Weather.Status(ctx)
	if err != nil || st == equipment.StateIdle {
		s.weatherUnknown++
		if s.weatherUnknown > async.MaxFailureAttempts {
			log.Warnw("No weather updates received",
				logger.FieldCount, s.weatherUnknown,
				logger.FieldError, err)
		}
		if err != nil {
			return
		}
	} else {
		s.weatherUnknown = 0
	}

	if st != s.weather {
		log.Infow("Weather status", "from", s.weather.String(), "to", st.String())
		s.weather = st
	}

	if st != equipment.StateAlert || s.orch.Shutdown() != orchestrate.ShutdownIdle {
		return
	}
	log.Warnw("Starting shutdown procedure due to severe weather")
	if s.exec.Current() != nil {
		s.exec.Abort(ctx, "weather alert")
	}
	s.current = nil
	if s.state == Running {
		s.loop.Arm(tick.DriverScheduler)
	}
	s.checkShutdown(ctx)
}
