// Package tick runs the scheduler's control loop: one goroutine owning two
// mutually exclusive periodic drivers and a one-shot sleep timer. Every
// callback runs on the loop goroutine, so the state they touch needs no
// locking as long as outside callers go through Do.
package tick

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/logger"
)

// Driver identifies which periodic driver is armed.
type Driver int

const (
	DriverNone Driver = iota
	DriverScheduler
	DriverJob
)

var driverNames = [...]string{"none", "scheduler", "job"}

func (d Driver) String() string {
	if d < 0 || int(d) >= len(driverNames) {
		return "unknown"
	}
	return driverNames[d]
}

// ErrStopped is returned by Do once the loop has stopped.
var ErrStopped = errors.New("control loop stopped")

// Handlers are the loop callbacks. Nil handlers are skipped.
type Handlers struct {
	Scheduler func(ctx context.Context, now time.Time) // evaluation and orchestration
	Job       func(ctx context.Context, now time.Time) // job executor
	Wake      func(ctx context.Context, now time.Time) // sleep timer fired
}

// Config contains configuration for the control loop
type Config struct {
	Interval time.Duration // period of both drivers (default: 1 second)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{Interval: time.Second}
}

// Stats is a snapshot of loop activity.
type Stats struct {
	Driver     Driver
	Ticks      int64
	LastTickAt time.Time
	SleepUntil time.Time
}

// Loop is the single-goroutine control loop.
type Loop struct {
	interval time.Duration
	handlers Handlers
	cmds     chan func()
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	log      *zap.SugaredLogger

	// owned by the loop goroutine
	driver     Driver
	ticker     *time.Ticker
	sleep      *time.Timer
	sleepUntil time.Time

	mu    sync.Mutex
	stats Stats
}

// New creates a loop. Nothing is armed until a handler or Do call arms a driver.
func New(cfg Config, h Handlers, log *zap.SugaredLogger) *Loop {
	return NewWithContext(context.Background(), cfg, h, log)
}

// NewWithContext creates a loop with a parent context
func NewWithContext(ctx context.Context, cfg Config, h Handlers, log *zap.SugaredLogger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	loopCtx, cancel := context.WithCancel(ctx)
	return &Loop{
		interval: cfg.Interval,
		handlers: h,
		cmds:     make(chan func(), 16),
		ctx:      loopCtx,
		cancel:   cancel,
		log:      logger.AddPulseSymbol(log),
	}
}

// Start begins the loop
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
	l.log.Debugw("Control loop started", "interval", l.interval)
}

// Stop gracefully stops the loop and disarms every timer
func (l *Loop) Stop() {
	l.cancel()
	l.wg.Wait()
	l.log.Debugw("Control loop stopped")
}

// Do runs fn on the loop goroutine and waits for it to return.
func (l *Loop) Do(fn func()) error {
	done := make(chan struct{})
	select {
	case l.cmds <- func() { fn(); close(done) }:
	case <-l.ctx.Done():
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-l.ctx.Done():
		return ErrStopped
	}
}

// Arm switches the periodic driver. Arming one driver disarms the other.
// Call only from a handler or inside Do.
func (l *Loop) Arm(d Driver) {
	if d == l.driver && (d == DriverNone || l.ticker != nil) {
		return
	}
	if l.ticker != nil {
		l.ticker.Stop()
		l.ticker = nil
	}
	l.driver = d
	if d != DriverNone {
		l.ticker = time.NewTicker(l.interval)
	}
	l.updateStats()
}

// Driver returns the armed driver. Call only from the loop goroutine.
func (l *Loop) Driver() Driver { return l.driver }

// Sleep arms the one-shot timer to fire after d, replacing any pending one.
// The periodic driver is left as is. Call only from a handler or inside Do.
func (l *Loop) Sleep(d time.Duration) {
	l.CancelSleep()
	if d < 0 {
		d = 0
	}
	l.sleep = time.NewTimer(d)
	l.sleepUntil = time.Now().Add(d)
	l.updateStats()
}

// CancelSleep disarms the one-shot timer.
func (l *Loop) CancelSleep() {
	if l.sleep != nil {
		l.sleep.Stop()
		l.sleep = nil
	}
	l.sleepUntil = time.Time{}
	l.updateStats()
}

// Sleeping reports whether the one-shot timer is armed.
func (l *Loop) Sleeping() bool { return l.sleep != nil }

// Stats returns a snapshot of loop activity; safe from any goroutine.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loop) updateStats() {
	l.mu.Lock()
	l.stats.Driver = l.driver
	l.stats.SleepUntil = l.sleepUntil
	l.mu.Unlock()
}

func (l *Loop) run() {
	defer l.wg.Done()
	defer func() {
		l.Arm(DriverNone)
		l.CancelSleep()
	}()

	for {
		var tickC, sleepC <-chan time.Time
		if l.ticker != nil {
			tickC = l.ticker.C
		}
		if l.sleep != nil {
			sleepC = l.sleep.C
		}

		select {
		case <-l.ctx.Done():
			return
		case fn := <-l.cmds:
			fn()
		case now := <-tickC:
			l.mu.Lock()
			l.stats.Ticks++
			l.stats.LastTickAt = now
			l.mu.Unlock()
			l.dispatch(now)
		case now := <-sleepC:
			l.sleep = nil
			l.sleepUntil = time.Time{}
			l.updateStats()
			l.log.Debugw("Sleep timer fired")
			if l.handlers.Wake != nil {
				l.handlers.Wake(l.ctx, now)
			}
		}
	}
}

func (l *Loop) dispatch(now time.Time) {
	switch l.driver {
	case DriverScheduler:
		if l.handlers.Scheduler != nil {
			l.handlers.Scheduler(l.ctx, now)
		}
	case DriverJob:
		if l.handlers.Job != nil {
			l.handlers.Job(l.ctx, now)
		}
	}
}
