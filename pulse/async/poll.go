// Package async provides the primitives the control loop uses to talk to
// remote equipment without blocking: poll handles that time an outstanding
// request, bounded retry counters, and failure classification.
package async

import (
	"context"
	"time"

	"github.com/teranos/nightshift/errors"
)

// Clock supplies the current time. sky.Clock satisfies it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Outcome is the result of one poll.
type Outcome int

const (
	Pending Outcome = iota
	Succeeded
	Failed
	TimedOut
	Cancelled
)

var outcomeNames = [...]string{"pending", "succeeded", "failed", "timed_out", "cancelled"}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Poll is a handle on one outstanding remote request. The request is issued
// once; its completion is observed by calling Check on later ticks. A Poll
// carries a stopwatch started at issue time and a cancellation token.
type Poll struct {
	name    string
	clock   Clock
	timeout time.Duration
	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewPoll starts a poll handle. A zero timeout never expires.
func NewPoll(parent context.Context, name string, timeout time.Duration, clock Clock) *Poll {
	if clock == nil {
		clock = systemClock{}
	}
	ctx, cancel := context.WithCancel(parent)
	return &Poll{
		name:    name,
		clock:   clock,
		timeout: timeout,
		started: clock.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Name returns the operation the handle tracks.
func (p *Poll) Name() string { return p.name }

// Context is cancelled when the handle is cancelled.
func (p *Poll) Context() context.Context { return p.ctx }

// Elapsed returns the time since the request was issued.
func (p *Poll) Elapsed() time.Duration { return p.clock.Now().Sub(p.started) }

// Expired reports whether the operation has exceeded its timeout.
func (p *Poll) Expired() bool {
	return p.timeout > 0 && p.Elapsed() > p.timeout
}

// Restart re-arms the stopwatch after the request was issued again.
func (p *Poll) Restart() { p.started = p.clock.Now() }

// Cancel abandons the request.
func (p *Poll) Cancel() { p.cancel() }

// Cancelled reports whether Cancel was called or the parent context ended.
func (p *Poll) Cancelled() bool { return p.ctx.Err() != nil }

// TimeoutErr returns an ErrTimeout error naming the operation.
func (p *Poll) TimeoutErr() error {
	return errors.Wrapf(errors.ErrTimeout, "%s exceeded %s", p.name, p.timeout)
}

// Check runs one status query and folds it with the handle's state. status
// reports (done, failed, err). A Transient error keeps the poll pending.
func (p *Poll) Check(status func(ctx context.Context) (done, failed bool, err error)) (Outcome, error) {
	if p.Cancelled() {
		return Cancelled, p.ctx.Err()
	}
	done, failed, err := status(p.ctx)
	if err != nil {
		if Classify(err) == Transient {
			return p.pendingOrTimeout()
		}
		return Failed, err
	}
	switch {
	case failed:
		return Failed, nil
	case done:
		return Succeeded, nil
	}
	return p.pendingOrTimeout()
}

func (p *Poll) pendingOrTimeout() (Outcome, error) {
	if p.Expired() {
		return TimedOut, p.TimeoutErr()
	}
	return Pending, nil
}
