package async

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/nightshift/errors"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }

func TestPollCheck(t *testing.T) {
	clock := &stepClock{t: time.Date(2025, 1, 15, 22, 0, 0, 0, time.UTC)}
	p := NewPoll(context.Background(), "mount.park", time.Minute, clock)

	pending := func(context.Context) (bool, bool, error) { return false, false, nil }
	out, err := p.Check(pending)
	require.NoError(t, err)
	assert.Equal(t, Pending, out)

	clock.t = clock.t.Add(61 * time.Second)
	out, err = p.Check(pending)
	assert.Equal(t, TimedOut, out)
	assert.True(t, errors.Is(err, errors.ErrTimeout))

	p.Restart()
	out, _ = p.Check(func(context.Context) (bool, bool, error) { return true, false, nil })
	assert.Equal(t, Succeeded, out)

	out, _ = p.Check(func(context.Context) (bool, bool, error) { return true, true, nil })
	assert.Equal(t, Failed, out)
}

func TestPollTransientErrorStaysPending(t *testing.T) {
	p := NewPoll(context.Background(), "dome.park", 0, nil)
	out, err := p.Check(func(context.Context) (bool, bool, error) {
		return false, false, errors.Wrap(errors.ErrBusy, "dome")
	})
	require.NoError(t, err)
	assert.Equal(t, Pending, out)

	out, err = p.Check(func(context.Context) (bool, bool, error) {
		return false, false, errors.NewUnavailableError("dome")
	})
	assert.Equal(t, Failed, out)
	assert.Error(t, err)
}

func TestPollCancel(t *testing.T) {
	p := NewPoll(context.Background(), "capture", time.Minute, nil)
	p.Cancel()
	called := false
	out, err := p.Check(func(context.Context) (bool, bool, error) {
		called = true
		return true, false, nil
	})
	assert.Equal(t, Cancelled, out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRetryCounter(t *testing.T) {
	r := NewRetryCounter("focus")
	for i := 0; i < MaxFailureAttempts; i++ {
		assert.True(t, r.Next(), "attempt %d", i)
	}
	assert.False(t, r.Next())
	assert.Equal(t, MaxFailureAttempts+1, r.Count())
	assert.True(t, r.Exhausted())
	assert.True(t, errors.Is(r.Err(), errors.ErrRetryExhausted))

	r.Reset()
	assert.Equal(t, 0, r.Count())
	assert.True(t, r.Next())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"busy", errors.Wrap(errors.ErrBusy, "mount"), Transient},
		{"unreachable", errors.NewUnavailableError("guider"), Fatal},
		{"exhausted", NewRetryCounter("x").Err(), Fatal},
		{"policy", errors.Wrap(ErrPolicyViolation, "altitude"), PolicyViolation},
		{"timeout", errors.Wrap(errors.ErrTimeout, "dome"), Timeout},
		{"deadline", context.DeadlineExceeded, Timeout},
		{"input", errors.NewInvalidRequestError("bad file"), InputError},
		{"other", errors.New("focus failed"), Recoverable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}

	ec := ClassifyError("align", errors.New("solver failed"))
	assert.Equal(t, "align", ec.Stage)
	assert.True(t, ec.Retryable)
	assert.Equal(t, "recoverable", ec.Kind.String())
}
