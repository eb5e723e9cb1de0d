package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("503 from nseindia"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return NewTransientError(errors.New("timeout"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "timeout", err.Error())
}

func TestDoVal_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, fastPolicy(5), func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(errors.New("reset"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	v, err := DoVal(context.Background(), fastPolicy(2), func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestPolicy(t *testing.T) {
	assert.Equal(t, 5, PolicyFor(5).MaxAttempts)
	assert.Equal(t, 3, PolicyFor(0).MaxAttempts)

	p := RetryPolicy{InitialBackoff: time.Second, MaxBackoff: 4 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(5))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(NewTransientError(errors.New("x"), 429)))
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.False(t, IsTransient(errors.New("invalid symbol")))

	assert.True(t, IsTransientStatus(429))
	assert.True(t, IsTransientStatus(503))
	assert.False(t, IsTransientStatus(501))
	assert.False(t, IsTransientStatus(404))
}

func TestBreaker(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	now := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	require.NoError(t, b.Allow())
	b.Record(errors.New("fail"))
	assert.Equal(t, Closed, b.State())
	b.Record(errors.New("fail"))
	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	require.NoError(t, b.Allow())
	assert.Equal(t, HalfOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen, "only one trial request")

	b.Record(nil)
	assert.Equal(t, Closed, b.State())
	require.NoError(t, b.Allow())
}

func TestBreaker_FailedTrialReopens(t *testing.T) {
	b := NewBreaker(1, time.Second)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.Record(errors.New("fail"))
	now = now.Add(2 * time.Second)
	require.NoError(t, b.Allow())
	b.Record(errors.New("still failing"))
	assert.Equal(t, Open, b.State())
}

func TestBreakers(t *testing.T) {
	bs := NewBreakers(1, time.Minute)
	a := bs.Get("www.nseindia.com")
	assert.Same(t, a, bs.Get("www.nseindia.com"))
	a.Record(errors.New("fail"))
	assert.Equal(t, map[string]BreakerState{"www.nseindia.com": Open}, bs.States())
}
