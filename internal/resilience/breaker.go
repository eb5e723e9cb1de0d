package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while a host's breaker is open.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker opens after Threshold consecutive failures and lets a single
// trial request through once Cooldown has passed. A successful trial closes it.
type Breaker struct {
	Threshold int
	Cooldown  time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{Threshold: threshold, Cooldown: cooldown, now: time.Now}
}

// Allow returns ErrCircuitOpen while the breaker is open and the cooldown
// has not passed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.Cooldown {
			return ErrCircuitOpen
		}
		b.state = HalfOpen
		return nil
	case HalfOpen:
		// One trial request at a time.
		return ErrCircuitOpen
	default:
		return nil
	}
}

// Record reports the outcome of an allowed call.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state, b.failures = Closed, 0
		return
	}
	b.failures++
	if b.state == HalfOpen || b.failures >= b.Threshold {
		if b.state != Open {
			zap.L().Warn("circuit opened", zap.Int("failures", b.failures))
		}
		b.state, b.openedAt = Open, b.now()
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Breakers holds one Breaker per key, created on first use.
type Breakers struct {
	threshold int
	cooldown  time.Duration

	mu sync.Mutex
	m  map[string]*Breaker
}

// NewBreakers creates a breaker registry.
func NewBreakers(threshold int, cooldown time.Duration) *Breakers {
	return &Breakers{threshold: threshold, cooldown: cooldown, m: make(map[string]*Breaker)}
}

// Get returns the breaker for key.
func (bs *Breakers) Get(key string) *Breaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	b, ok := bs.m[key]
	if !ok {
		b = NewBreaker(bs.threshold, bs.cooldown)
		bs.m[key] = b
	}
	return b
}

// States returns a snapshot of every breaker's state.
func (bs *Breakers) States() map[string]BreakerState {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	out := make(map[string]BreakerState, len(bs.m))
	for k, b := range bs.m {
		out[k] = b.State()
	}
	return out
}
