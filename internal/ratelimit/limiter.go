package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrInvalidRate rejects a negative throughput ceiling at configuration time.
var ErrInvalidRate = errors.New("rate limit must be non-negative")

// Limiter is a token bucket shared by all active transfers. Bucket capacity
// is one second's worth of the configured rate; refill is continuous from
// wall clock elapsed time. A rate of zero means unlimited.
type Limiter struct {
	mu       sync.Mutex
	rate     int64
	tokens   float64
	last     time.Time
	now      func() time.Time
	onChange []func(bytesPerSecond int64)
}

func New(bytesPerSecond int64) (*Limiter, error) {
	if bytesPerSecond < 0 {
		return nil, ErrInvalidRate
	}
	l := &Limiter{
		rate: bytesPerSecond,
		now:  time.Now,
	}
	l.tokens = float64(bytesPerSecond)
	l.last = l.now()
	return l, nil
}

// Rate returns the configured ceiling in bytes per second.
func (l *Limiter) Rate() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rate
}

// SetRate changes the ceiling. It takes effect on the next Acquire call;
// already consumed tokens are not adjusted. Registered observers are
// notified after the new rate is applied.
func (l *Limiter) SetRate(bytesPerSecond int64) error {
	if bytesPerSecond < 0 {
		return ErrInvalidRate
	}
	l.mu.Lock()
	l.refill()
	l.rate = bytesPerSecond
	if l.tokens > float64(bytesPerSecond) {
		l.tokens = float64(bytesPerSecond)
	}
	observers := append(([]func(int64))(nil), l.onChange...)
	l.mu.Unlock()

	for _, fn := range observers {
		fn(bytesPerSecond)
	}
	return nil
}

// OnChange registers fn to run whenever SetRate applies a new ceiling.
// Engines that mirror the limit into their own throttle hook in here.
func (l *Limiter) OnChange(fn func(bytesPerSecond int64)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Acquire reserves n bytes of throughput and returns how long the caller
// must sleep before transferring them. It never blocks itself.
func (l *Limiter) Acquire(n int64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rate == 0 || n <= 0 {
		return 0
	}

	l.refill()
	l.tokens -= float64(n)
	if l.tokens >= 0 {
		return 0
	}
	return time.Duration(-l.tokens / float64(l.rate) * float64(time.Second))
}

// refill credits tokens for wall clock time elapsed since the last call.
// Callers must hold the mutex.
func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.last).Seconds()
	l.last = now
	if l.rate == 0 || elapsed <= 0 {
		return
	}
	l.tokens += elapsed * float64(l.rate)
	if l.tokens > float64(l.rate) {
		l.tokens = float64(l.rate)
	}
}
