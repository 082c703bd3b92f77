package lessons

import (
	"sync"
	"time"
)

// Countdown races a wall-clock deadline at a fixed tick rate and fires
// a callback when the deadline is crossed. It is started and stopped
// explicitly by the composing layer; Stop always releases the ticker,
// so a torn-down view never leaks one.
type Countdown struct {
	mu sync.Mutex

	interval time.Duration
	nowTime  func() time.Time
	onTick   func(remaining time.Duration)
	onExpire func()

	deadline time.Time
	stop     chan struct{}
}

// CountdownOption configures a Countdown.
type CountdownOption func(*Countdown)

// WithTickInterval overrides the 1 Hz default tick rate.
func WithTickInterval(d time.Duration) CountdownOption {
	return func(c *Countdown) { c.interval = d }
}

// WithCountdownNowTime sets the now time function (primarily for testing).
func WithCountdownNowTime(nowFunc func() time.Time) CountdownOption {
	return func(c *Countdown) { c.nowTime = nowFunc }
}

// NewCountdown creates a countdown. onTick is invoked once per tick
// with the remaining duration while the deadline is in the future;
// onExpire fires once when a tick crosses the deadline, after which the
// countdown stops itself. Either callback may be nil.
func NewCountdown(onTick func(time.Duration), onExpire func(), options ...CountdownOption) *Countdown {
	c := &Countdown{
		interval: time.Second,
		nowTime:  time.Now,
		onTick:   onTick,
		onExpire: onExpire,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Start begins ticking against the deadline. A running countdown is
// stopped first, so retargeting to a new deadline is a single call.
func (c *Countdown) Start(deadline time.Time) {
	c.Stop()

	c.mu.Lock()
	c.deadline = deadline
	ch := make(chan struct{})
	c.stop = ch
	c.mu.Unlock()

	go c.loop(deadline, ch)
}

// Stop halts the countdown. Safe to call repeatedly and when never
// started.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// Remaining returns the non-negative time left until the deadline.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	deadline := c.deadline
	c.mu.Unlock()
	d := deadline.Sub(c.nowTime())
	if d < 0 {
		return 0
	}
	return d
}

func (c *Countdown) loop(deadline time.Time, stop chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			remaining := deadline.Sub(c.nowTime())
			if remaining <= 0 {
				c.expire(stop)
				return
			}
			if c.onTick != nil {
				c.onTick(remaining)
			}
		}
	}
}

func (c *Countdown) expire(stop chan struct{}) {
	// Detach before the callback so onExpire can call Start again.
	c.mu.Lock()
	if c.stop == stop {
		c.stop = nil
	}
	c.mu.Unlock()
	if c.onExpire != nil {
		c.onExpire()
	}
}
