package policy

import (
	"sync"
	"time"
)

// Cooldown tracks, per channel, when the bot last replied. It is memory
// only and safe for concurrent use.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time // channelID → last reply time
}

// NewCooldown returns a Cooldown with the given window. A window ≤ 0
// disables it.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{window: window, last: make(map[string]time.Time)}
}

// SetWindow changes the window; existing reservations keep their times.
func (c *Cooldown) SetWindow(window time.Duration) {
	c.mu.Lock()
	c.window = window
	c.mu.Unlock()
}

// Active reports whether channel replied less than one window before now.
func (c *Cooldown) Active(channel string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked(channel, now)
}

// Reserve claims the channel's reply slot at now. It returns false, and
// changes nothing, when the channel is still cooling down. Check and set
// happen under one lock so two concurrent messages cannot both win.
func (c *Cooldown) Reserve(channel string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeLocked(channel, now) {
		return false
	}
	c.last[channel] = now
	return true
}

// Remaining returns how long channel must still wait, or 0.
func (c *Cooldown) Remaining(channel string, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeLocked(channel, now) {
		return 0
	}
	return c.last[channel].Add(c.window).Sub(now)
}

func (c *Cooldown) activeLocked(channel string, now time.Time) bool {
	if c.window <= 0 {
		return false
	}
	last, ok := c.last[channel]
	return ok && now.Sub(last) < c.window
}
