// Package memory keeps what the bot remembers about recent conversation:
// a bounded per-channel History used to give the model context, and an
// optional Journal persisted to disk.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultMaxHistory is the per-channel exchange bound when none is configured.
const DefaultMaxHistory = 10

// Exchange is one inbound message and, if the bot answered, its reply.
type Exchange struct {
	Sender    string
	Text      string
	Response  string
	Timestamp time.Time
}

// History is a bounded FIFO of exchanges per channel. The oldest exchange
// is dropped once a channel exceeds its capacity. It is safe for
// concurrent use.
type History struct {
	mu       sync.Mutex
	capacity int
	channels map[string][]Exchange
}

// NewHistory returns a History holding at most capacity exchanges per
// channel. capacity ≤ 0 selects DefaultMaxHistory.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultMaxHistory
	}
	return &History{capacity: capacity, channels: make(map[string][]Exchange)}
}

// SetCapacity changes the bound and trims channels that now exceed it.
func (h *History) SetCapacity(capacity int) {
	if capacity <= 0 {
		capacity = DefaultMaxHistory
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.capacity = capacity
	for ch := range h.channels {
		h.trimLocked(ch)
	}
}

// Record appends an exchange to channel.
func (h *History) Record(channel string, ex Exchange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels[channel] = append(h.channels[channel], ex)
	h.trimLocked(channel)
}

// AttachResponse stores the bot's reply on the newest exchange of channel.
// It is a no-op when the channel has no history.
func (h *History) AttachResponse(channel, response string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	exs := h.channels[channel]
	if len(exs) == 0 {
		return
	}
	exs[len(exs)-1].Response = response
}

// Recent returns up to n of the newest exchanges of channel, oldest first.
// The returned slice is a copy.
func (h *History) Recent(channel string, n int) []Exchange {
	h.mu.Lock()
	defer h.mu.Unlock()
	exs := h.channels[channel]
	if n <= 0 || len(exs) == 0 {
		return nil
	}
	if n > len(exs) {
		n = len(exs)
	}
	out := make([]Exchange, n)
	copy(out, exs[len(exs)-n:])
	return out
}

// Format renders the last n exchanges of channel as prompt context:
//
//	User: <text>
//	Gerald: <reply>
//
// Exchanges the bot did not answer contribute only their User line.
func (h *History) Format(channel string, n int, botName string) string {
	if botName == "" {
		botName = "Gerald"
	}
	var sb strings.Builder
	for _, ex := range h.Recent(channel, n) {
		fmt.Fprintf(&sb, "User: %s\n", ex.Text)
		if ex.Response != "" {
			fmt.Fprintf(&sb, "%s: %s\n", botName, ex.Response)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Len returns the number of exchanges held for channel.
func (h *History) Len(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels[channel])
}

// Clear forgets channel's history.
func (h *History) Clear(channel string) {
	h.mu.Lock()
	delete(h.channels, channel)
	h.mu.Unlock()
}

// ClearAll forgets every channel.
func (h *History) ClearAll() {
	h.mu.Lock()
	h.channels = make(map[string][]Exchange)
	h.mu.Unlock()
}

func (h *History) trimLocked(channel string) {
	exs := h.channels[channel]
	if over := len(exs) - h.capacity; over > 0 {
		h.channels[channel] = append([]Exchange(nil), exs[over:]...)
	}
}
