// Package envelope defines the platform-neutral chat message that every
// transport (Matrix sync, the control endpoint, the !ask command) normalises
// inbound traffic into before it reaches the bot core.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message is one inbound chat message.
type Message struct {
	// EventID is the transport's identifier for the message, if any.
	EventID string `json:"eventId,omitempty"`

	// SenderID identifies the author (a Matrix user ID for the Matrix transport).
	SenderID string `json:"senderId"`

	// SenderName is the author's display name. It falls back to SenderID.
	SenderName string `json:"senderName,omitempty"`

	// ChannelID identifies the room or channel the message was posted in.
	ChannelID string `json:"channelId"`

	// Text is the plain-text body.
	Text string `json:"text"`

	// FromBot is true for messages authored by this bot or another bot.
	// Such messages are never learned from or answered.
	FromBot bool `json:"isFromSelfOrBot"`

	// Mentioned is true when the message addresses the bot directly.
	Mentioned bool `json:"mentioned,omitempty"`

	// ReceivedAt is when the transport delivered the message.
	ReceivedAt time.Time `json:"receivedAt"`
}

// DisplayName returns SenderName, or SenderID when no name is known.
func (m *Message) DisplayName() string {
	if m.SenderName != "" {
		return m.SenderName
	}
	return m.SenderID
}

// Validate checks that a Message is structurally valid.
func (m *Message) Validate() error {
	if m == nil {
		return fmt.Errorf("message must not be nil")
	}
	if strings.TrimSpace(m.SenderID) == "" {
		return fmt.Errorf("senderId must not be empty")
	}
	if strings.TrimSpace(m.ChannelID) == "" {
		return fmt.Errorf("channelId must not be empty")
	}
	if m.ReceivedAt.IsZero() {
		return fmt.Errorf("receivedAt must not be zero")
	}
	return nil
}

// ParseMessage decodes a JSON-encoded Message, stamps ReceivedAt with now
// when the sender omitted it, and validates the result.
func ParseMessage(data []byte, now time.Time) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("envelope parse: %w", err)
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = now
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("envelope validate: %w", err)
	}
	return &msg, nil
}
