package policy_test

import (
	"testing"
	"time"

	"github.com/bdobrica/gerald/common/spec/envelope"
	"github.com/bdobrica/gerald/internal/gerald/policy"
)

// fixedRoll always returns the same value.
type fixedRoll float64

func (f fixedRoll) Float64() float64 { return float64(f) }

var t0 = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

func msg(channel, text string) *envelope.Message {
	return &envelope.Message{
		SenderID:   "@tyler:example.org",
		ChannelID:  channel,
		Text:       text,
		ReceivedAt: t0,
	}
}

func TestDecide_Order(t *testing.T) {
	base := policy.Config{
		ResponseChance:    0.25,
		QuestionChance:    0.6,
		QuestionMinLength: 10,
		TriggerWords:      []string{"Gerald"},
		AllowedChannels:   []string{"!banter:x"},
		IgnoreSenders:     []string{"@spam:x"},
		Cooldown:          3 * time.Second,
	}

	tests := []struct {
		name   string
		roll   float64
		mutate func(m *envelope.Message)
		want   policy.Result
	}{
		{"bot message", 0, func(m *envelope.Message) { m.FromBot = true; m.Mentioned = true },
			policy.Result{Decision: policy.DecisionSkip, Reason: policy.ReasonFromBot}},
		{"ignored sender", 0, func(m *envelope.Message) { m.SenderID = "@spam:x"; m.Mentioned = true },
			policy.Result{Decision: policy.DecisionSkip, Reason: policy.ReasonIgnored}},
		{"other channel", 0, func(m *envelope.Message) { m.ChannelID = "!work:x"; m.Mentioned = true },
			policy.Result{Decision: policy.DecisionSkip, Reason: policy.ReasonChannel}},
		{"mention", 0.99, func(m *envelope.Message) { m.Mentioned = true },
			policy.Result{Decision: policy.DecisionRespond, Reason: policy.ReasonMention}},
		{"trigger case insensitive", 0.99, func(m *envelope.Message) { m.Text = "where's GERALD gone" },
			policy.Result{Decision: policy.DecisionRespond, Reason: policy.ReasonTrigger}},
		{"long question hit", 0.5, func(m *envelope.Message) { m.Text = "anyone at the gym later?" },
			policy.Result{Decision: policy.DecisionRespond, Reason: policy.ReasonQuestion}},
		{"long question miss", 0.7, func(m *envelope.Message) { m.Text = "anyone at the gym later?" },
			policy.Result{Decision: policy.DecisionSkip, Reason: policy.ReasonNoChance}},
		{"short question uses base chance", 0.5, func(m *envelope.Message) { m.Text = "you ok?" },
			policy.Result{Decision: policy.DecisionSkip, Reason: policy.ReasonNoChance}},
		{"random chance hit", 0.1, func(m *envelope.Message) { m.Text = "nice weather" },
			policy.Result{Decision: policy.DecisionRespond, Reason: policy.ReasonChance}},
		{"random chance miss", 0.3, func(m *envelope.Message) { m.Text = "nice weather" },
			policy.Result{Decision: policy.DecisionSkip, Reason: policy.ReasonNoChance}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := policy.New(base, fixedRoll(tt.roll))
			m := msg("!banter:x", "hello")
			tt.mutate(m)
			if got := e.Decide(m, t0); got != tt.want {
				t.Errorf("Decide = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecide_CooldownTwoMessagesOneSecondApart(t *testing.T) {
	e := policy.New(policy.Config{Cooldown: 3 * time.Second, ResponseChance: 1}, fixedRoll(0))

	sends := 0
	for i, at := range []time.Time{t0, t0.Add(time.Second)} {
		m := msg("!banter:x", "hello there")
		m.Mentioned = true
		if e.Decide(m, at).Respond() {
			sends++
		} else if i == 0 {
			t.Fatal("first message should be answered")
		}
	}
	if sends != 1 {
		t.Fatalf("sends = %d, want at most 1", sends)
	}

	later := msg("!banter:x", "hello again")
	if !e.Decide(later, t0.Add(3*time.Second)).Respond() {
		t.Error("message after the window should be answered")
	}
	if !e.Decide(msg("!other:x", "hi"), t0.Add(time.Second)).Respond() {
		t.Error("cooldown must be per channel")
	}
}

func TestDecide_SkipDoesNotReserve(t *testing.T) {
	e := policy.New(policy.Config{Cooldown: 3 * time.Second, ResponseChance: 0}, fixedRoll(0.5))
	if e.Decide(msg("!r:x", "meh"), t0).Respond() {
		t.Fatal("expected skip")
	}
	if e.Cooldown().Active("!r:x", t0) {
		t.Error("a skipped message must not start the cooldown")
	}
}

func TestUpdate_SwapsConfig(t *testing.T) {
	e := policy.New(policy.Config{AllowedChannels: []string{"!a:x"}}, fixedRoll(0.99))
	if e.ChannelAllowed("!b:x") {
		t.Fatal("!b:x should not be allowed yet")
	}
	e.Update(policy.Config{TriggerWords: []string{"oi"}, Cooldown: time.Second})
	if !e.ChannelAllowed("!b:x") {
		t.Fatal("empty allow list should allow every channel")
	}
	if got := e.Decide(msg("!b:x", "OI mate"), t0); got.Reason != policy.ReasonTrigger {
		t.Errorf("Decide after update = %+v", got)
	}
	if rem := e.Cooldown().Remaining("!b:x", t0.Add(400*time.Millisecond)); rem != 600*time.Millisecond {
		t.Errorf("Remaining = %v, want 600ms", rem)
	}
}

func TestCooldown_DisabledWindow(t *testing.T) {
	c := policy.NewCooldown(0)
	if !c.Reserve("!r:x", t0) || !c.Reserve("!r:x", t0) {
		t.Fatal("zero window should never block")
	}
	if c.Remaining("!r:x", t0) != 0 {
		t.Error("Remaining should be 0 with zero window")
	}
}

func TestDecision_String(t *testing.T) {
	if policy.DecisionRespond.String() != "respond" || policy.DecisionSkip.String() != "skip" || policy.Decision(9).String() != "unknown" {
		t.Error("unexpected Decision strings")
	}
}
