package commands

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/gerald/common/spec/envelope"
)

func TestParse(t *testing.T) {
	r := NewRouter("!")

	tests := []struct {
		name    string
		text    string
		want    *Command
		wantErr error
	}{
		{
			name: "bare command",
			text: "!status",
			want: &Command{Name: "status", Args: []string{}, Flags: map[string]string{}, RawText: "status"},
		},
		{
			name: "name is lowercased",
			text: "  !VOCABULARY ",
			want: &Command{Name: "vocabulary", Args: []string{}, Flags: map[string]string{}, RawText: "VOCABULARY"},
		},
		{
			name: "rest keeps raw text",
			text: "!teach Big  Lad, innit",
			want: &Command{
				Name:    "teach",
				Args:    []string{"Big", "Lad,", "innit"},
				Flags:   map[string]string{},
				Rest:    "Big  Lad, innit",
				RawText: "teach Big  Lad, innit",
			},
		},
		{
			name: "flags with and without values",
			text: "!vocabulary --top 5 --verbose",
			want: &Command{
				Name:    "vocabulary",
				Args:    []string{},
				Flags:   map[string]string{"top": "5", "verbose": "true"},
				Rest:    "--top 5 --verbose",
				RawText: "vocabulary --top 5 --verbose",
			},
		},
		{name: "no prefix", text: "status", wantErr: ErrNotACommand},
		{name: "prefix only", text: "!   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Parse(tt.text)
			if tt.want == nil {
				if err == nil {
					t.Fatalf("Parse(%q) expected error", tt.text)
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse(%q) error = %v, want %v", tt.text, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.text, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestRoute(t *testing.T) {
	r := NewRouter("!")
	r.Register("echo", "repeat", func(_ context.Context, cmd *Command, msg *envelope.Message) (string, error) {
		return msg.SenderID + ": " + cmd.Rest, nil
	})
	msg := &envelope.Message{SenderID: "@tyler:example.org", ChannelID: "!room"}

	got, err := r.Route(context.Background(), "!echo oi mate", msg)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got != "@tyler:example.org: oi mate" {
		t.Errorf("Route = %q", got)
	}

	if _, err := r.Route(context.Background(), "!nope", msg); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unknown command error = %v, want ErrUnknownCommand", err)
	}
	if _, err := r.Route(context.Background(), "echo", msg); !errors.Is(err, ErrNotACommand) {
		t.Errorf("missing prefix error = %v, want ErrNotACommand", err)
	}
}

func TestSetPrefix(t *testing.T) {
	r := NewRouter("!")
	if !r.IsCommand("!status") {
		t.Fatal("IsCommand(!status) = false")
	}
	r.SetPrefix(".")
	if r.IsCommand("!status") {
		t.Error("old prefix still recognised")
	}
	if !r.IsCommand(" .status") {
		t.Error("new prefix not recognised")
	}
	if NewRouter("").IsCommand("!status") {
		t.Error("empty prefix must not match")
	}
}

func TestHelp_SortedWithPrefix(t *testing.T) {
	r := NewRouter("!")
	noop := func(context.Context, *Command, *envelope.Message) (string, error) { return "", nil }
	r.Register("zed", "last", noop)
	r.Register("alpha", "first", noop)

	want := "!alpha - first\n!zed - last"
	if got := r.Help(); got != want {
		t.Errorf("Help =\n%s\nwant\n%s", got, want)
	}
	if !strings.HasPrefix(r.Help(), "!alpha") {
		t.Error("help not sorted")
	}
}

func TestCommandAccessors(t *testing.T) {
	cmd := &Command{Args: []string{"one"}, Flags: map[string]string{"top": "3"}}
	if v, ok := cmd.GetArg(0); !ok || v != "one" {
		t.Errorf("GetArg(0) = %q, %v", v, ok)
	}
	if _, ok := cmd.GetArg(1); ok {
		t.Error("GetArg(1) should be out of range")
	}
	if cmd.GetFlag("top", "10") != "3" || cmd.GetFlag("missing", "10") != "10" {
		t.Error("GetFlag returned wrong values")
	}
}
