// Package commands parses and routes "!"-prefixed chat commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bdobrica/gerald/common/spec/envelope"
)

// Command is a parsed chat command.
type Command struct {
	Name string
	// Args are the whitespace-separated words after the name, flags removed.
	Args  []string
	Flags map[string]string
	// Rest is the raw text after the name, used by commands that take
	// free text such as teach and ask.
	Rest    string
	RawText string
}

var (
	// ErrNotACommand is returned by Parse when the text lacks the prefix.
	ErrNotACommand = errors.New("not a command (missing prefix)")
	// ErrUnknownCommand is returned by Route for names with no handler.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrForbidden is returned by handlers restricted to admins.
	ErrForbidden = errors.New("not allowed")
)

// Handler handles one command and returns the reply text.
type Handler func(ctx context.Context, cmd *Command, msg *envelope.Message) (string, error)

// Router maps command names to handlers.
type Router struct {
	mu       sync.RWMutex
	prefix   string
	handlers map[string]Handler
	help     map[string]string
}

// NewRouter creates a router for prefix.
func NewRouter(prefix string) *Router {
	return &Router{
		prefix:   prefix,
		handlers: make(map[string]Handler),
		help:     make(map[string]string),
	}
}

// Register binds name to handler with a one-line description.
func (r *Router) Register(name, description string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
	r.help[name] = description
}

// SetPrefix changes the prefix; used on config reload.
func (r *Router) SetPrefix(prefix string) {
	r.mu.Lock()
	r.prefix = prefix
	r.mu.Unlock()
}

// IsCommand reports whether text starts with the prefix.
func (r *Router) IsCommand(text string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prefix != "" && strings.HasPrefix(strings.TrimSpace(text), r.prefix)
}

// Parse parses text into a Command.
func (r *Router) Parse(text string) (*Command, error) {
	r.mu.RLock()
	prefix := r.prefix
	r.mu.RUnlock()

	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return nil, ErrNotACommand
	}
	text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := &Command{
		Name:    strings.ToLower(parts[0]),
		Args:    []string{},
		Flags:   make(map[string]string),
		Rest:    strings.TrimSpace(strings.TrimPrefix(text, parts[0])),
		RawText: text,
	}
	rest := parts[1:]
	for i := 0; i < len(rest); i++ {
		part := rest[i]
		if strings.HasPrefix(part, "--") {
			name := strings.TrimPrefix(part, "--")
			if i+1 < len(rest) && !strings.HasPrefix(rest[i+1], "--") {
				cmd.Flags[name] = rest[i+1]
				i++
			} else {
				cmd.Flags[name] = "true"
			}
			continue
		}
		cmd.Args = append(cmd.Args, part)
	}
	return cmd, nil
}

// Route parses text and runs the matching handler.
func (r *Router) Route(ctx context.Context, text string, msg *envelope.Message) (string, error) {
	cmd, err := r.Parse(text)
	if err != nil {
		return "", err
	}
	return r.Dispatch(ctx, cmd, msg)
}

// Dispatch runs the handler for an already parsed command.
func (r *Router) Dispatch(ctx context.Context, cmd *Command, msg *envelope.Message) (string, error) {
	r.mu.RLock()
	handler, ok := r.handlers[cmd.Name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
	}
	return handler(ctx, cmd, msg)
}

// Help lists registered commands as "!name - description", sorted.
func (r *Router) Help() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = fmt.Sprintf("%s%s - %s", r.prefix, n, r.help[n])
	}
	return strings.Join(lines, "\n")
}

// GetFlag returns a flag value with a default.
func (c *Command) GetFlag(name, defaultValue string) string {
	if val, ok := c.Flags[name]; ok {
		return val
	}
	return defaultValue
}

// GetArg returns an argument by index.
func (c *Command) GetArg(index int) (string, bool) {
	if index < 0 || index >= len(c.Args) {
		return "", false
	}
	return c.Args[index], true
}
