// Package control implements Gerald's HTTP control server.
//
// Operators and local tooling use it to check health, inspect the learned
// vocabulary, try the generator and validator, and inject messages without
// a Matrix homeserver.
//
// Endpoints:
//
//	GET  /health          → HealthResponse
//	GET  /status          → StatusResponse
//	GET  /vocabulary      → VocabularyResponse (?top=N, default 10)
//	POST /generate        → GenerateRequest → GenerateResponse
//	POST /validate        → ValidateRequest → ValidateResponse
//	POST /messages        → envelope.Message → 202 Accepted
//
// When Handlers.Token is set every request must carry
// "Authorization: Bearer <token>".
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bdobrica/gerald/common/spec/envelope"
	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// maxMessageBodyBytes caps the inbound message request body.
const maxMessageBodyBytes = 1 * 1024 * 1024 // 1 MiB

const (
	defaultTop = 10
	maxTop     = 500
)

// fixedWindow is a single fixed-window message counter.
type fixedWindow struct {
	count       int
	windowStart time.Time
}

// channelLimiter enforces a per-channel fixed one-minute window on injected
// messages. A limit of 0 allows everything.
type channelLimiter struct {
	mu       sync.Mutex
	channels map[string]*fixedWindow
}

func newChannelLimiter() *channelLimiter {
	return &channelLimiter{channels: make(map[string]*fixedWindow)}
}

func (l *channelLimiter) allow(channel string, perMinute int, now time.Time) bool {
	if perMinute <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	win, ok := l.channels[channel]
	if !ok {
		win = &fixedWindow{}
		l.channels[channel] = win
	}
	if now.Sub(win.windowStart) >= time.Minute {
		win.count = 0
		win.windowStart = now
	}
	if win.count >= perMinute {
		return false
	}
	win.count++
	return true
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Version        string         `json:"version"`
	ConfigHash     string         `json:"config_hash"`
	Uptime         float64        `json:"uptime_seconds"`
	StartedAt      time.Time      `json:"started_at"`
	VocabularySize int            `json:"vocabulary_size"`
	LLMAvailable   bool           `json:"llm_available"`
	Provider       string         `json:"provider,omitempty"`
	Model          string         `json:"model,omitempty"`
	Replies        map[string]int `json:"replies,omitempty"`
}

// VocabularyResponse is returned by GET /vocabulary.
type VocabularyResponse struct {
	Size        int               `json:"size"`
	LastUpdated time.Time         `json:"last_updated"`
	Top         []vocab.WordCount `json:"top"`
}

// GenerateRequest is the body for POST /generate.
type GenerateRequest struct {
	Context string `json:"context"`
}

// GenerateResponse is returned by POST /generate.
type GenerateResponse struct {
	Text string `json:"text"`
}

// ValidateRequest is the body for POST /validate.
type ValidateRequest struct {
	Candidate string `json:"candidate"`
}

// ValidateResponse is returned by POST /validate. Reason is empty when the
// candidate is valid.
type ValidateResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Handlers bundles the callbacks the server delegates to.
type Handlers struct {
	Version   string
	StartedAt time.Time

	// Token, when non-empty, is the expected bearer token for all requests.
	Token string

	// Vocabulary returns the live store. Required for /status,
	// /vocabulary, /generate and /validate.
	Vocabulary func() *vocab.Store
	// ConfigHash returns the hash of the applied YAML config.
	ConfigHash func() string
	// LLM reports model availability and the configured backend.
	LLM func() (available bool, provider, model string)
	// ReplyCounts returns sent replies per source (llm, fallback).
	ReplyCounts func(ctx context.Context) (map[string]int, error)
	// Generate produces a fallback utterance biased by topic.
	Generate func(topic string) string
	// Validate checks a candidate reply; reason is empty when it passes.
	Validate func(candidate string) (reason string)
	// HandleMessage processes an injected message. It must not block.
	// When nil, POST /messages returns 503.
	HandleMessage func(ctx context.Context, msg *envelope.Message)
	// MessagesPerMinute limits POST /messages per channel. Zero is unlimited.
	MessagesPerMinute int
}

// Server is the control HTTP server.
type Server struct {
	addr     string
	handlers Handlers
	server   *http.Server
	limiter  *channelLimiter
	now      func() time.Time
}

// New creates a Server listening on addr.
func New(addr string, h Handlers) *Server {
	s := &Server{
		addr:     addr,
		handlers: h,
		limiter:  newChannelLimiter(),
		now:      time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /vocabulary", s.handleVocabulary)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("POST /validate", s.handleValidate)
	mux.HandleFunc("POST /messages", s.handleMessage)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.authMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// authMiddleware rejects requests without the configured bearer token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.handlers.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if auth[len("Bearer "):] != s.handlers.Token {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins listening and returns once the listener is bound. The server
// shuts down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("control listen %s: %w", s.addr, err)
	}
	slog.Info("control server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("control server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version:   s.handlers.Version,
		Uptime:    s.now().Sub(s.handlers.StartedAt).Seconds(),
		StartedAt: s.handlers.StartedAt,
	}
	if s.handlers.ConfigHash != nil {
		resp.ConfigHash = s.handlers.ConfigHash()
	}
	if s.handlers.Vocabulary != nil {
		resp.VocabularySize = s.handlers.Vocabulary().Len()
	}
	if s.handlers.LLM != nil {
		resp.LLMAvailable, resp.Provider, resp.Model = s.handlers.LLM()
	}
	if s.handlers.ReplyCounts != nil {
		counts, err := s.handlers.ReplyCounts(r.Context())
		if err != nil {
			slog.Warn("control: reply counts unavailable", "err", err)
		}
		resp.Replies = counts
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVocabulary(w http.ResponseWriter, r *http.Request) {
	if s.handlers.Vocabulary == nil {
		writeError(w, http.StatusServiceUnavailable, "vocabulary not available")
		return
	}
	top := defaultTop
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "top must be a positive integer")
			return
		}
		top = min(n, maxTop)
	}

	var resp VocabularyResponse
	store := s.handlers.Vocabulary()
	store.View(func(v vocab.Reader) {
		resp.Size = v.Len()
		resp.Top = v.Top(top)
	})
	resp.LastUpdated = store.LastUpdated()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if s.handlers.Generate == nil {
		writeError(w, http.StatusServiceUnavailable, "generation not available")
		return
	}
	writeJSON(w, http.StatusOK, GenerateResponse{Text: s.handlers.Generate(req.Context)})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if s.handlers.Validate == nil {
		writeError(w, http.StatusServiceUnavailable, "validation not available")
		return
	}
	reason := s.handlers.Validate(req.Candidate)
	writeJSON(w, http.StatusOK, ValidateResponse{Valid: reason == "", Reason: reason})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if s.handlers.HandleMessage == nil {
		writeError(w, http.StatusServiceUnavailable, "message handling not available")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}
	now := s.now()
	msg, err := envelope.ParseMessage(body, now)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.limiter.allow(msg.ChannelID, s.handlers.MessagesPerMinute, now) {
		slog.Warn("control: message rate limit exceeded", "channel", msg.ChannelID, "limit", s.handlers.MessagesPerMinute)
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("rate limit exceeded for channel %q (%d messages/min)", msg.ChannelID, s.handlers.MessagesPerMinute))
		return
	}

	// The request context ends with the response; the handler runs detached.
	s.handlers.HandleMessage(context.WithoutCancel(r.Context()), msg)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "event_id": msg.EventID})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// TestHandler exposes the server's HTTP handler for use in httptest.NewServer.
// This is only intended for tests.
func (s *Server) TestHandler() http.Handler {
	return s.server.Handler
}
