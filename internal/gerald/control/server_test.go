package control_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/gerald/common/spec/envelope"
	"github.com/bdobrica/gerald/internal/gerald/control"
	"github.com/bdobrica/gerald/internal/gerald/vocab"
)

// --- Auth middleware ---------------------------------------------------------

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{"no token configured", "", "", http.StatusOK},
		{"missing header", "s3cret-token", "", http.StatusUnauthorized},
		{"wrong token", "s3cret-token", "Bearer wrong", http.StatusUnauthorized},
		{"not bearer", "s3cret-token", "Basic s3cret-token", http.StatusUnauthorized},
		{"valid token", "s3cret-token", "Bearer s3cret-token", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := startTestServer(t, tt.token)
			req, _ := http.NewRequest("GET", ts.URL+"/health", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("GET /health: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

// --- Read endpoints ------------------------------------------------------------

func TestStatus(t *testing.T) {
	ts, _ := startTestServer(t, "")

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var st control.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Version != "v0.0.1-test" || st.ConfigHash != "deadbeef" {
		t.Errorf("unexpected identity: %+v", st)
	}
	if st.VocabularySize != 4 {
		t.Errorf("vocabulary_size = %d, want 4", st.VocabularySize)
	}
	if !st.LLMAvailable || st.Provider != "ollama" || st.Model != "llama3.2" {
		t.Errorf("unexpected llm fields: %+v", st)
	}
	if diff := cmp.Diff(map[string]int{"llm": 7, "fallback": 3}, st.Replies); diff != "" {
		t.Errorf("replies mismatch (-want +got):\n%s", diff)
	}
	if st.Uptime <= 0 {
		t.Errorf("uptime = %v, want > 0", st.Uptime)
	}
}

func TestVocabulary(t *testing.T) {
	ts, _ := startTestServer(t, "")

	resp, err := http.Get(ts.URL + "/vocabulary?top=2")
	if err != nil {
		t.Fatalf("GET /vocabulary: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got control.VocabularyResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Size != 4 {
		t.Errorf("size = %d, want 4", got.Size)
	}
	want := []vocab.WordCount{{Word: "mate", Count: 3}, {Word: "tyler", Count: 2}}
	if diff := cmp.Diff(want, got.Top); diff != "" {
		t.Errorf("top mismatch (-want +got):\n%s", diff)
	}
}

func TestVocabulary_BadTop(t *testing.T) {
	ts, _ := startTestServer(t, "")
	for _, q := range []string{"top=0", "top=-1", "top=lots"} {
		resp, err := http.Get(ts.URL + "/vocabulary?" + q)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, resp.StatusCode)
		}
	}
}

// --- Generate / validate -------------------------------------------------------

func TestGenerate(t *testing.T) {
	ts, _ := startTestServer(t, "")

	resp := postJSON(t, ts.URL+"/generate", `{"context":"tyler"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got control.GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Text != "generated for tyler" {
		t.Errorf("text = %q", got.Text)
	}
}

func TestValidate(t *testing.T) {
	ts, _ := startTestServer(t, "")

	tests := []struct {
		body string
		want control.ValidateResponse
	}{
		{`{"candidate":"mate tyler massive"}`, control.ValidateResponse{Valid: true}},
		{`{"candidate":"mate tyler huge"}`, control.ValidateResponse{Valid: false, Reason: "unknown_word"}},
	}
	for _, tt := range tests {
		resp := postJSON(t, ts.URL+"/validate", tt.body)
		var got control.ValidateResponse
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		resp.Body.Close()
		if got != tt.want {
			t.Errorf("POST /validate %s = %+v, want %+v", tt.body, got, tt.want)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := startTestServer(t, "")
	cases := []struct{ method, path, allow string }{
		{"POST", "/health", "GET"},
		{"POST", "/status", "GET"},
		{"DELETE", "/vocabulary", "GET"},
		{"GET", "/generate", "POST"},
		{"GET", "/validate", "POST"},
		{"PUT", "/messages", "POST"},
	}
	for _, c := range cases {
		req, _ := http.NewRequest(c.method, ts.URL+c.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", c.method, c.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected 405, got %d", c.method, c.path, resp.StatusCode)
		}
		if got := resp.Header.Get("Allow"); !strings.Contains(got, c.allow) {
			t.Errorf("%s %s: Allow = %q, want it to list %s", c.method, c.path, got, c.allow)
		}
	}
}

func TestBadJSON(t *testing.T) {
	ts, _ := startTestServer(t, "")
	for _, path := range []string{"/generate", "/validate", "/messages"} {
		resp := postJSON(t, ts.URL+path, `{not json`)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, resp.StatusCode)
		}
	}
}

// --- Message ingress -------------------------------------------------------------

func TestMessages_Accepted(t *testing.T) {
	ts, rec := startTestServer(t, "")

	resp := postJSON(t, ts.URL+"/messages",
		`{"eventId":"$1","senderId":"@tyler:example.org","channelId":"!pub","text":"oi gerald"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	msgs := rec.messages()
	if len(msgs) != 1 {
		t.Fatalf("handled %d messages, want 1", len(msgs))
	}
	if msgs[0].Text != "oi gerald" || msgs[0].ReceivedAt.IsZero() {
		t.Errorf("unexpected message: %+v", msgs[0])
	}
}

func TestMessages_InvalidEnvelope(t *testing.T) {
	ts, rec := startTestServer(t, "")

	resp := postJSON(t, ts.URL+"/messages", `{"senderId":"@tyler:example.org","text":"no channel"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if n := len(rec.messages()); n != 0 {
		t.Errorf("handled %d messages, want 0", n)
	}
}

func TestMessages_RateLimited(t *testing.T) {
	rec := &recorder{}
	srv := control.New(":0", control.Handlers{
		HandleMessage:     rec.handle,
		MessagesPerMinute: 2,
	})
	ts := httptest.NewServer(srv.TestHandler())
	defer ts.Close()

	body := `{"senderId":"@tyler:example.org","channelId":"!pub","text":"oi"}`
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp := postJSON(t, ts.URL+"/messages", body)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	want := []int{http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests}
	if diff := cmp.Diff(want, codes); diff != "" {
		t.Errorf("status codes (-want +got):\n%s", diff)
	}

	other := postJSON(t, ts.URL+"/messages", `{"senderId":"@tyler:example.org","channelId":"!other","text":"oi"}`)
	other.Body.Close()
	if other.StatusCode != http.StatusAccepted {
		t.Errorf("other channel: expected 202, got %d", other.StatusCode)
	}
}

func TestUnwiredHandlers(t *testing.T) {
	srv := control.New(":0", control.Handlers{})
	ts := httptest.NewServer(srv.TestHandler())
	defer ts.Close()

	for _, path := range []string{"/generate", "/validate", "/messages"} {
		resp := postJSON(t, ts.URL+path, `{}`)
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, resp.StatusCode)
		}
	}
	resp, err := http.Get(ts.URL + "/vocabulary")
	if err != nil {
		t.Fatalf("GET /vocabulary: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("/vocabulary: expected 503, got %d", resp.StatusCode)
	}
}

func TestStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := control.New("127.0.0.1:0", control.Handlers{})
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	srv.Stop()
}

// ── helpers ──────────────────────────────────────────────────────────────────

type recorder struct {
	mu   sync.Mutex
	msgs []*envelope.Message
}

func (r *recorder) handle(_ context.Context, msg *envelope.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) messages() []*envelope.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*envelope.Message(nil), r.msgs...)
}

func newTestServer(token string, rec *recorder) *control.Server {
	store := vocab.New([]string{"mate", "tyler", "massive", "yeah"})
	store.Observe([]string{"mate", "mate", "tyler"})
	return control.New(":0", control.Handlers{
		Version:   "v0.0.1-test",
		StartedAt: time.Now().Add(-time.Minute),
		Token:     token,
		Vocabulary: func() *vocab.Store {
			return store
		},
		ConfigHash: func() string { return "deadbeef" },
		LLM: func() (bool, string, string) {
			return true, "ollama", "llama3.2"
		},
		ReplyCounts: func(context.Context) (map[string]int, error) {
			return map[string]int{"llm": 7, "fallback": 3}, nil
		},
		Generate: func(topic string) string {
			return "generated for " + topic
		},
		Validate: func(candidate string) string {
			for _, w := range strings.Fields(candidate) {
				if !store.Contains(w) {
					return "unknown_word"
				}
			}
			return ""
		},
		HandleMessage: rec.handle,
	})
}

func startTestServer(t *testing.T, token string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := newTestServer(token, rec)
	ts := httptest.NewServer(srv.TestHandler())
	t.Cleanup(ts.Close)
	return ts, rec
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}
