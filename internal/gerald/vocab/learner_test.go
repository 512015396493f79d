package vocab

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/gerald/internal/gerald/tokenizer"
)

// ── helpers ──────────────────────────────────────────────────────────────────

type memPersister struct {
	mu      sync.Mutex
	saved   []Snapshot
	loadErr error
	saveErr error
	initial *Snapshot
}

func (m *memPersister) Load(context.Context) (Snapshot, error) {
	if m.loadErr != nil {
		return Snapshot{}, m.loadErr
	}
	if m.initial == nil {
		return Snapshot{}, ErrNoSnapshot
	}
	return *m.initial, nil
}

func (m *memPersister) Save(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, snap)
	return nil
}

func (m *memPersister) saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

// ── Learn ────────────────────────────────────────────────────────────────────

func TestLearn_StarterVocabularyScenario(t *testing.T) {
	p := &memPersister{}
	store := New([]string{"mate", "tyler", "massive", "yeah"})
	l := NewLearner(store, p, LearnerConfig{})

	added := l.Learn(context.Background(), "Tyler is absolutely MASSIVE today")
	if added != 2 {
		t.Fatalf("Learn returned %d, want 2", added)
	}
	for _, w := range []string{"absolutely", "today"} {
		if !store.Contains(w) {
			t.Errorf("expected %q to be learned", w)
		}
	}
	if store.Contains("is") {
		t.Error("stop word 'is' must not be learned")
	}
	if got := store.Frequency("tyler"); got != 2 {
		t.Errorf("frequency[tyler] = %d, want 2", got)
	}
	if p.saves() != 1 {
		t.Errorf("saves = %d, want 1", p.saves())
	}
}

func TestLearn_IdempotentOnWordSet(t *testing.T) {
	store := New(nil)
	l := NewLearner(store, nil, LearnerConfig{})
	ctx := context.Background()

	l.Learn(ctx, "proper mental rubbish")
	words := store.Words()
	if added := l.Learn(ctx, "proper mental rubbish"); added != 0 {
		t.Fatalf("second Learn added %d words, want 0", added)
	}
	if diff := cmp.Diff(words, store.Words()); diff != "" {
		t.Errorf("word set changed (-before +after):\n%s", diff)
	}
	if got := store.Frequency("mental"); got != 2 {
		t.Errorf("frequency[mental] = %d, want 2", got)
	}
}

func TestLearn_NoTokensIsNoOp(t *testing.T) {
	p := &memPersister{}
	l := NewLearner(New([]string{"mate"}), p, LearnerConfig{})
	for _, text := range []string{"", "   ", "a ! ?", "the and is"} {
		if added := l.Learn(context.Background(), text); added != 0 {
			t.Errorf("Learn(%q) = %d, want 0", text, added)
		}
	}
	if p.saves() != 0 {
		t.Errorf("no-op learns saved %d times", p.saves())
	}
}

func TestLearn_SaveEveryN(t *testing.T) {
	p := &memPersister{}
	l := NewLearner(New(nil), p, LearnerConfig{SaveEvery: 3})
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		l.Learn(ctx, "bloody hell")
	}
	if p.saves() != 2 {
		t.Fatalf("saves after 7 learns = %d, want 2", p.saves())
	}
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if p.saves() != 3 {
		t.Fatalf("saves after flush = %d, want 3", p.saves())
	}
	if err := l.Flush(ctx); err != nil || p.saves() != 3 {
		t.Fatalf("flush with nothing pending should not save (saves=%d, err=%v)", p.saves(), err)
	}
	last := p.saved[len(p.saved)-1]
	if last.Frequency["bloody"] != 7 {
		t.Errorf("last snapshot frequency[bloody] = %d, want 7", last.Frequency["bloody"])
	}
}

func TestLearn_SaveErrorIsSwallowed(t *testing.T) {
	p := &memPersister{saveErr: errors.New("disk full")}
	store := New(nil)
	l := NewLearner(store, p, LearnerConfig{})

	if added := l.Learn(context.Background(), "massive lad"); added != 2 {
		t.Fatalf("Learn = %d, want 2", added)
	}
	if !store.Contains("massive") {
		t.Error("in-memory state must survive a failed save")
	}
	if err := l.Flush(context.Background()); err == nil {
		t.Error("Flush should report the pending save failure")
	}
}

func TestReset_SeedsAndSaves(t *testing.T) {
	p := &memPersister{}
	store := New(DefaultSeed)
	l := NewLearner(store, p, LearnerConfig{ResetSeed: []string{"oi"}})

	if err := l.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if diff := cmp.Diff([]string{"oi"}, store.Words()); diff != "" {
		t.Errorf("words after reset (-want +got):\n%s", diff)
	}
	if p.saves() != 1 {
		t.Errorf("saves = %d, want 1", p.saves())
	}
}

func TestLearner_ReloadableSettings(t *testing.T) {
	store := New(nil)
	l := NewLearner(store, nil, LearnerConfig{})

	if got := l.Learn(context.Background(), "the big lad"); got != 2 {
		t.Fatalf("Learn with default stop words = %d, want 2", got)
	}
	l.SetTokenizer(tokenizer.New(tokenizer.Options{StopWords: []string{}, MinLength: 1}))
	if got := l.Learn(context.Background(), "the big lad"); got != 1 {
		t.Fatalf("Learn without stop words = %d, want 1 (the)", got)
	}

	l.SetResetSeed([]string{"innit"})
	if err := l.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if diff := cmp.Diff([]string{"innit"}, store.Words()); diff != "" {
		t.Errorf("words after reset (-want +got):\n%s", diff)
	}
}

// ── Load ─────────────────────────────────────────────────────────────────────

func TestLoad(t *testing.T) {
	ctx := context.Background()

	fresh, err := Load(ctx, &memPersister{}, []string{"mate"})
	if err != nil {
		t.Fatalf("Load(empty): %v", err)
	}
	if !fresh.Contains("mate") || fresh.Len() != 1 {
		t.Errorf("fresh store not seeded: %v", fresh.Words())
	}

	saved := &memPersister{initial: &Snapshot{Words: []string{"geezer"}, Frequency: map[string]int{"geezer": 5}}}
	restored, err := Load(ctx, saved, []string{"mate"})
	if err != nil {
		t.Fatalf("Load(saved): %v", err)
	}
	if restored.Contains("mate") || restored.Frequency("geezer") != 5 {
		t.Errorf("restored store wrong: %v", restored.Words())
	}

	broken := &memPersister{loadErr: errors.New("corrupt")}
	if _, err := Load(ctx, broken, nil); err == nil {
		t.Error("expected error from broken persister")
	}
}
