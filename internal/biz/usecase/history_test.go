package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/tealbridge/feishu-assistant/internal/biz/domain"
)

type mockTranscript struct {
	mu         sync.Mutex
	rows       map[string][]domain.Turn
	loadErr    error
	appendErr  error
	loadCalls  int
	appendWake chan struct{}
}

func newMockTranscript() *mockTranscript {
	return &mockTranscript{rows: make(map[string][]domain.Turn)}
}

func (m *mockTranscript) AppendTurn(ctx context.Context, conversationID string, turn domain.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.rows[conversationID] = append(m.rows[conversationID], turn)
	if m.appendWake != nil {
		select {
		case m.appendWake <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *mockTranscript) RecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	turns := m.rows[conversationID]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (m *mockTranscript) stored(conversationID string) []domain.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Turn, len(m.rows[conversationID]))
	copy(out, m.rows[conversationID])
	return out
}

func TestWindowNeverExceedsCap(t *testing.T) {
	uc := NewHistoryUsecase(newMockTranscript(), 3)

	for i := 0; i < 10; i++ {
		uc.Append("c1", domain.NewUserTurn("alice", fmt.Sprintf("msg-%d", i)))
	}

	window, err := uc.GetOrLoad(context.Background(), "c1")
	if err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	if len(window) != 3 {
		t.Fatalf("Expected window of 3, got %d", len(window))
	}
	// Content must be the last 3 appends, in order.
	for i, want := range []string{"msg-7", "msg-8", "msg-9"} {
		if window[i].Text != want {
			t.Errorf("window[%d] = %q, want %q", i, window[i].Text, want)
		}
	}
}

func TestGetOrLoadHydratesFromStore(t *testing.T) {
	store := newMockTranscript()
	for i := 0; i < 5; i++ {
		store.rows["c1"] = append(store.rows["c1"], domain.NewUserTurn("alice", fmt.Sprintf("old-%d", i)))
	}

	uc := NewHistoryUsecase(store, 3)

	window, err := uc.GetOrLoad(context.Background(), "c1")
	if err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	if len(window) != 3 {
		t.Fatalf("Expected 3 hydrated turns, got %d", len(window))
	}
	if window[0].Text != "old-2" || window[2].Text != "old-4" {
		t.Errorf("Expected suffix of transcript, got %q..%q", window[0].Text, window[2].Text)
	}

	// Second call must not hit the store again.
	if _, err := uc.GetOrLoad(context.Background(), "c1"); err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	if store.loadCalls != 1 {
		t.Errorf("Expected 1 store load, got %d", store.loadCalls)
	}
}

func TestGetOrLoadDegradesOnStoreFailure(t *testing.T) {
	store := newMockTranscript()
	store.loadErr = errors.New("disk on fire")

	uc := NewHistoryUsecase(store, 3)

	window, err := uc.GetOrLoad(context.Background(), "c1")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Expected ErrStoreUnavailable, got %v", err)
	}
	if window == nil {
		t.Fatal("Degraded load must still return the installed window's snapshot")
	}
	if len(window) != 0 {
		t.Fatalf("Expected empty window, got %d turns", len(window))
	}

	// The empty window is installed; appends work and no reload happens.
	uc.Append("c1", domain.NewUserTurn("alice", "hello"))
	window, err = uc.GetOrLoad(context.Background(), "c1")
	if err != nil {
		t.Fatalf("GetOrLoad after degrade: %v", err)
	}
	if len(window) != 1 || window[0].Text != "hello" {
		t.Fatalf("Expected single appended turn, got %+v", window)
	}
	if store.loadCalls != 1 {
		t.Errorf("Expected no reload after degrade, got %d loads", store.loadCalls)
	}
}

func TestWindowsAreIndependent(t *testing.T) {
	uc := NewHistoryUsecase(newMockTranscript(), 2)

	uc.Append("c1", domain.NewUserTurn("alice", "a"))
	uc.Append("c2", domain.NewUserTurn("bob", "b"))

	if uc.Len("c1") != 1 || uc.Len("c2") != 1 {
		t.Errorf("Expected independent windows, got c1=%d c2=%d", uc.Len("c1"), uc.Len("c2"))
	}
}

func TestConcurrentAppendsStayBounded(t *testing.T) {
	uc := NewHistoryUsecase(newMockTranscript(), 10)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				uc.Append("c1", domain.NewUserTurn("u", fmt.Sprintf("%d-%d", n, j)))
			}
		}(i)
	}
	wg.Wait()

	if got := uc.Len("c1"); got != 10 {
		t.Errorf("Expected window capped at 10, got %d", got)
	}
}
