package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tealbridge/feishu-assistant/internal/biz/domain"
	"github.com/tealbridge/feishu-assistant/internal/biz/repo"
)

// ErrStoreUnavailable marks a durable-store failure that was degraded rather
// than propagated: the in-memory window stays authoritative for the turn.
var ErrStoreUnavailable = errors.New("durable store unavailable")

// DefaultWindowSize is the per-conversation history cap.
const DefaultWindowSize = 50

// HistoryUsecase keeps a bounded in-memory window of recent turns per
// conversation, lazily hydrated from the transcript store. Windows for
// distinct conversations are fully independent; operations on one window
// never block another.
type HistoryUsecase struct {
	store repo.TranscriptRepo
	limit int

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	mu    sync.Mutex
	turns []domain.Turn
	// hydrated is set once the window content is authoritative, either from
	// a store load (successful or degraded-to-empty) or a first append.
	hydrated bool
}

// NewHistoryUsecase creates a history cache over the given transcript store.
// limit <= 0 selects DefaultWindowSize.
func NewHistoryUsecase(store repo.TranscriptRepo, limit int) *HistoryUsecase {
	if limit <= 0 {
		limit = DefaultWindowSize
	}
	return &HistoryUsecase{
		store:   store,
		limit:   limit,
		windows: make(map[string]*window),
	}
}

func (uc *HistoryUsecase) window(conversationID string) *window {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	w, ok := uc.windows[conversationID]
	if !ok {
		w = &window{}
		uc.windows[conversationID] = w
	}
	return w
}

// GetOrLoad returns a snapshot of the conversation's window, loading the most
// recent turns from the store on first reference. If the store is unreachable
// an empty window is installed and its (empty, non-nil) snapshot is returned
// together with a wrapped ErrStoreUnavailable; the caller logs it and the
// turn proceeds.
func (uc *HistoryUsecase) GetOrLoad(ctx context.Context, conversationID string) ([]domain.Turn, error) {
	w := uc.window(conversationID)
	w.mu.Lock()
	defer w.mu.Unlock()

	var loadErr error
	if !w.hydrated {
		turns, err := uc.store.RecentTurns(ctx, conversationID, uc.limit)
		if err != nil {
			loadErr = fmt.Errorf("%w: load history for %s: %v", ErrStoreUnavailable, conversationID, err)
		} else {
			w.turns = turns
		}
		w.hydrated = true
	}

	snapshot := make([]domain.Turn, len(w.turns))
	copy(snapshot, w.turns)
	return snapshot, loadErr
}

// Append adds a turn to the end of the window, evicting from the front once
// the window exceeds its cap. It never touches the durable store; persistence
// is a separate, explicit call made by the orchestrator.
func (uc *HistoryUsecase) Append(conversationID string, turn domain.Turn) {
	w := uc.window(conversationID)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.hydrated = true
	w.turns = append(w.turns, turn)
	if excess := len(w.turns) - uc.limit; excess > 0 {
		w.turns = append([]domain.Turn(nil), w.turns[excess:]...)
	}
}

// Len reports the current window length for a conversation.
func (uc *HistoryUsecase) Len(conversationID string) int {
	uc.mu.Lock()
	w, ok := uc.windows[conversationID]
	uc.mu.Unlock()
	if !ok {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.turns)
}
