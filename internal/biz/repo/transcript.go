package repo

import (
	"context"

	"github.com/tealbridge/feishu-assistant/internal/biz/domain"
)

// TranscriptRepo is the durable, append-only transcript log.
// Turns are never updated or deleted through this interface.
type TranscriptRepo interface {
	// AppendTurn persists one turn at the end of a conversation's transcript.
	AppendTurn(ctx context.Context, conversationID string, turn domain.Turn) error

	// RecentTurns returns up to limit most recent turns for a conversation,
	// ordered oldest to newest.
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error)
}
