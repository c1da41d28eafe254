package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tealbridge/feishu-assistant/internal/biz/domain"
	"github.com/tealbridge/feishu-assistant/internal/biz/usecase"
	"github.com/tealbridge/feishu-assistant/internal/infra/feishu"
	"github.com/tealbridge/feishu-assistant/internal/observability"
)

// seenTTL is how long processed message IDs are remembered. Feishu redelivers
// events that are not acknowledged quickly, so the window only needs to cover
// the retry horizon.
const seenTTL = 5 * time.Minute

// FeishuServer connects the Feishu gateway to the response orchestrator.
type FeishuServer struct {
	feishuClient *feishu.Client
	responder    *usecase.ResponderUsecase
	filters      *usecase.FilterUsecase
	metrics      *observability.Metrics
	ownerID      string

	// Message deduplication cache
	seenMsgsMu sync.RWMutex
	seenMsgs   map[string]time.Time // msgID -> timestamp

	// Per-chat processing gate: one in-flight turn per conversation.
	busyMu sync.Mutex
	busy   map[string]bool
}

// NewFeishuServer creates a new Feishu server.
func NewFeishuServer(
	feishuClient *feishu.Client,
	responder *usecase.ResponderUsecase,
	filters *usecase.FilterUsecase,
	metrics *observability.Metrics,
	ownerID string,
) *FeishuServer {
	return &FeishuServer{
		feishuClient: feishuClient,
		responder:    responder,
		filters:      filters,
		metrics:      metrics,
		ownerID:      ownerID,
		seenMsgs:     make(map[string]time.Time),
		busy:         make(map[string]bool),
	}
}

// Start starts the server. Blocks until the Feishu connection ends.
func (s *FeishuServer) Start() error {
	s.feishuClient.OnMessage(s.handleMessage)
	return s.feishuClient.Start()
}

// Stop stops the server.
func (s *FeishuServer) Stop() {
	s.feishuClient.Stop()
}

// handleMessage handles one Feishu message end to end.
func (s *FeishuServer) handleMessage(msg *feishu.Message) {
	fmt.Printf("[Server] Received %s from %s (chatType=%s): %s\n",
		msg.MsgType, msg.ChatID, msg.ChatType, truncate(msg.Content, 50))

	if s.isMessageSeen(msg.MsgID) {
		fmt.Printf("[Server] Duplicate message ignored: %s\n", msg.MsgID)
		return
	}
	s.markMessageSeen(msg.MsgID)

	// Group chats answer only when the bot is addressed; private chats
	// always answer.
	if msg.ChatType == "group" && !msg.MentionsBot {
		return
	}

	scopeID := scopeFor(msg)

	if reply, handled := s.handleAdminCommand(msg, scopeID); handled {
		if reply != "" {
			s.sendReply(msg.ChatID, reply)
		}
		return
	}

	if !s.acquireChat(msg.ChatID) {
		s.sendReply(msg.ChatID, "Still working on the previous message, please wait...")
		return
	}
	defer s.releaseChat(msg.ChatID)

	start := time.Now()
	result, err := s.processMessage(msg, scopeID)
	if err != nil {
		fmt.Printf("[Server] Turn failed for %s: %v\n", msg.ChatID, err)
		s.metrics.GenerationErrors.Inc()
		s.metrics.ObserveTurn("failed", time.Since(start))
		if errors.Is(err, usecase.ErrGenerationFailed) {
			s.sendReply(msg.ChatID, usecase.ApologyText)
		}
		return
	}
	if result == nil {
		return
	}

	if result.Augmented {
		s.metrics.SearchCalls.Inc()
	}
	s.metrics.ObserveTurn(string(result.Outcome), time.Since(start))
	s.sendReply(msg.ChatID, result.Text)
}

// processMessage routes a message to the text or vision path.
func (s *FeishuServer) processMessage(msg *feishu.Message, scopeID string) (*usecase.TurnResult, error) {
	ctx := context.Background()

	if len(msg.ImageKeys) > 0 {
		data, err := s.feishuClient.DownloadImage(msg.MsgID, msg.ImageKeys[0])
		if err != nil {
			fmt.Printf("[Server] Failed to download image %s: %v\n", msg.ImageKeys[0], err)
			return nil, fmt.Errorf("%w: image download: %v", usecase.ErrGenerationFailed, err)
		}
		return s.responder.HandleImage(ctx, &usecase.ImageRequest{
			ConversationID: msg.ChatID,
			ScopeID:        scopeID,
			Author:         msg.SenderID,
			Caption:        msg.Content,
			ImageBase64:    base64.StdEncoding.EncodeToString(data),
		})
	}

	if strings.TrimSpace(msg.Content) == "" {
		return nil, nil
	}

	return s.responder.HandleTurn(ctx, &usecase.TurnRequest{
		ConversationID: msg.ChatID,
		ScopeID:        scopeID,
		Author:         msg.SenderID,
		Text:           msg.Content,
	})
}

// handleAdminCommand intercepts /filter slash commands. Returns the reply text
// and whether the message was consumed as a command.
func (s *FeishuServer) handleAdminCommand(msg *feishu.Message, scopeID string) (string, bool) {
	content := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(content, "/filter") {
		return "", false
	}

	if s.ownerID == "" || msg.SenderID != s.ownerID {
		return "Moderation commands are restricted to the bot owner.", true
	}

	fields := strings.Fields(content)
	if len(fields) < 2 {
		return "Usage: /filter add <term> | /filter remove <term> | /filter list", true
	}

	ctx := context.Background()
	switch fields[1] {
	case "add":
		if len(fields) < 3 {
			return "Usage: /filter add <term>", true
		}
		term := strings.Join(fields[2:], " ")
		result, err := s.filters.Add(ctx, scopeID, term)
		if err != nil {
			fmt.Printf("[Server] Filter add failed: %v\n", err)
			s.metrics.StoreErrors.Inc()
			return "Failed to save the filter, please try again.", true
		}
		if result == usecase.FilterAlreadyPresent {
			return fmt.Sprintf("Filter %q is already active here.", term), true
		}
		return fmt.Sprintf("Filter %q added.", term), true

	case "remove":
		if len(fields) < 3 {
			return "Usage: /filter remove <term>", true
		}
		term := strings.Join(fields[2:], " ")
		result, err := s.filters.Remove(ctx, scopeID, term)
		if err != nil {
			fmt.Printf("[Server] Filter remove failed: %v\n", err)
			s.metrics.StoreErrors.Inc()
			return "Failed to remove the filter, please try again.", true
		}
		if result == usecase.FilterNotFound {
			return fmt.Sprintf("No filter %q here.", term), true
		}
		return fmt.Sprintf("Filter %q removed.", term), true

	case "list":
		terms, err := s.filters.List(ctx, scopeID)
		if err != nil {
			fmt.Printf("[Server] Filter list failed: %v\n", err)
			s.metrics.StoreErrors.Inc()
			return "Failed to load filters, please try again.", true
		}
		if len(terms) == 0 {
			return "No filters active here.", true
		}
		return "Active filters:\n- " + strings.Join(terms, "\n- "), true

	default:
		return "Usage: /filter add <term> | /filter remove <term> | /filter list", true
	}
}

// scopeFor maps a chat to its moderation scope: group chats each have their
// own scope, private chats share the global one.
func scopeFor(msg *feishu.Message) string {
	if msg.ChatType == "group" {
		return msg.ChatID
	}
	return domain.GlobalScope
}

// sendReply sends a reply.
func (s *FeishuServer) sendReply(chatID, text string) {
	if err := s.feishuClient.SendText(chatID, text); err != nil {
		fmt.Printf("[Server] Failed to send reply: %v\n", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// acquireChat claims the per-chat processing gate. Returns false if a turn is
// already in flight for the chat.
func (s *FeishuServer) acquireChat(chatID string) bool {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	if s.busy[chatID] {
		return false
	}
	s.busy[chatID] = true
	return true
}

func (s *FeishuServer) releaseChat(chatID string) {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	delete(s.busy, chatID)
}

// isMessageSeen checks if a message has been processed.
func (s *FeishuServer) isMessageSeen(msgID string) bool {
	s.seenMsgsMu.RLock()
	defer s.seenMsgsMu.RUnlock()
	_, exists := s.seenMsgs[msgID]
	return exists
}

// markMessageSeen marks a message as processed and prunes expired records.
func (s *FeishuServer) markMessageSeen(msgID string) {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()
	s.seenMsgs[msgID] = time.Now()

	cutoff := time.Now().Add(-seenTTL)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}
}
