package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tealbridge/feishu-assistant/internal/biz/domain"
	"github.com/tealbridge/feishu-assistant/internal/biz/repo"
)

// ErrGenerationFailed marks a generation-endpoint failure. It aborts only the
// current turn: the caller replies with ApologyText and moves on.
var ErrGenerationFailed = errors.New("generation failed")

// ApologyText is sent when generation fails or produces an empty response.
const ApologyText = "Sorry, I ran into a problem while thinking about that. Please try again in a moment."

// WithheldText is sent instead of a response that matched moderation filters.
const WithheldText = "(response withheld: it matched this chat's moderation filters)"

// Outcome is a terminal state of one turn's processing.
type Outcome string

const (
	OutcomeDelivered  Outcome = "delivered"
	OutcomeSuppressed Outcome = "suppressed"
)

var (
	// searchDirectiveRe matches the retrieval directive the model may emit.
	// Only the bracketed query is extracted; surrounding text is ignored.
	searchDirectiveRe = regexp.MustCompile(`(?i)\[SEARCH:\s*([^\]\n]+)\]`)

	// thoughtRe matches internal-reasoning blocks to strip before a response
	// is considered user-visible.
	thoughtRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

// persistTimeout bounds background transcript writes.
const persistTimeout = 10 * time.Second

// TurnRequest is one incoming user turn, already parsed by the gateway.
type TurnRequest struct {
	ConversationID string
	ScopeID        string
	Author         string
	Text           string
}

// ImageRequest is one incoming image turn for the vision path.
type ImageRequest struct {
	ConversationID string
	ScopeID        string
	Author         string
	Caption        string
	ImageBase64    string
}

// TurnResult is the terminal outcome of a turn. Text is what the gateway
// sends back to the chat. Augmented reports whether a retrieval call was
// issued for this turn, so the gateway can count search usage.
type TurnResult struct {
	TurnID    string
	Outcome   Outcome
	Text      string
	Augmented bool
}

// ResponderUsecase drives one incoming turn to a final, moderated response:
// ingest, generate, at most one search-augmentation round, moderate, deliver.
type ResponderUsecase struct {
	history    *HistoryUsecase
	filters    *FilterUsecase
	prompts    *PromptBuilder
	transcript repo.TranscriptRepo
	llm        repo.GenerateRepo
	search     repo.SearchRepo
}

// NewResponderUsecase creates the response orchestrator.
func NewResponderUsecase(
	history *HistoryUsecase,
	filters *FilterUsecase,
	prompts *PromptBuilder,
	transcript repo.TranscriptRepo,
	llm repo.GenerateRepo,
	search repo.SearchRepo,
) *ResponderUsecase {
	return &ResponderUsecase{
		history:    history,
		filters:    filters,
		prompts:    prompts,
		transcript: transcript,
		llm:        llm,
		search:     search,
	}
}

// StripThoughts removes every <think>...</think> block from generated text
// and trims the remainder.
func StripThoughts(s string) string {
	return strings.TrimSpace(thoughtRe.ReplaceAllString(s, ""))
}

// ExtractSearchQuery returns the query of the first retrieval directive in
// text, or "" if none is present.
func ExtractSearchQuery(text string) string {
	m := searchDirectiveRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// HandleTurn processes one user turn. On a generation failure it returns a
// wrapped ErrGenerationFailed and the caller replies with ApologyText; by
// then the user's turn has already been ingested, and nothing else is.
func (uc *ResponderUsecase) HandleTurn(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	turnID := uuid.NewString()

	// Snapshot the window before ingesting: the prompt builder renders the
	// current turn itself, so the window must not contain it yet.
	window, err := uc.history.GetOrLoad(ctx, req.ConversationID)
	if err != nil {
		fmt.Printf("[Responder] History degraded to empty for %s: %v\n", req.ConversationID, err)
	}

	userTurn := domain.NewUserTurn(req.Author, req.Text)
	uc.history.Append(req.ConversationID, userTurn)
	uc.persistAsync(req.ConversationID, userTurn)

	prompt := uc.prompts.Build(window, req.Text)
	raw, err := uc.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	candidate := StripThoughts(raw)
	if candidate == "" {
		candidate = ApologyText
	}

	// One augmentation round at most. A directive in the second response is
	// never entitled to a third generation call.
	augmented := false
	if query := ExtractSearchQuery(candidate); query != "" {
		augmented = true
		var block string
		results, err := uc.search.Search(ctx, query)
		if err != nil {
			fmt.Printf("[Responder] Search failed for %q, continuing degraded: %v\n", query, err)
			block = FormatSearchError(query, err)
		} else {
			block = FormatSearchResults(query, results)
		}

		second := uc.prompts.BuildWithSearch(window, req.Text, candidate, block)
		raw, err = uc.llm.Generate(ctx, second)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		}
		candidate = StripThoughts(raw)
		if candidate == "" {
			candidate = ApologyText
		}
	}

	result := uc.finish(req.ConversationID, req.ScopeID, turnID, candidate)
	result.Augmented = augmented
	return result, nil
}

// HandleImage processes one image turn through the vision endpoint. The
// result flows through the same strip, moderation, and persistence path as
// text turns.
func (uc *ResponderUsecase) HandleImage(ctx context.Context, req *ImageRequest) (*TurnResult, error) {
	turnID := uuid.NewString()

	if _, err := uc.history.GetOrLoad(ctx, req.ConversationID); err != nil {
		fmt.Printf("[Responder] History degraded to empty for %s: %v\n", req.ConversationID, err)
	}

	text := req.Caption
	if strings.TrimSpace(text) == "" {
		text = "[image]"
	} else {
		text = "[image] " + text
	}
	userTurn := domain.NewUserTurn(req.Author, text)
	uc.history.Append(req.ConversationID, userTurn)
	uc.persistAsync(req.ConversationID, userTurn)

	raw, err := uc.llm.Describe(ctx, uc.prompts.BuildVision(req.Caption), req.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	candidate := StripThoughts(raw)
	if candidate == "" {
		candidate = ApologyText
	}

	return uc.finish(req.ConversationID, req.ScopeID, turnID, candidate), nil
}

// finish applies moderation and, if the candidate survives, appends and
// persists the assistant turn. A suppressed turn leaves no assistant trace
// in history or storage.
func (uc *ResponderUsecase) finish(conversationID, scopeID, turnID, candidate string) *TurnResult {
	if uc.filters.ContainsFilteredTerm(candidate, scopeID) {
		fmt.Printf("[Responder] Response suppressed in scope %q\n", scopeID)
		return &TurnResult{TurnID: turnID, Outcome: OutcomeSuppressed, Text: WithheldText}
	}

	assistantTurn := domain.NewAssistantTurn("assistant", candidate)
	uc.history.Append(conversationID, assistantTurn)
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := uc.transcript.AppendTurn(ctx, conversationID, assistantTurn); err != nil {
		fmt.Printf("[Responder] Failed to persist assistant turn for %s: %v\n", conversationID, err)
	}

	return &TurnResult{TurnID: turnID, Outcome: OutcomeDelivered, Text: candidate}
}

// persistAsync writes a turn to the durable store off the turn's critical
// path. Failures are logged, never fatal: the in-memory window stays the
// source of truth for the rest of the turn.
func (uc *ResponderUsecase) persistAsync(conversationID string, turn domain.Turn) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := uc.transcript.AppendTurn(ctx, conversationID, turn); err != nil {
			fmt.Printf("[Responder] Failed to persist %s turn for %s: %v\n", turn.Role, conversationID, err)
		}
	}()
}
