package usecase

import (
	"fmt"
	"strings"

	"github.com/tealbridge/feishu-assistant/internal/biz/domain"
	"github.com/tealbridge/feishu-assistant/internal/biz/repo"
)

// PromptConfig contains the prompt templates. Values come from
// configs/prompts.yaml via internal/conf, with these defaults compiled in.
type PromptConfig struct {
	// SystemPrompt opens every prompt sent to the generation endpoint.
	SystemPrompt string

	// VisionPrompt opens the prompt sent with an image to the vision endpoint.
	VisionPrompt string

	// SearchGuidance is appended after a search-results block on the second
	// generation round, telling the model how to use the results.
	SearchGuidance string
}

// DefaultPromptConfig is used when no prompts.yaml overrides are present.
var DefaultPromptConfig = PromptConfig{
	SystemPrompt: `You are a helpful chat assistant. Reply to the conversation below, continuing from the final "Assistant:" line.

If, and only if, answering requires current information from the web (news, weather, prices, recent events), reply with exactly [SEARCH: your query] and nothing else. You will then receive search results and be asked again.

Keep replies concise. Do not prefix your reply with a label or meta commentary.`,
	VisionPrompt: `You are a helpful chat assistant. Describe or answer questions about the attached image. Keep the reply concise.`,
	SearchGuidance: `Using the search results above, answer the user's last message directly. Do not emit another [SEARCH: ...] directive; answer with what is available.`,
}

// PromptBuilder renders conversation windows into single-string prompts.
// It never drops turns itself: window sizing is the history cache's job.
type PromptBuilder struct {
	cfg PromptConfig
}

// NewPromptBuilder creates a prompt builder with the given templates.
func NewPromptBuilder(cfg PromptConfig) *PromptBuilder {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultPromptConfig.SystemPrompt
	}
	if cfg.VisionPrompt == "" {
		cfg.VisionPrompt = DefaultPromptConfig.VisionPrompt
	}
	if cfg.SearchGuidance == "" {
		cfg.SearchGuidance = DefaultPromptConfig.SearchGuidance
	}
	return &PromptBuilder{cfg: cfg}
}

// Build renders the system prompt, each window turn as "<label>: <text>",
// the current turn under the user label, and a trailing assistant cue for
// the generator to continue from.
func (b *PromptBuilder) Build(window []domain.Turn, currentText string) string {
	var sb strings.Builder
	sb.WriteString(b.cfg.SystemPrompt)
	sb.WriteString("\n\n")
	b.writeTurns(&sb, window)
	fmt.Fprintf(&sb, "%s: %s\n", domain.RoleUser.PromptLabel(), currentText)
	sb.WriteString(domain.RoleAssistant.PromptLabel())
	sb.WriteString(":")
	return sb.String()
}

// BuildWithSearch renders the second-round prompt of an augmentation cycle:
// the original window and current turn, the first-round answer, a delimited
// search-results block, and a fresh assistant cue.
func (b *PromptBuilder) BuildWithSearch(window []domain.Turn, currentText, firstAnswer, resultsBlock string) string {
	var sb strings.Builder
	sb.WriteString(b.cfg.SystemPrompt)
	sb.WriteString("\n\n")
	b.writeTurns(&sb, window)
	fmt.Fprintf(&sb, "%s: %s\n", domain.RoleUser.PromptLabel(), currentText)
	fmt.Fprintf(&sb, "%s: %s\n\n", domain.RoleAssistant.PromptLabel(), firstAnswer)
	sb.WriteString(resultsBlock)
	sb.WriteString("\n\n")
	sb.WriteString(b.cfg.SearchGuidance)
	sb.WriteString("\n\n")
	sb.WriteString(domain.RoleAssistant.PromptLabel())
	sb.WriteString(":")
	return sb.String()
}

// BuildVision renders the prompt accompanying an image upload.
func (b *PromptBuilder) BuildVision(caption string) string {
	if strings.TrimSpace(caption) == "" {
		return b.cfg.VisionPrompt
	}
	return b.cfg.VisionPrompt + "\n\n" + domain.RoleUser.PromptLabel() + ": " + caption
}

func (b *PromptBuilder) writeTurns(sb *strings.Builder, window []domain.Turn) {
	for _, t := range window {
		fmt.Fprintf(sb, "%s: %s\n", t.Role.PromptLabel(), t.Text)
	}
}

// FormatSearchResults renders retrieval results as the delimited block fed
// back to the generator. Zero results is valid and rendered as such.
func FormatSearchResults(query string, results []repo.SearchResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Search results for %q]\n", query)
	if len(results) == 0 {
		sb.WriteString("No results found.\n")
	}
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	sb.WriteString("[End of search results]")
	return sb.String()
}

// FormatSearchError renders a failed retrieval call as an in-band error
// marker inside the results block; the turn continues with it.
func FormatSearchError(query string, err error) string {
	return fmt.Sprintf("[Search results for %q]\n[Search error: %v]\n[End of search results]", query, err)
}
