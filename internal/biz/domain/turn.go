package domain

import "time"

// Role identifies who produced a turn. It is a closed set: transcripts only
// ever contain user turns, assistant turns, and assistant annotations
// (system-generated notes attributed to the assistant side).
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleAnnotation Role = "assistant_annotation"
)

// PromptLabel returns the fixed label used when rendering a turn into a prompt.
func (r Role) PromptLabel() string {
	switch r {
	case RoleAssistant:
		return "Assistant"
	case RoleAnnotation:
		return "Assistant (note)"
	default:
		return "User"
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleAnnotation:
		return true
	}
	return false
}

// Turn is a single immutable transcript entry. Turns are ordered by creation
// time within a conversation and are never mutated or deleted once created.
type Turn struct {
	Role      Role
	Author    string
	Text      string
	CreatedAt time.Time
}

// NewUserTurn builds a user turn stamped with the current time.
func NewUserTurn(author, text string) Turn {
	return Turn{Role: RoleUser, Author: author, Text: text, CreatedAt: time.Now()}
}

// NewAssistantTurn builds an assistant turn stamped with the current time.
func NewAssistantTurn(author, text string) Turn {
	return Turn{Role: RoleAssistant, Author: author, Text: text, CreatedAt: time.Now()}
}
