package domain

import "strings"

// GlobalScope is the moderation scope applied to direct (p2p) chats.
// Group chats use their own chat id as the scope. The empty string is stored
// as-is in the filters table rather than SQL NULL so the (scope_id, term)
// uniqueness constraint holds for global terms too.
const GlobalScope = ""

// NormalizeTerm canonicalizes a moderation term before storage or comparison.
// Terms are matched case-insensitively, so they are case-folded once here
// instead of at every comparison site.
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
