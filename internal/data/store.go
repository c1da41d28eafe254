package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tealbridge/feishu-assistant/internal/biz/domain"

	_ "modernc.org/sqlite"
)

// Store is the durable conversation store: an append-only transcript log and
// the moderation word-list table, both in one SQLite database. It implements
// repo.TranscriptRepo and repo.FilterRepo and is safe for concurrent use
// across conversations.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			author TEXT NOT NULL,
			content TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create messages index: %w", err)
	}

	// scope_id is NOT NULL: the global scope is the empty string, because
	// SQLite treats NULLs as distinct in unique constraints.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS filters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scope_id TEXT NOT NULL,
			term TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(scope_id, term)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create filters table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ========== Transcript Operations ==========

// AppendTurn appends one turn to a conversation's transcript.
func (s *Store) AppendTurn(ctx context.Context, conversationID string, turn domain.Turn) error {
	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, author, content, role, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, conversationID, turn.Author, turn.Text, string(turn.Role), createdAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// RecentTurns returns the last limit turns of a conversation, oldest first.
func (s *Store) RecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT author, content, role, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var role string
		var createdAt int64
		if err := rows.Scan(&t.Author, &t.Text, &role, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Role = domain.Role(role)
		t.CreatedAt = time.Unix(createdAt, 0)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}

	// The query walks newest-first; flip to transcript order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// ========== Filter Operations ==========

// InsertFilter adds a moderation term; duplicates are a no-op.
func (s *Store) InsertFilter(ctx context.Context, scopeID, term string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO filters (scope_id, term, created_at)
		VALUES (?, ?, ?)
	`, scopeID, term, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("failed to insert filter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n > 0, nil
}

// DeleteFilter removes a moderation term, reporting whether a row existed.
func (s *Store) DeleteFilter(ctx context.Context, scopeID, term string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM filters WHERE scope_id = ? AND term = ?
	`, scopeID, term)
	if err != nil {
		return false, fmt.Errorf("failed to delete filter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return n > 0, nil
}

// ListFilters returns the terms registered for one scope.
func (s *Store) ListFilters(ctx context.Context, scopeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT term FROM filters WHERE scope_id = ? ORDER BY term
	`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query filters: %w", err)
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan filter: %w", err)
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read filters: %w", err)
	}
	return terms, nil
}

// ListAllFilters returns every registered term grouped by scope.
func (s *Store) ListAllFilters(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scope_id, term FROM filters ORDER BY scope_id, term
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query filters: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var scope, term string
		if err := rows.Scan(&scope, &term); err != nil {
			return nil, fmt.Errorf("failed to scan filter: %w", err)
		}
		out[scope] = append(out[scope], term)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read filters: %w", err)
	}
	return out, nil
}
