package db

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/verity-labs/research-orchestrator/internal/citations"
)

// TurnRecord is one completed research turn.
type TurnRecord struct {
	ID            string         `db:"id" json:"id"`
	SessionID     string         `db:"session_id" json:"session_id"`
	UserID        string         `db:"user_id" json:"user_id"`
	Query         string         `db:"query" json:"query"`
	Answer        string         `db:"answer" json:"answer"`
	Sources       pq.StringArray `db:"sources" json:"sources"`
	CitationCount int            `db:"citation_count" json:"citation_count"`
	TurnType      string         `db:"turn_type" json:"turn_type"`
	Status        string         `db:"status" json:"status"`
	DurationMS    int64          `db:"duration_ms" json:"duration_ms"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

const insertTurnQuery = `
	INSERT INTO research_turns (
		id, session_id, user_id, query, answer, sources,
		citation_count, turn_type, status, duration_ms, created_at
	) VALUES (
		:id, :session_id, :user_id, :query, :answer, :sources,
		:citation_count, :turn_type, :status, :duration_ms, :created_at
	)`

const insertCitationQuery = `
	INSERT INTO turn_citations (
		turn_id, source_type, title, url, snippet, canonical_key
	) VALUES ($1, $2, $3, $4, $5, $6)`

// SaveTurn writes the turn row and its citations in one transaction.
func (c *Client) SaveTurn(ctx context.Context, turn TurnRecord, cits []citations.Citation) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	turn.CitationCount = len(cits)

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin turn transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, insertTurnQuery, turn); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	for _, cit := range cits {
		if _, err := tx.ExecContext(ctx, insertCitationQuery,
			turn.ID, cit.SourceType, cit.Title, cit.URL, cit.Snippet,
			citations.CanonicalKey(cit),
		); err != nil {
			return fmt.Errorf("insert citation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}
	return nil
}

// RecentTurns returns the latest turns for a session, newest first.
func (c *Client) RecentTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var turns []TurnRecord
	err := c.db.SelectContext(ctx, &turns,
		`SELECT id, session_id, user_id, query, answer, sources,
		        citation_count, turn_type, status, duration_ms, created_at
		   FROM research_turns
		  WHERE session_id = $1
		  ORDER BY created_at DESC
		  LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("select turns: %w", err)
	}
	return turns, nil
}
