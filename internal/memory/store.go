// Package memory persists NPC conversation history. One session exists per
// NPC/player pair; turns are ordered oldest-first.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tidegate/worldsync/internal/idgen"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Turn struct {
	ID        string    `json:"id"`
	NPCID     string    `json:"npc_id"`
	PlayerID  string    `json:"player_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func sessionID(npcID, playerID string) string {
	return npcID + "_" + playerID
}

// History returns up to limit turns for the NPC/player session, oldest first.
func (s *Store) History(ctx context.Context, npcID, playerID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, npc_id, player_id, role, content, created_at
		FROM conversation_turns
		WHERE session_id = ?
		ORDER BY created_at ASC
		LIMIT ?
	`, sessionID(npcID, playerID), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var turn Turn
		var createdAtStr string
		if err := rows.Scan(&turn.ID, &turn.NPCID, &turn.PlayerID, &turn.Role, &turn.Content, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return out, nil
}

func (s *Store) AppendTurn(ctx context.Context, npcID, playerID, role, content string) error {
	if content == "" {
		return nil
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (id, session_id, npc_id, player_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, idgen.New(), sessionID(npcID, playerID), npcID, playerID, role, content, now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// Clear drops the session history for one NPC/player pair.
func (s *Store) Clear(ctx context.Context, npcID, playerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_turns WHERE session_id = ?`, sessionID(npcID, playerID))
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
