package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bowerhall/roomchat/internal/chat"
)

// Store keeps full chat transcripts, one row per message, keyed by the local
// session key and message id. Saving a message again updates it in place, so
// a reply can be recorded when it finishes and again when its interrupt is
// resolved.
type Store struct {
	db *sql.DB
}

// Thread summarizes one recorded conversation.
type Thread struct {
	SessionKey string
	ThreadID   string
	Messages   int
	LastAt     time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS transcript_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_key TEXT NOT NULL,
    message_id TEXT NOT NULL,
    thread_id TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    image TEXT NOT NULL DEFAULT '',
    payload TEXT NOT NULL DEFAULT '{}',
    interrupt_resolved INTEGER NOT NULL DEFAULT 0,
    synthetic INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    UNIQUE(session_key, message_id)
);

CREATE INDEX IF NOT EXISTS idx_transcript_thread ON transcript_messages(thread_id);
`

// payload holds the structured parts of a message as one JSON column.
type payload struct {
	ToolCalls    []chat.ToolCall       `json:"tool_calls,omitempty"`
	Products     []chat.ProductListing `json:"products,omitempty"`
	ColorPalette []string              `json:"color_palette,omitempty"`
	Interrupt    *chat.InterruptData   `json:"interrupt,omitempty"`
}

// NewStore creates a transcript store using the provided database connection
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// databases created before images were recorded lack the column
	var hasImage bool
	err := s.db.QueryRow(`
		SELECT COUNT(*) > 0 FROM pragma_table_info('transcript_messages')
		WHERE name = 'image'
	`).Scan(&hasImage)
	if err != nil {
		return err
	}
	if !hasImage {
		_, err = s.db.Exec(`ALTER TABLE transcript_messages ADD COLUMN image TEXT NOT NULL DEFAULT ''`)
	}
	return err
}

// Save inserts or updates a message.
func (s *Store) Save(ctx context.Context, sessionKey, threadID string, m chat.Message) error {
	data, err := json.Marshal(payload{
		ToolCalls:    m.ToolCalls,
		Products:     m.Products,
		ColorPalette: m.ColorPalette,
		Interrupt:    m.Interrupt,
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transcript_messages
			(session_key, message_id, thread_id, role, content, image, payload, interrupt_resolved, synthetic, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_key, message_id) DO UPDATE SET
			thread_id = excluded.thread_id,
			content = excluded.content,
			payload = excluded.payload,
			interrupt_resolved = excluded.interrupt_resolved,
			synthetic = excluded.synthetic`,
		sessionKey, m.ID, threadID, string(m.Role), m.Content, m.Image, string(data),
		boolInt(m.InterruptResolved), boolInt(m.Synthetic), m.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Load returns a session's messages in the order they were first saved.
func (s *Store) Load(ctx context.Context, sessionKey string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, role, content, image, payload, interrupt_resolved, synthetic, created_at
		FROM transcript_messages
		WHERE session_key = ?
		ORDER BY id ASC`, sessionKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var (
			m         chat.Message
			role      string
			raw       string
			createdAt string
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.Image, &raw, &m.InterruptResolved, &m.Synthetic, &createdAt); err != nil {
			return nil, err
		}

		var p payload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", m.ID, err)
		}
		m.Role = chat.Role(role)
		m.ToolCalls = p.ToolCalls
		m.Products = p.Products
		m.ColorPalette = p.ColorPalette
		m.Interrupt = p.Interrupt
		m.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)

		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// LastThread returns the most recent non-empty thread id of a session.
func (s *Store) LastThread(ctx context.Context, sessionKey string) (string, error) {
	var threadID string
	err := s.db.QueryRowContext(ctx, `
		SELECT thread_id FROM transcript_messages
		WHERE session_key = ? AND thread_id != ''
		ORDER BY id DESC LIMIT 1`, sessionKey).Scan(&threadID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return threadID, err
}

// Threads lists recorded sessions, most recently active first.
func (s *Store) Threads(ctx context.Context) ([]Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_key, MAX(thread_id), COUNT(*), MAX(created_at)
		FROM transcript_messages
		GROUP BY session_key
		ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		var t Thread
		var lastAt string
		if err := rows.Scan(&t.SessionKey, &t.ThreadID, &t.Messages, &lastAt); err != nil {
			return nil, err
		}
		t.LastAt, _ = time.Parse(time.RFC3339Nano, lastAt)
		threads = append(threads, t)
	}

	return threads, rows.Err()
}

func (s *Store) Clear(ctx context.Context, sessionKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcript_messages WHERE session_key = ?`, sessionKey)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
