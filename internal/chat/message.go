package chat

import (
	"time"

	"github.com/google/uuid"
)

// NewMessage creates a message with a fresh id and UTC timestamp.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorMessage creates the synthetic assistant message shown when a turn fails.
func NewErrorMessage() Message {
	m := NewMessage(RoleAssistant, ErrorText)
	m.Synthetic = true
	return m
}

type HistoryEntry struct {
	Role    Role    `json:"role"`
	Content string  `json:"content"`
	Image   *string `json:"image"`
}

// TurnRequest starts a new turn. ThreadID is nil until the agent assigns one.
type TurnRequest struct {
	Messages []HistoryEntry `json:"messages"`
	ThreadID *string        `json:"thread_id"`
}

type ResumeRequest struct {
	ThreadID    string   `json:"thread_id"`
	Action      Action   `json:"action"`
	SelectedIDs []string `json:"selected_ids"`
}

// History converts messages into request entries, keeping order.
func History(messages []Message) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(messages))
	for _, m := range messages {
		entry := HistoryEntry{Role: m.Role, Content: m.Content}
		if m.Image != "" {
			img := m.Image
			entry.Image = &img
		}
		entries = append(entries, entry)
	}
	return entries
}

type Screenshot struct {
	Status     string  `json:"status"`
	Screenshot *string `json:"screenshot"`
}
