package models

import "time"

// Role indicates the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one turn in the per-scan conversation. Turns are
// append-only: the solve flow seeds the first turns and follow-ups extend the
// list, nothing ever mutates an existing turn.
type ConversationTurn struct {
	ID        string    `json:"id"`
	ScanID    string    `json:"scan_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
