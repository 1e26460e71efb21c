package core

import "time"

const (
	AssistantName = "Lokality"
	UserAgent     = "Lokality-Assistant/0.1"
	Version       = "0.1.0"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Fact is a single durable statement about an entity. Rows are owned by the
// fact store; consumers always re-fetch instead of holding mutable copies.
type Fact struct {
	ID        int64     `json:"id"`
	Entity    string    `json:"entity"`
	Fact      string    `json:"fact"`
	CreatedAt time.Time `json:"created_at"`
}
