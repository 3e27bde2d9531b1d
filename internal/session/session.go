// Package session keeps per-session conversation memory for the chat
// assistant: an append-only, timestamped turn log plus a little scratch
// state per session. Everything lives in process memory.
package session

import (
	"time"

	"github.com/apexion-ai/vesselcheck/internal/checklist"
)

// DefaultSessionID is shared by every caller that does not send a session id.
const DefaultSessionID = "default"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleStatus    Role = "status"
)

// Kind tags synthetic entries apart from ordinary chat messages.
type Kind string

const (
	KindMessage      Kind = "message"
	KindStatusUpdate Kind = "status_update"
)

type TurnID string

// Turn is one entry of a session's conversation log.
type Turn struct {
	ID        TurnID    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation holds the state of one session.
type Conversation struct {
	ID        string
	Turns     []Turn
	CreatedAt time.Time
	UpdatedAt time.Time

	// CurrentItems is the item lookup the model saw on the latest turn.
	CurrentItems map[string][]checklist.ItemRef
	// Verification tracks items the assistant has asked the crew to verify.
	Verification map[string]string
}

func newConversation(id string, now time.Time) *Conversation {
	return &Conversation{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// lastActivity is the timestamp of the most recent turn, or of the last
// scratch update when no turn was ever appended.
func (c *Conversation) lastActivity() time.Time {
	if n := len(c.Turns); n > 0 {
		return c.Turns[n-1].CreatedAt
	}
	return c.UpdatedAt
}

// Info is a lightweight summary of a live session (for listing).
type Info struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Turns        int       `json:"turns"`
}

// Context is the read-only view of a session used for inspection.
type Context struct {
	SessionID    string                         `json:"session_id"`
	RecentTurns  []Turn                         `json:"recent_messages"`
	CurrentItems map[string][]checklist.ItemRef `json:"current_items"`
	Verification map[string]string              `json:"verification_states"`
}
