package domain

import "time"

// ChatMessage is one raw update from the chat endpoint, normalized to the
// fields the bridge needs. Non-text updates (stickers, media, edits) are
// surfaced with an empty Text so the poll cursor still advances past them.
type ChatMessage struct {
	UpdateID int
	ChatID   int64
	SenderID int64
	Text     string
	SentAt   time.Time
}

// InboundMessage is a row in the shared messages table. Written once by the
// bridge, then owned by the agent; the bridge never updates or deletes it.
type InboundMessage struct {
	ID          string
	FromAddress string
	Content     string
	ReceivedAt  time.Time
	ReplyTo     string // unused by the bridge, stored as NULL
}

// Turn is one completed agent output from the shared turns table. Produced
// exclusively by the agent process; read-only here.
type Turn struct {
	ID        string
	CreatedAt time.Time
	Content   string
}

// AgentStatus is a point-in-time snapshot of the agent's well-known state
// keys, used by the /status command and doctor diagnostics.
type AgentStatus struct {
	State      string
	SleepUntil time.Time
	TurnCount  int64
}
