package domain

import "context"

// Transport is the narrow surface of the chat endpoint the bridge uses.
type Transport interface {
	// FetchUpdates long-polls for updates with id >= offset. An empty slice
	// on timeout is not an error.
	FetchUpdates(ctx context.Context, offset int) ([]ChatMessage, error)
	// SendText delivers text to a chat, chunking oversized payloads and
	// falling back to plain formatting when the endpoint rejects markup.
	SendText(ctx context.Context, chatID int64, text string) error
	// SendTyping emits a best-effort typing signal. Failures are swallowed.
	SendTyping(ctx context.Context, chatID int64)
}

// Mailbox is the narrow read/write contract over the shared agent store.
type Mailbox interface {
	// InsertInboundIfAbsent writes msg unless its id already exists.
	// Returns false when the row was already present.
	InsertInboundIfAbsent(ctx context.Context, msg InboundMessage) (bool, error)
	// LatestTurn returns the most recently produced turn, or nil if the
	// agent has not produced any yet.
	LatestTurn(ctx context.Context) (*Turn, error)
	// ClearSleepHint deletes the agent's sleep-until hint so it wakes
	// promptly. Safe to call when the hint is absent.
	ClearSleepHint(ctx context.Context) error
	// Status reads the agent's state keys and turn count.
	Status(ctx context.Context) (AgentStatus, error)
}
