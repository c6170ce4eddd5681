package bridge

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"tgbridge/internal/config"
	"tgbridge/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type sentText struct {
	chatID int64
	text   string
}

// fakeTransport records outgoing traffic and lets tests script failures.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []sentText
	typing []int64

	sendErr error
	onSend  func(chatID int64, text string) // runs inside SendText, before recording
	fetch   func(ctx context.Context, offset int) ([]domain.ChatMessage, error)
}

func (f *fakeTransport) FetchUpdates(ctx context.Context, offset int) ([]domain.ChatMessage, error) {
	if f.fetch != nil {
		return f.fetch(ctx, offset)
	}
	return nil, nil
}

func (f *fakeTransport) SendText(ctx context.Context, chatID int64, text string) error {
	if f.onSend != nil {
		f.onSend(chatID, text)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentText{chatID: chatID, text: text})
	return nil
}

func (f *fakeTransport) SendTyping(ctx context.Context, chatID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, chatID)
}

func (f *fakeTransport) sentTexts() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentText, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeMailbox is an in-memory domain.Mailbox.
type fakeMailbox struct {
	inserted    []domain.InboundMessage
	existing    map[string]bool
	insertErr   error
	hintCleared int
	clearErr    error
	latest      *domain.Turn
	latestErr   error
	status      domain.AgentStatus
	statusErr   error
}

func (f *fakeMailbox) InsertInboundIfAbsent(ctx context.Context, msg domain.InboundMessage) (bool, error) {
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if f.existing == nil {
		f.existing = make(map[string]bool)
	}
	if f.existing[msg.ID] {
		return false, nil
	}
	f.existing[msg.ID] = true
	f.inserted = append(f.inserted, msg)
	return true, nil
}

func (f *fakeMailbox) LatestTurn(ctx context.Context) (*domain.Turn, error) {
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	return f.latest, nil
}

func (f *fakeMailbox) ClearSleepHint(ctx context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.hintCleared++
	return nil
}

func (f *fakeMailbox) Status(ctx context.Context) (domain.AgentStatus, error) {
	return f.status, f.statusErr
}

func testBridge(t *testing.T, transport domain.Transport, mbox domain.Mailbox) *Bridge {
	t.Helper()
	return New(Config{
		Transport: transport,
		Mailbox:   mbox,
		Allowed:   config.FlexIDList{42},
		Logger:    testLogger(),
	})
}
