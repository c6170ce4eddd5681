package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tgbridge/internal/domain"
)

// typingNotifier keeps a "typing…" indicator alive in the chat that is
// waiting for a reply. At most one emitter goroutine runs at a time: Start
// cancels any previous emitter before launching the next, so a retargeted
// slot never leaves an orphaned ticker behind.
type typingNotifier struct {
	transport domain.Transport
	interval  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newTypingNotifier(transport domain.Transport, interval time.Duration, logger *slog.Logger) *typingNotifier {
	return &typingNotifier{
		transport: transport,
		interval:  interval,
		logger:    logger,
	}
}

// Start begins (or retargets) the periodic typing signal for chatID.
// The emitter dies with ctx or on Stop, whichever comes first.
func (n *typingNotifier) Start(ctx context.Context, chatID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.cancel != nil {
		n.cancel()
	}
	emitCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	go n.emit(emitCtx, chatID)
	n.logger.Debug("typing signal started", "chat_id", chatID)
}

// Stop cancels the current emitter, if any. Safe to call repeatedly.
func (n *typingNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
		n.logger.Debug("typing signal stopped")
	}
}

func (n *typingNotifier) emit(ctx context.Context, chatID int64) {
	// First signal right away; Telegram's indicator decays after ~5s.
	n.transport.SendTyping(ctx, chatID)

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.transport.SendTyping(ctx, chatID)
		}
	}
}
