package bridge

import (
	"context"
	"strings"
	"time"
)

// runWatch is the reply-watch loop: a fixed-interval check for a new agent
// turn while a reply is outstanding.
func (b *Bridge) runWatch(ctx context.Context) {
	b.logger.Info("reply-watch loop started", "interval", watchInterval)

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("reply-watch loop stopping")
			return
		case <-ticker.C:
			b.checkForReply(ctx)
		}
	}
}

// checkForReply performs one watch tick. A turn counts as the reply when
// its id differs from the last one observed AND its content is non-blank;
// anything else (no turn yet, same turn, empty content) defers to the next
// tick. A failed send leaves the slot armed so the tick after retries it —
// the requester only ever perceives delay, never an error.
func (b *Bridge) checkForReply(ctx context.Context) {
	chatID, awaiting := b.state.Pending()
	if !awaiting {
		return
	}

	turn, err := b.mailbox.LatestTurn(ctx)
	if err != nil {
		b.logger.Warn("latest turn read failed", "err", err)
		return
	}
	if turn == nil || turn.ID == b.state.LastTurn() {
		return
	}

	content := strings.TrimSpace(turn.Content)
	if content == "" {
		// The agent produced something, but not a user-facing reply.
		b.logger.Debug("skipping empty turn", "turn_id", turn.ID)
		return
	}

	if err := b.transport.SendText(ctx, chatID, turn.Content); err != nil {
		b.logger.Warn("reply send failed, will retry", "chat_id", chatID, "err", err)
		return
	}

	settled := b.state.Observe(turn.ID, chatID)
	if settled {
		b.typing.Stop()
	}
	b.logger.Info("reply forwarded",
		"turn_id", turn.ID, "chat_id", chatID, "settled", settled,
	)
}
