package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tgbridge/internal/domain"
)

// Fixed texts sent back over the chat. The operator notice wraps every
// injected message so the agent knows where the text came from and that a
// reply will be routed back.
const (
	noticePrefix = "The following is a direct message from your operator, sent via Telegram. " +
		"Your next reply will be forwarded back to them.\n\n"

	ackNotice       = "📨 Message received, waiting for the agent's reply..."
	rejectionNotice = "⛔ Unauthorized. Your user ID is not in the allow list."

	greetingNotice = "👋 Hello! I relay messages between you and the agent.\n\n" +
		"Send any text and it lands in the agent's inbox; its next reply comes back here.\n\n" +
		"Commands:\n/status — agent status\n/hello — this message"
)

// runIngest is the long-poll ingestion loop. The cursor advances past an
// update only after it is fully handled, so a crash or a store error causes
// redelivery, which the idempotent insert absorbs.
func (b *Bridge) runIngest(ctx context.Context) {
	b.logger.Info("ingestion loop started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("ingestion loop stopping")
			return
		default:
		}

		msgs, err := b.transport.FetchUpdates(ctx, b.state.Cursor()+1)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			b.logger.Warn("poll failed, backing off", "err", err)
			b.backoff(ctx)
			continue
		}

		for _, msg := range msgs {
			if err := b.handleMessage(ctx, msg); err != nil {
				// No cursor advance: this update and everything after it
				// will be redelivered.
				b.logger.Warn("message handling failed, backing off",
					"update_id", msg.UpdateID, "err", err,
				)
				b.backoff(ctx)
				break
			}
			b.state.AdvanceCursor(msg.UpdateID)
		}
	}
}

// handleMessage processes one raw update: policy, commands, injection.
// An error means the update was not fully handled and must be redelivered.
func (b *Bridge) handleMessage(ctx context.Context, msg domain.ChatMessage) error {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		// Stickers, media, edits, non-message updates: nothing to inject.
		return nil
	}

	if !b.allowed.Contains(msg.SenderID) {
		b.logger.Warn("unauthorized sender rejected",
			"sender_id", msg.SenderID, "chat_id", msg.ChatID,
		)
		if err := b.transport.SendText(ctx, msg.ChatID, rejectionNotice); err != nil {
			b.logger.Warn("rejection notice send failed", "chat_id", msg.ChatID, "err", err)
		}
		return nil
	}

	// Built-in commands answer directly and never touch the mailbox or the
	// correlation slot. Matched against the whole trimmed text, no arguments.
	switch text {
	case "/start", "/hello":
		if err := b.transport.SendText(ctx, msg.ChatID, greetingNotice); err != nil {
			b.logger.Warn("greeting send failed", "chat_id", msg.ChatID, "err", err)
		}
		return nil
	case "/status":
		b.answerStatus(ctx, msg.ChatID)
		return nil
	}

	return b.inject(ctx, msg, text)
}

// inject writes the message into the agent's inbox, wakes the agent, and
// arms the reply slot for the sending chat.
func (b *Bridge) inject(ctx context.Context, msg domain.ChatMessage, text string) error {
	inbound := domain.InboundMessage{
		ID:          inboundID(msg),
		FromAddress: fmt.Sprintf("telegram:%d", msg.SenderID),
		Content:     noticePrefix + text,
		ReceivedAt:  msg.SentAt,
	}

	inserted, err := b.mailbox.InsertInboundIfAbsent(ctx, inbound)
	if err != nil {
		return fmt.Errorf("insert inbound: %w", err)
	}
	if !inserted {
		b.logger.Debug("duplicate delivery absorbed", "id", inbound.ID)
	}

	if err := b.mailbox.ClearSleepHint(ctx); err != nil {
		return fmt.Errorf("clear sleep hint: %w", err)
	}

	b.logger.Info("message injected",
		"id", inbound.ID, "sender_id", msg.SenderID, "chat_id", msg.ChatID, "text_len", len(text),
	)

	// Arm (or retarget) the single reply slot and keep the chat's typing
	// indicator alive until the watch loop settles it.
	b.state.Arm(msg.ChatID)
	b.typing.Start(ctx, msg.ChatID)

	if err := b.transport.SendText(ctx, msg.ChatID, ackNotice); err != nil {
		// The message is already injected; the ack is a courtesy.
		b.logger.Warn("ack send failed", "chat_id", msg.ChatID, "err", err)
	}
	return nil
}

// answerStatus renders the agent's status snapshot into the chat. A store
// error here is transient: logged, not escalated, no redelivery needed.
func (b *Bridge) answerStatus(ctx context.Context, chatID int64) {
	st, err := b.mailbox.Status(ctx)
	if err != nil {
		b.logger.Warn("status read failed", "err", err)
		if err := b.transport.SendText(ctx, chatID, "⚠️ Could not read agent status, try again."); err != nil {
			b.logger.Warn("status send failed", "chat_id", chatID, "err", err)
		}
		return
	}
	if err := b.transport.SendText(ctx, chatID, formatStatus(st)); err != nil {
		b.logger.Warn("status send failed", "chat_id", chatID, "err", err)
	}
}

func formatStatus(st domain.AgentStatus) string {
	state := st.State
	if state == "" {
		state = "unknown"
	}
	sleep := "—"
	if !st.SleepUntil.IsZero() {
		sleep = st.SleepUntil.Format(time.RFC3339)
	}
	return fmt.Sprintf("🤖 Agent status\n\nState: %s\nSleeping until: %s\nTurns produced: %d",
		state, sleep, st.TurnCount)
}

// inboundID derives a practically unique, redelivery-stable id from the
// platform's message timestamp and the sender.
func inboundID(msg domain.ChatMessage) string {
	return fmt.Sprintf("telegram-%d-%d", msg.SentAt.Unix(), msg.SenderID)
}
