package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tgbridge/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	// Telegram caps messages at 4096 chars; stay under it.
	maxMsgLen = 4000

	// Long-poll window passed to getUpdates.
	pollWindow = 30 * time.Second
)

// botAPI is the slice of tgbotapi.BotAPI the client uses. Narrowed so tests
// can substitute a fake endpoint.
type botAPI interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Client implements domain.Transport over the Telegram Bot API.
type Client struct {
	api       botAPI
	parseMode string
	logger    *slog.Logger
	username  string
}

type Config struct {
	Token     string
	ParseMode string
	Logger    *slog.Logger
}

// NewClient connects to the Bot API. The library validates the credential
// with a getMe call, so an invalid token fails here, at startup.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, longPollClient(pollWindow))
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &Client{
		api:       bot,
		parseMode: cfg.ParseMode,
		logger:    cfg.Logger,
		username:  bot.Self.UserName,
	}, nil
}

// Username returns the bot account name, for startup logging.
func (c *Client) Username() string { return c.username }

// FetchUpdates long-polls for updates with id >= offset. An empty slice on
// a quiet window is not an error. Every update is surfaced, including
// non-text ones (as a ChatMessage with empty Text), so the caller's cursor
// always advances past everything the endpoint delivered.
func (c *Client) FetchUpdates(ctx context.Context, offset int) ([]domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u := tgbotapi.NewUpdate(offset)
	u.Timeout = int(pollWindow / time.Second)

	updates, err := c.api.GetUpdates(u)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}

	out := make([]domain.ChatMessage, 0, len(updates))
	for _, update := range updates {
		msg := domain.ChatMessage{UpdateID: update.UpdateID}
		if m := update.Message; m != nil && m.From != nil && m.Chat != nil {
			msg.ChatID = m.Chat.ID
			msg.SenderID = m.From.ID
			msg.Text = m.Text
			msg.SentAt = time.Unix(int64(m.Date), 0)
		}
		out = append(out, msg)
	}
	return out, nil
}

// SendText delivers text to a chat. Oversized text is split into contiguous
// ordered chunks; each chunk goes out formatted first and falls back to
// plain text once if the endpoint rejects the markup. A chunk that still
// fails is logged and the remaining chunks are attempted anyway; the first
// failure is returned so the caller can re-drive the whole send.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	var firstErr error
	for _, chunk := range splitText(text, maxMsgLen) {
		if err := ctx.Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			break
		}
		if err := c.sendChunk(chatID, chunk); err != nil {
			c.logger.Warn("telegram chunk send failed", "chat_id", chatID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// sendChunk sends one chunk, formatted first, plain on parse rejection.
func (c *Client) sendChunk(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = c.parseMode

	_, err := c.api.Send(msg)
	if err == nil {
		return nil
	}

	if strings.Contains(err.Error(), "can't parse entities") {
		c.logger.Warn("telegram parse error, retrying as plain text",
			"parse_mode", c.parseMode, "err", err,
		)
		plain := tgbotapi.NewMessage(chatID, text)
		_, err2 := c.api.Send(plain)
		if err2 == nil {
			return nil
		}
		err = err2
	}

	return fmt.Errorf("send message: %w", err)
}

// SendTyping emits a best-effort typing action. Failures are swallowed:
// the signal is a side channel and its absence costs nothing.
func (c *Client) SendTyping(ctx context.Context, chatID int64) {
	if ctx.Err() != nil {
		return
	}
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	_, _ = c.api.Request(action)
}

// splitText cuts text into ordered chunks of at most max bytes whose
// concatenation is the original text. Cuts prefer a newline in the back
// half of the window so formatting blocks tend to stay intact.
func splitText(text string, max int) []string {
	var chunks []string
	for len(text) > 0 {
		if len(text) <= max {
			chunks = append(chunks, text)
			break
		}
		cutAt := strings.LastIndex(text[:max], "\n")
		if cutAt < max/2 {
			cutAt = max
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}
