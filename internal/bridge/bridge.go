package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tgbridge/internal/config"
	"tgbridge/internal/domain"
)

const (
	// Backoff after a failed poll or a failed message handling.
	pollBackoff = 5 * time.Second

	// How often the reply-watch loop checks for a new turn.
	watchInterval = 5 * time.Second

	// How often the typing signal is refreshed while a reply is pending.
	typingInterval = 4 * time.Second
)

// Bridge wires the Telegram transport to the agent's mailbox. Two loops,
// never calling each other: the ingestion loop writes inbound messages into
// the store, the reply-watch loop reads the agent's output back out. They
// meet only in State.
type Bridge struct {
	transport domain.Transport
	mailbox   domain.Mailbox
	allowed   config.FlexIDList
	logger    *slog.Logger

	state  *State
	typing *typingNotifier
}

type Config struct {
	Transport domain.Transport
	Mailbox   domain.Mailbox
	Allowed   config.FlexIDList
	Logger    *slog.Logger
}

func New(cfg Config) *Bridge {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		transport: cfg.Transport,
		mailbox:   cfg.Mailbox,
		allowed:   cfg.Allowed,
		logger:    cfg.Logger,
		state:     &State{},
		typing:    newTypingNotifier(cfg.Transport, typingInterval, cfg.Logger),
	}
}

// Run seeds the correlation state and drives both loops until ctx is
// cancelled. It returns an error only when boot seeding fails; everything
// after that is retried in place, never escalated.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.seed(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.runIngest(ctx)
	}()
	go func() {
		defer wg.Done()
		b.runWatch(ctx)
	}()
	wg.Wait()

	b.typing.Stop()
	b.logger.Info("bridge stopped")
	return nil
}

// seed records the newest pre-existing turn so output the agent produced
// before this process started is never forwarded as a fresh reply.
func (b *Bridge) seed(ctx context.Context) error {
	turn, err := b.mailbox.LatestTurn(ctx)
	if err != nil {
		return fmt.Errorf("seed last turn: %w", err)
	}
	if turn != nil {
		b.state.SeedTurn(turn.ID)
		b.logger.Info("seeded correlation state", "last_turn_id", turn.ID)
	} else {
		b.logger.Info("seeded correlation state", "last_turn_id", "none")
	}
	return nil
}

// backoff sleeps for the fixed retry delay, or returns early when ctx dies.
func (b *Bridge) backoff(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(pollBackoff):
	}
}
