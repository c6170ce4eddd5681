package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tgbridge/internal/bridge"
	"tgbridge/internal/config"
	"tgbridge/internal/mailbox"
	"tgbridge/internal/telegram"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// .env is a convenience for local runs; real environment always wins.
	_ = godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "tgbridge",
		Short: "tgbridge: Telegram bridge for a mailbox-driven agent",
		Long: "tgbridge relays Telegram messages from authorized operators into a\n" +
			"local agent's mailbox database and routes the agent's replies back.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "bridge.yaml", "path to config file")

	root.AddCommand(runCmd())
	root.AddCommand(initCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bridge (ingestion + reply-watch loops)",
		RunE:  runBridge,
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLevel(cfg.Log.Level),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := mailbox.Open(cfg.Mailbox.Path, logger)
	if err != nil {
		return fmt.Errorf("open mailbox: %w", err)
	}
	defer store.Close()

	client, err := telegram.NewClient(telegram.Config{
		Token:     cfg.Telegram.Token,
		ParseMode: cfg.Telegram.ParseMode,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	logger.Info("bridge starting",
		"version", version,
		"bot", client.Username(),
		"token", config.MaskToken(cfg.Telegram.Token),
		"allowed_users", len(cfg.Telegram.AllowedUsers),
		"mailbox", cfg.Mailbox.Path,
	)

	b := bridge.New(bridge.Config{
		Transport: client,
		Mailbox:   store,
		Allowed:   cfg.Telegram.AllowedUsers,
		Logger:    logger,
	})
	return b.Run(ctx)
}

const starterConfig = `# tgbridge configuration.
# Every value can also come from the environment; environment wins.

telegram:
  # Bot credential from @BotFather. Required; usually left empty here and
  # provided as TELEGRAM_BOT_TOKEN instead. ${VAR} references are expanded.
  token: ""
  # Numeric Telegram user ids allowed to talk to the agent. Required.
  # Also settable as a comma-separated TELEGRAM_ALLOWED_USERS.
  allowedUsers: []
  # Markdown, MarkdownV2 or HTML. Falls back to plain text per message
  # when Telegram rejects the formatting.
  parseMode: Markdown

mailbox:
  # The agent's SQLite database. Must already exist.
  path: agent.db

log:
  # debug, info, warn or error.
  level: info
`

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", configPath)
			}
			if err := os.WriteFile(configPath, []byte(starterConfig), 0o600); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			logger.Info("starter config written", "path", configPath)
			return nil
		},
	}
}
