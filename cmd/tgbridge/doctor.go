package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"tgbridge/internal/config"
	"tgbridge/internal/mailbox"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the bridge setup",
		Long: `Verifies that the bridge configuration, Telegram credential, and the
agent's mailbox database are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("tgbridge doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0

			// 1. Config loads and validates
			cfg, err := config.Load(configPath)
			if err != nil {
				printFail("Config", err.Error())
				failed++
				fmt.Printf("\nResults: %d passed, %d failed\n", passed, failed)
				fmt.Printf("\nFix the configuration (see 'tgbridge init'), then re-run.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config", "valid")
			passed++

			printPass("Telegram token", config.MaskToken(cfg.Telegram.Token))
			passed++
			printPass("Allow list", fmt.Sprintf("%d user(s)", len(cfg.Telegram.AllowedUsers)))
			passed++

			// 2. Mailbox database exists and opens
			if _, err := os.Stat(cfg.Mailbox.Path); err != nil {
				printFail("Mailbox database", fmt.Sprintf("not found at %s", cfg.Mailbox.Path))
				failed++
			} else {
				store, err := mailbox.Open(cfg.Mailbox.Path, logger)
				if err != nil {
					printFail("Mailbox database", err.Error())
					failed++
				} else {
					printPass("Mailbox database", cfg.Mailbox.Path)
					passed++
					if err := reportMailbox(store, cfg.Mailbox.Path); err != nil {
						printFail("Mailbox contents", err.Error())
						failed++
					} else {
						passed++
					}
					store.Close()
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d failed\n", passed, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running the bridge.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			fmt.Printf("\nAll checks passed! The bridge is ready to run.\n")
			return nil
		},
	}
}

// reportMailbox prints row counts and the agent's status snapshot.
func reportMailbox(store *mailbox.Store, path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := store.Status(ctx)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}

	msgCount, err := countMessages(ctx, path)
	if err != nil {
		return err
	}

	state := st.State
	if state == "" {
		state = "unknown"
	}
	sleep := "none"
	if !st.SleepUntil.IsZero() {
		sleep = st.SleepUntil.Format(time.RFC3339)
	}
	printPass("Mailbox contents", fmt.Sprintf("%d message(s), %d turn(s)", msgCount, st.TurnCount))
	fmt.Printf("       agent state: %s, sleeping until: %s\n", state, sleep)
	return nil
}

// countMessages goes straight at the database; the bridge's narrow store
// contract deliberately has no message-reading side.
func countMessages(ctx context.Context, path string) (int64, error) {
	db, err := sql.Open("sqlite", path+"?_busy_timeout=5000")
	if err != nil {
		return 0, fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	var count int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func printPass(name, detail string) {
	fmt.Printf("  ✅ %-18s %s\n", name, detail)
}

func printFail(name, detail string) {
	fmt.Printf("  ❌ %-18s %s\n", name, detail)
}
