package mailbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"tgbridge/internal/domain"

	_ "modernc.org/sqlite"
)

// Well-known agent_state keys shared with the agent process.
const (
	keyState      = "state"
	keySleepUntil = "sleep_until"
)

// Store implements domain.Mailbox over the shared SQLite database.
// The database file belongs to the agent process; the bridge only writes
// inbound messages and clears the sleep hint.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to the shared database at path. The file must already
// exist: the agent owns the store, and silently creating a fresh empty
// database would leave the bridge talking to nobody.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("mailbox database not found at %s (is the agent set up?): %w", path, err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open mailbox database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mailbox schema: %w", err)
	}
	return s, nil
}

// migrate applies the shared schema. Idempotent; the agent process applies
// the same statements, whichever side starts first wins harmlessly.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id           TEXT PRIMARY KEY,
		from_address TEXT NOT NULL,
		content      TEXT NOT NULL,
		received_at  TIMESTAMP NOT NULL,
		reply_to     TEXT
	);

	CREATE TABLE IF NOT EXISTS turns (
		id         TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		content    TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at);

	CREATE TABLE IF NOT EXISTS agent_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// InsertInboundIfAbsent writes msg unless a row with its id already exists.
// Returns false when the insert was a duplicate no-op, which is how
// at-least-once redelivery from the poll loop is absorbed.
func (s *Store) InsertInboundIfAbsent(ctx context.Context, msg domain.InboundMessage) (bool, error) {
	var replyTo sql.NullString
	if msg.ReplyTo != "" {
		replyTo = sql.NullString{String: msg.ReplyTo, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (id, from_address, content, received_at, reply_to)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.FromAddress, msg.Content, msg.ReceivedAt, replyTo,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LatestTurn returns the most recently produced turn, newest first by
// created_at with id as a tiebreak, or nil if the agent has not produced
// any output yet.
func (s *Store) LatestTurn(ctx context.Context) (*domain.Turn, error) {
	var t domain.Turn
	var content sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, content FROM turns
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&t.ID, &t.CreatedAt, &content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.Content = content.String
	return &t, nil
}

// ClearSleepHint deletes the agent's sleep-until hint so it wakes up for
// the freshly injected message. Safe to call when the hint is absent.
func (s *Store) ClearSleepHint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM agent_state WHERE key = ?`, keySleepUntil,
	)
	return err
}

// Status reads the agent's well-known state keys and the turn count.
// Missing keys yield zero values, not errors.
func (s *Store) Status(ctx context.Context) (domain.AgentStatus, error) {
	var st domain.AgentStatus

	state, err := s.readStateValue(ctx, keyState)
	if err != nil {
		return st, fmt.Errorf("read agent state: %w", err)
	}
	st.State = state

	sleepRaw, err := s.readStateValue(ctx, keySleepUntil)
	if err != nil {
		return st, fmt.Errorf("read sleep hint: %w", err)
	}
	if sleepRaw != "" {
		ts, err := time.Parse(time.RFC3339, sleepRaw)
		if err != nil {
			s.logger.Warn("unparseable sleep_until value", "value", sleepRaw, "err", err)
		} else {
			st.SleepUntil = ts
		}
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM turns`,
	).Scan(&st.TurnCount); err != nil {
		return st, fmt.Errorf("count turns: %w", err)
	}
	return st, nil
}

func (s *Store) readStateValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM agent_state WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
