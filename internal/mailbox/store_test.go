package mailbox

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tgbridge/internal/domain"

	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// testStore opens a store against a fresh database file, the way the agent
// would have left one behind.
func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.db")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("create db file: %v", err)
	}
	s, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// addTurn simulates the agent process appending to the turns table.
func addTurn(t *testing.T, s *Store, createdAt time.Time, content string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO turns (id, created_at, content) VALUES (?, ?, ?)`,
		id, createdAt, content,
	)
	if err != nil {
		t.Fatalf("insert turn: %v", err)
	}
	return id
}

func setStateKey(t *testing.T, s *Store, key, value string) {
	t.Helper()
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO agent_state (key, value) VALUES (?, ?)`,
		key, value,
	)
	if err != nil {
		t.Fatalf("set state key: %v", err)
	}
}

func TestOpen_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.db")
	if _, err := Open(path, testLogger()); err == nil {
		t.Fatal("expected error opening a mailbox that does not exist")
	}
}

func TestInsertInboundIfAbsent_Idempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	msg := domain.InboundMessage{
		ID:          "telegram-1700000000-42",
		FromAddress: "telegram:42",
		Content:     "hello",
		ReceivedAt:  time.Now(),
	}

	inserted, err := s.InsertInboundIfAbsent(ctx, msg)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !inserted {
		t.Fatal("first insert should report a new row")
	}

	inserted, err = s.InsertInboundIfAbsent(ctx, msg)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatal("second insert with the same id should be a no-op")
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 row, got %d", count)
	}
}

func TestLatestTurn_Empty(t *testing.T) {
	s := testStore(t)
	turn, err := s.LatestTurn(context.Background())
	if err != nil {
		t.Fatalf("latest turn: %v", err)
	}
	if turn != nil {
		t.Fatalf("expected nil turn on empty table, got %+v", turn)
	}
}

func TestLatestTurn_NewestWins(t *testing.T) {
	s := testStore(t)
	base := time.Now().Add(-time.Hour)

	addTurn(t, s, base, "old output")
	newest := addTurn(t, s, base.Add(10*time.Minute), "new output")

	turn, err := s.LatestTurn(context.Background())
	if err != nil {
		t.Fatalf("latest turn: %v", err)
	}
	if turn == nil {
		t.Fatal("expected a turn")
	}
	if turn.ID != newest {
		t.Fatalf("expected newest turn %s, got %s", newest, turn.ID)
	}
	if turn.Content != "new output" {
		t.Fatalf("unexpected content %q", turn.Content)
	}
}

func TestLatestTurn_NullContent(t *testing.T) {
	s := testStore(t)
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO turns (id, created_at, content) VALUES (?, ?, NULL)`,
		id, time.Now(),
	)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	turn, err := s.LatestTurn(context.Background())
	if err != nil {
		t.Fatalf("latest turn: %v", err)
	}
	if turn.Content != "" {
		t.Fatalf("NULL content should scan as empty, got %q", turn.Content)
	}
}

func TestClearSleepHint(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Absent key: still fine.
	if err := s.ClearSleepHint(ctx); err != nil {
		t.Fatalf("clear on empty table: %v", err)
	}

	setStateKey(t, s, keySleepUntil, time.Now().Add(time.Hour).Format(time.RFC3339))
	if err := s.ClearSleepHint(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM agent_state WHERE key = ?`, keySleepUntil).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatal("sleep hint should be gone")
	}
}

func TestClearSleepHint_LeavesOtherKeys(t *testing.T) {
	s := testStore(t)
	setStateKey(t, s, keyState, "working")
	setStateKey(t, s, keySleepUntil, "2026-01-01T00:00:00Z")

	if err := s.ClearSleepHint(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}

	st, err := s.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != "working" {
		t.Fatalf("state key should survive, got %q", st.State)
	}
}

func TestStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	st, err := s.Status(ctx)
	if err != nil {
		t.Fatalf("status on fresh store: %v", err)
	}
	if st.State != "" || !st.SleepUntil.IsZero() || st.TurnCount != 0 {
		t.Fatalf("expected zero status, got %+v", st)
	}

	sleep := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	setStateKey(t, s, keyState, "sleeping")
	setStateKey(t, s, keySleepUntil, sleep.Format(time.RFC3339))
	addTurn(t, s, time.Now(), "turn one")
	addTurn(t, s, time.Now(), "turn two")

	st, err = s.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != "sleeping" {
		t.Fatalf("state = %q, want sleeping", st.State)
	}
	if !st.SleepUntil.Equal(sleep) {
		t.Fatalf("sleepUntil = %v, want %v", st.SleepUntil, sleep)
	}
	if st.TurnCount != 2 {
		t.Fatalf("turnCount = %d, want 2", st.TurnCount)
	}
}

func TestStatus_BadSleepValue(t *testing.T) {
	s := testStore(t)
	setStateKey(t, s, keySleepUntil, "not-a-timestamp")

	st, err := s.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.SleepUntil.IsZero() {
		t.Fatalf("unparseable sleep value should yield zero time, got %v", st.SleepUntil)
	}
}
