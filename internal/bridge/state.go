package bridge

import "sync"

// State is the correlation record shared by the two loops. It is the only
// synchronization surface between them: the ingestion loop arms it, the
// reply-watch loop settles it. The awaiting flag and the pending chat are
// one logical value and are only ever written together.
type State struct {
	mu sync.Mutex

	lastUpdateID int    // poll cursor: highest fully handled update id
	lastTurnID   string // newest agent turn already seen (or seeded at boot)
	awaiting     bool
	pendingChat  int64
}

// Cursor returns the id of the last fully handled update.
func (s *State) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdateID
}

// AdvanceCursor records updateID as fully handled. The cursor never moves
// backwards.
func (s *State) AdvanceCursor(updateID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if updateID > s.lastUpdateID {
		s.lastUpdateID = updateID
	}
}

// Arm marks a reply as outstanding for chatID. A second arm while already
// awaiting overwrites the pending target: there is exactly one reply slot,
// and the most recent requester owns it.
func (s *State) Arm(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awaiting = true
	s.pendingChat = chatID
}

// Pending returns the chat waiting for a reply, if any.
func (s *State) Pending() (chatID int64, awaiting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingChat, s.awaiting
}

// SeedTurn records the newest turn id present before the loops start, so
// pre-existing agent output is never forwarded as a fresh reply.
func (s *State) SeedTurn(turnID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTurnID = turnID
}

// LastTurn returns the most recently observed turn id.
func (s *State) LastTurn() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTurnID
}

// Observe records that turnID was delivered to sentTo. The slot settles
// only if sentTo still owns it; if another chat armed the slot while the
// send was in flight, the turn is consumed but the slot stays armed for
// the new requester.
func (s *State) Observe(turnID string, sentTo int64) (settled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTurnID = turnID
	if s.awaiting && s.pendingChat == sentTo {
		s.awaiting = false
		s.pendingChat = 0
		return true
	}
	return false
}
