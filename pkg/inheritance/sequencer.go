package inheritance

import (
	"sync"
	"sync/atomic"
)

// sequencer orders tenant switches per session. Every switch draws a
// generation when it starts; only the newest generation may commit.
type sequencer struct {
	counter uint64

	mu       sync.Mutex
	sessions map[string]*sessionSlot
}

type sessionSlot struct {
	commitMu sync.Mutex
	latest   uint64 // guarded by sequencer.mu
	refs     int    // guarded by sequencer.mu
}

type ticket struct {
	seq        *sequencer
	sessionID  string
	slot       *sessionSlot
	generation uint64
}

func newSequencer() *sequencer {
	return &sequencer{sessions: make(map[string]*sessionSlot)}
}

func (s *sequencer) begin(sessionID string) *ticket {
	gen := atomic.AddUint64(&s.counter, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.sessions[sessionID]
	if !ok {
		slot = &sessionSlot{}
		s.sessions[sessionID] = slot
	}
	slot.refs++
	if gen > slot.latest {
		slot.latest = gen
	}
	return &ticket{seq: s, sessionID: sessionID, slot: slot, generation: gen}
}

func (s *sequencer) isLatest(t *ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.slot.latest == t.generation
}

// commit runs fn under the session's commit lock if no newer switch has
// started. It returns ErrSuperseded otherwise.
func (t *ticket) commit(fn func() error) error {
	t.slot.commitMu.Lock()
	defer t.slot.commitMu.Unlock()

	if !t.seq.isLatest(t) {
		return ErrSuperseded
	}
	return fn()
}

// release drops the ticket; the slot goes away with its last holder
func (t *ticket) release() {
	t.seq.mu.Lock()
	defer t.seq.mu.Unlock()
	t.slot.refs--
	if t.slot.refs == 0 {
		delete(t.seq.sessions, t.sessionID)
	}
}

func (s *sequencer) inFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
