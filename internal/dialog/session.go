package dialog

import "sync"

// Sessions holds the current State of every conversation in memory. A
// conversation is locked for the whole of a turn, so two events from the same
// user never interleave while different users proceed in parallel.
type Sessions struct {
	mu    sync.Mutex
	convs map[int64]*conversation
}

type conversation struct {
	mu    sync.Mutex
	state State
}

func NewSessions() *Sessions {
	return &Sessions{convs: make(map[int64]*conversation)}
}

func (s *Sessions) get(identity int64) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[identity]
	if !ok {
		c = &conversation{}
		s.convs[identity] = c
	}
	return c
}

// lock returns the identity's conversation with its lock held.
func (s *Sessions) lock(identity int64) *conversation {
	c := s.get(identity)
	c.mu.Lock()
	return c
}

// State returns the identity's current state, nil if it never started.
func (s *Sessions) State(identity int64) State {
	s.mu.Lock()
	c, ok := s.convs[identity]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Set overwrites the identity's state.
func (s *Sessions) Set(identity int64, st State) {
	c := s.lock(identity)
	c.state = st
	c.mu.Unlock()
}

// Len reports how many conversations are tracked.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}
