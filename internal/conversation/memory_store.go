package conversation

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps sessions in process memory. Used by tests and
// single-process deployments without Redis.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
}

type sessionState struct {
	turns   []Turn
	profile Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*sessionState)}
}

func (s *MemoryStore) CreateSession(_ context.Context) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &sessionState{}
	return id, nil
}

func (s *MemoryStore) AppendTurn(_ context.Context, sessionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	state.turns = append(state.turns, turn)
	return nil
}

func (s *MemoryStore) Turns(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := make([]Turn, len(state.turns))
	copy(out, state.turns)
	return out, nil
}

func (s *MemoryStore) TrimTurns(_ context.Context, sessionID string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if keep < 0 {
		keep = 0
	}
	if len(state.turns) > keep {
		state.turns = append([]Turn(nil), state.turns[len(state.turns)-keep:]...)
	}
	return nil
}

func (s *MemoryStore) Profile(_ context.Context, sessionID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return Profile{}, ErrSessionNotFound
	}
	return state.profile, nil
}

func (s *MemoryStore) SaveProfile(_ context.Context, sessionID string, profile Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	state.profile = profile
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
