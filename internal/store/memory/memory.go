// Package memory is the in-process Event Store used by default.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"ghosthq/internal/model"
	"ghosthq/internal/store"
)

// Retention caps for the append-only collections.
const (
	DefaultChatRetention  = 1000
	DefaultEventRetention = 500
)

var _ store.Store = (*Store)(nil)

// Store keeps every collection in insertion order
type Store struct {
	mu    sync.RWMutex
	clock *store.Clock

	chatRetention  int
	eventRetention int

	users    map[string]model.User
	chat     []model.ChatMessage
	events   []model.GhostEvent
	evidence []model.Evidence

	squad      map[string]model.SquadStatus
	squadOrder []string
}

// New creates an empty store with the default retention caps.
func New() *Store {
	return NewWithRetention(DefaultChatRetention, DefaultEventRetention)
}

// NewWithRetention creates an empty store that keeps at most chat messages
// and events ghost events.
func NewWithRetention(chat, events int) *Store {
	return &Store{
		clock:          store.NewClock(),
		chatRetention:  chat,
		eventRetention: events,
		users:          make(map[string]model.User),
		squad:          make(map[string]model.SquadStatus),
	}
}

// Close is a no-op; the store lives as long as the process.
func (s *Store) Close() error { return nil }

// GetUser returns store.ErrNotFound for an unknown id.
func (s *Store) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

// CreateUser stores u, stamping lastSeen and the default photo when none is set.
func (s *Store) CreateUser(_ context.Context, u model.User) (*model.User, error) {
	if u.PhotoURL == "" {
		u.PhotoURL = model.DefaultPhotoURL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u.LastSeen = s.clock.Now()
	s.users[u.ID] = u
	return &u, nil
}

// UpdateUser changes the name and, when given, the photo of an existing user.
func (s *Store) UpdateUser(_ context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.DisplayName != "" {
		u.DisplayName = upd.DisplayName
	}
	if upd.PhotoURL != nil {
		u.PhotoURL = *upd.PhotoURL
	}
	u.LastSeen = s.clock.Now()
	s.users[id] = u
	return &u, nil
}

// GetChatMessages returns the last limit messages, oldest first.
func (s *Store) GetChatMessages(_ context.Context, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = store.DefaultChatLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(store.Tail(s.chat, limit)), nil
}

// CreateChatMessage appends m stamped now.
func (s *Store) CreateChatMessage(_ context.Context, m model.ChatMessage) (*model.ChatMessage, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m.Timestamp = s.clock.Now()
	s.chat = trim(append(s.chat, m), s.chatRetention)
	return &m, nil
}

// GetGhostEvents returns the last limit events, oldest first.
func (s *Store) GetGhostEvents(_ context.Context, limit int) ([]model.GhostEvent, error) {
	if limit <= 0 {
		limit = store.DefaultEventLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(store.Tail(s.events, limit)), nil
}

// CreateGhostEvent appends e stamped now.
func (s *Store) CreateGhostEvent(_ context.Context, e model.GhostEvent) (*model.GhostEvent, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e.Timestamp = s.clock.Now()
	s.events = trim(append(s.events, e), s.eventRetention)
	return &e, nil
}

// GetEvidence returns every evidence record, oldest first.
func (s *Store) GetEvidence(_ context.Context) ([]model.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.evidence), nil
}

// CreateEvidence appends e stamped now.
func (s *Store) CreateEvidence(_ context.Context, e model.Evidence) (*model.Evidence, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e.Timestamp = s.clock.Now()
	s.evidence = append(s.evidence, e)
	return &e, nil
}

// ClearEvidence empties the evidence board for everyone.
func (s *Store) ClearEvidence(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evidence = nil
	return nil
}

// GetSquadStatus returns one row per user in join order.
func (s *Store) GetSquadStatus(_ context.Context) ([]model.SquadStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.SquadStatus, 0, len(s.squadOrder))
	for _, userID := range s.squadOrder {
		out = append(out, s.squad[userID])
	}
	return out, nil
}

// UpdateSquadStatus merges the set fields of upd over the user's row.
func (s *Store) UpdateSquadStatus(_ context.Context, upd model.SquadStatusUpdate) (*model.SquadStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *model.SquadStatus
	if cur, ok := s.squad[upd.UserID]; ok {
		existing = &cur
	} else {
		s.squadOrder = append(s.squadOrder, upd.UserID)
	}

	merged := model.MergeSquadStatus(existing, upd, uuid.NewString(), s.clock.Now())
	s.squad[upd.UserID] = merged
	return &merged, nil
}

// trim drops the oldest entries beyond limit. A limit of zero or less keeps all.
func trim[T any](items []T, limit int) []T {
	if limit <= 0 || len(items) <= limit {
		return items
	}
	kept := make([]T, limit)
	copy(kept, items[len(items)-limit:])
	return kept
}

func clone[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}
