package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"ghosthq/internal/model"
)

// ErrNotFound is returned by user lookups for an unknown id.
var ErrNotFound = errors.New("not found")

const (
	DefaultChatLimit  = 50
	DefaultEventLimit = 20
)

// Store holds the command center state behind the HTTP API.
type Store interface {
	Close() error

	GetUser(ctx context.Context, id string) (*model.User, error)
	CreateUser(ctx context.Context, u model.User) (*model.User, error)
	UpdateUser(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error)

	GetChatMessages(ctx context.Context, limit int) ([]model.ChatMessage, error)
	CreateChatMessage(ctx context.Context, m model.ChatMessage) (*model.ChatMessage, error)

	GetGhostEvents(ctx context.Context, limit int) ([]model.GhostEvent, error)
	CreateGhostEvent(ctx context.Context, e model.GhostEvent) (*model.GhostEvent, error)

	GetEvidence(ctx context.Context) ([]model.Evidence, error)
	CreateEvidence(ctx context.Context, e model.Evidence) (*model.Evidence, error)
	ClearEvidence(ctx context.Context) error

	GetSquadStatus(ctx context.Context) ([]model.SquadStatus, error)
	UpdateSquadStatus(ctx context.Context, upd model.SquadStatusUpdate) (*model.SquadStatus, error)
}

// Clock hands out strictly increasing timestamps at microsecond resolution
// so that ordering by timestamp matches insertion order.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewClock returns a Clock backed by time.Now.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Now returns the next timestamp.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// Tail returns the last n elements of items, or all of them when n <= 0 or
// n exceeds the length.
func Tail[T any](items []T, n int) []T {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[len(items)-n:]
}
