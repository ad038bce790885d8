// Package backend gives agents one set of writes and subscriptions over
// either the command center HTTP API or a Firestore project.
package backend

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"ghosthq/internal/config"
	"ghosthq/internal/model"
	"ghosthq/internal/socket"
)

// ChatLimit is the number of messages OnChat keeps.
const ChatLimit = 100

// Backend is a data path to the shared squad state.
type Backend interface {
	Name() string

	SaveProfile(ctx context.Context, u model.User) error
	SendMessage(ctx context.Context, msg model.ChatMessage) error
	TriggerEvent(ctx context.Context, event model.GhostEvent) error
	UpdateStatus(ctx context.Context, upd model.SquadStatusUpdate) error
	SaveEvidence(ctx context.Context, ev model.Evidence) error
	// ClearEvidence empties the evidence board for the whole squad.
	ClearEvidence(ctx context.Context) error

	// Subscriptions return a func that removes the callback.
	OnChat(fn func([]model.ChatMessage)) func()
	OnEvent(fn func(model.GhostEvent)) func()
	OnStatus(fn func([]model.SquadStatus)) func()
	OnEvidence(fn func([]model.Evidence)) func()

	Close() error
}

// Identity is the agent the façade writes on behalf of.
type Identity struct {
	UserID      string
	DisplayName string
	PhotoURL    string
	Online      bool
}

// Facade stamps the current identity onto every write.
type Facade struct {
	backend Backend

	mu       sync.RWMutex
	identity *Identity
}

// NewFacade wraps b. Writes are dropped until SetIdentity is called.
func NewFacade(b Backend) *Facade {
	return &Facade{backend: b}
}

// Backend returns the wrapped backend.
func (f *Facade) Backend() Backend {
	return f.backend
}

// SetIdentity resolves the acting agent.
func (f *Facade) SetIdentity(id Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity = &id
}

// Identity returns the resolved identity, if any.
func (f *Facade) Identity() (Identity, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.identity == nil {
		return Identity{}, false
	}
	return *f.identity, true
}

// DisplayName returns the acting agent's name, or "" when unresolved.
func (f *Facade) DisplayName() string {
	id, _ := f.Identity()
	return id.DisplayName
}

// SaveProfile stores the identity as a user profile.
func (f *Facade) SaveProfile(ctx context.Context) error {
	id, ok := f.Identity()
	if !ok {
		return nil
	}
	return f.backend.SaveProfile(ctx, model.User{ID: id.UserID, DisplayName: id.DisplayName, PhotoURL: id.PhotoURL})
}

// SendMessage posts text to squad chat.
func (f *Facade) SendMessage(ctx context.Context, text string, isCommand bool) error {
	id, ok := f.Identity()
	if !ok {
		return nil
	}
	return f.backend.SendMessage(ctx, model.ChatMessage{
		UserID:      id.UserID,
		Text:        text,
		IsCommand:   isCommand,
		DisplayName: id.DisplayName,
		PhotoURL:    id.PhotoURL,
	})
}

// TriggerEvent broadcasts a ghost event of type t.
func (f *Facade) TriggerEvent(ctx context.Context, t model.EventType, intensity int) error {
	id, ok := f.Identity()
	if !ok {
		return nil
	}
	by := id.UserID
	return f.backend.TriggerEvent(ctx, model.GhostEvent{
		Type:        t,
		Intensity:   model.ClampIntensity(intensity),
		Message:     t.Message(),
		TriggeredBy: &by,
	})
}

// UpdateStatus merges upd into the agent's squad row.
func (f *Facade) UpdateStatus(ctx context.Context, upd model.SquadStatusUpdate) error {
	id, ok := f.Identity()
	if !ok {
		return nil
	}
	upd.UserID = id.UserID
	if upd.DisplayName == nil {
		upd.DisplayName = model.StringPtr(id.DisplayName)
	}
	if upd.PhotoURL == nil && id.PhotoURL != "" {
		upd.PhotoURL = model.StringPtr(id.PhotoURL)
	}
	return f.backend.UpdateStatus(ctx, upd)
}

// SaveEvidence logs an evidence finding.
func (f *Facade) SaveEvidence(ctx context.Context, evidence string) error {
	id, ok := f.Identity()
	if !ok {
		return nil
	}
	return f.backend.SaveEvidence(ctx, model.Evidence{
		UserID:      id.UserID,
		Evidence:    evidence,
		DisplayName: id.DisplayName,
	})
}

// ClearEvidence empties the shared evidence board.
func (f *Facade) ClearEvidence(ctx context.Context) error {
	if _, ok := f.Identity(); !ok {
		return nil
	}
	return f.backend.ClearEvidence(ctx)
}

// Rename changes the agent's display name and photo and stores the new profile.
func (f *Facade) Rename(ctx context.Context, name, photoURL string) error {
	f.mu.Lock()
	if f.identity == nil {
		f.mu.Unlock()
		return nil
	}
	f.identity.DisplayName = name
	if photoURL != "" {
		f.identity.PhotoURL = photoURL
	}
	f.mu.Unlock()

	if err := f.SaveProfile(ctx); err != nil {
		return err
	}
	return f.UpdateStatus(ctx, model.SquadStatusUpdate{})
}

func (f *Facade) OnChat(fn func([]model.ChatMessage)) func()   { return f.backend.OnChat(fn) }
func (f *Facade) OnEvent(fn func(model.GhostEvent)) func()     { return f.backend.OnEvent(fn) }
func (f *Facade) OnStatus(fn func([]model.SquadStatus)) func() { return f.backend.OnStatus(fn) }
func (f *Facade) OnEvidence(fn func([]model.Evidence)) func()  { return f.backend.OnEvidence(fn) }

// Close releases the backend.
func (f *Facade) Close() error {
	return f.backend.Close()
}

// Select builds the façade for cfg. Firestore is used when it is configured
// and reachable; otherwise the agent runs against the HTTP API with an
// anonymous offline identity.
func Select(ctx context.Context, cfg config.Config, logger *log.Logger) *Facade {
	if logger == nil {
		logger = log.Default()
	}

	if cfg.FirestoreEnabled() {
		fs, err := NewFirestore(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredentialsFile, logger)
		if err == nil {
			f := NewFacade(fs)
			f.SetIdentity(Identity{
				UserID:      agentID(cfg, "agent-"),
				DisplayName: cfg.AgentName,
				PhotoURL:    cfg.AgentPhotoURL,
				Online:      true,
			})
			logger.Printf("[Backend] ✅ Using Firestore project %s", cfg.FirestoreProjectID)
			return f
		}
		logger.Printf("[Backend] ⚠️  Firestore unavailable, falling back to offline mode: %v", err)
	}

	local := NewLocal(cfg.APIURL, socket.Config{
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logger,
	}, logger)
	f := NewFacade(local)
	f.SetIdentity(Identity{
		UserID:      agentID(cfg, "offline-"),
		DisplayName: cfg.AgentName,
		PhotoURL:    cfg.AgentPhotoURL,
		Online:      false,
	})
	logger.Printf("[Backend] Using command center at %s (offline identity)", cfg.APIURL)
	return f
}

func agentID(cfg config.Config, prefix string) string {
	if cfg.AgentID != "" {
		return cfg.AgentID
	}
	return prefix + uuid.NewString()
}
