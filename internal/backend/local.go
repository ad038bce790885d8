package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"ghosthq/internal/model"
	"ghosthq/internal/socket"
	"ghosthq/internal/store"
)

const requestTimeout = 10 * time.Second

// Local talks to a command center: HTTP for writes and initial lists, the
// /ws channel for everything after.
type Local struct {
	baseURL string
	client  *http.Client
	sock    *socket.Client
	logger  *log.Logger

	attach sync.Once

	mu       sync.Mutex
	chat     []model.ChatMessage
	squad    []model.SquadStatus
	evidence []model.Evidence

	chatSubs     listeners[[]model.ChatMessage]
	eventSubs    listeners[model.GhostEvent]
	statusSubs   listeners[[]model.SquadStatus]
	evidenceSubs listeners[[]model.Evidence]
}

var _ Backend = (*Local)(nil)

// NewLocal creates a backend for the command center at baseURL
// (e.g. http://localhost:8080).
func NewLocal(baseURL string, sockCfg socket.Config, logger *log.Logger) *Local {
	if logger == nil {
		logger = log.Default()
	}
	if sockCfg.Logger == nil {
		sockCfg.Logger = logger
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &Local{
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
		sock:    socket.NewClient(wsURL(baseURL), sockCfg),
		logger:  logger,
	}
}

func wsURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + "/ws"
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + "/ws"
	default:
		return baseURL + "/ws"
	}
}

func (l *Local) Name() string { return "local" }

// Socket exposes the live channel, mainly for connection state.
func (l *Local) Socket() *socket.Client { return l.sock }

func (l *Local) SaveProfile(ctx context.Context, u model.User) error {
	body := map[string]any{"id": u.ID, "displayName": u.DisplayName}
	if u.PhotoURL != "" {
		body["photoUrl"] = u.PhotoURL
	}
	return l.post(ctx, "/api/users", body, nil)
}

func (l *Local) SendMessage(ctx context.Context, msg model.ChatMessage) error {
	return l.post(ctx, "/api/chat", msg, nil)
}

func (l *Local) TriggerEvent(ctx context.Context, event model.GhostEvent) error {
	return l.post(ctx, "/api/events", map[string]any{
		"type":        event.Type,
		"intensity":   event.Intensity,
		"triggeredBy": event.TriggeredBy,
	}, nil)
}

func (l *Local) UpdateStatus(ctx context.Context, upd model.SquadStatusUpdate) error {
	return l.post(ctx, "/api/squad/status", upd, nil)
}

func (l *Local) SaveEvidence(ctx context.Context, ev model.Evidence) error {
	return l.post(ctx, "/api/evidence", ev, nil)
}

func (l *Local) ClearEvidence(ctx context.Context) error {
	return l.do(ctx, http.MethodDelete, "/api/evidence", nil, nil)
}

// OnChat delivers the latest ChatLimit messages, oldest first.
func (l *Local) OnChat(fn func([]model.ChatMessage)) func() {
	unsubscribe := l.chatSubs.add(fn)
	l.start()

	go func() {
		var msgs []model.ChatMessage
		if err := l.get("/api/chat", &msgs); err != nil {
			l.logger.Printf("[Backend] ❌ Failed to load chat: %v", err)
			return
		}
		l.mu.Lock()
		l.chat = mergeByID(msgs, l.chat, func(m model.ChatMessage) string { return m.ID }, func(m model.ChatMessage) time.Time { return m.Timestamp })
		l.chat = store.Tail(l.chat, ChatLimit)
		snapshot := slices.Clone(l.chat)
		l.mu.Unlock()
		fn(snapshot)
	}()

	return unsubscribe
}

// OnEvent delivers the most recent stored event, then every new one.
func (l *Local) OnEvent(fn func(model.GhostEvent)) func() {
	unsubscribe := l.eventSubs.add(fn)
	l.start()

	go func() {
		var events []model.GhostEvent
		if err := l.get("/api/events", &events); err != nil {
			l.logger.Printf("[Backend] ❌ Failed to load events: %v", err)
			return
		}
		if len(events) > 0 {
			fn(events[len(events)-1])
		}
	}()

	return unsubscribe
}

// OnStatus delivers the whole squad on every change.
func (l *Local) OnStatus(fn func([]model.SquadStatus)) func() {
	unsubscribe := l.statusSubs.add(fn)
	l.start()

	go func() {
		var rows []model.SquadStatus
		if err := l.get("/api/squad", &rows); err != nil {
			l.logger.Printf("[Backend] ❌ Failed to load squad: %v", err)
			return
		}
		l.mu.Lock()
		for _, row := range rows {
			l.squad = upsertSquad(l.squad, row)
		}
		snapshot := slices.Clone(l.squad)
		l.mu.Unlock()
		fn(snapshot)
	}()

	return unsubscribe
}

// OnEvidence delivers the whole evidence list on every change.
func (l *Local) OnEvidence(fn func([]model.Evidence)) func() {
	unsubscribe := l.evidenceSubs.add(fn)
	l.start()

	go func() {
		var items []model.Evidence
		if err := l.get("/api/evidence", &items); err != nil {
			l.logger.Printf("[Backend] ❌ Failed to load evidence: %v", err)
			return
		}
		l.mu.Lock()
		l.evidence = mergeByID(items, l.evidence, func(e model.Evidence) string { return e.ID }, func(e model.Evidence) time.Time { return e.Timestamp })
		snapshot := slices.Clone(l.evidence)
		l.mu.Unlock()
		fn(snapshot)
	}()

	return unsubscribe
}

func (l *Local) Close() error {
	return l.sock.Close()
}

// start attaches the mirror to the live channel once.
func (l *Local) start() {
	l.attach.Do(func() {
		l.sock.Subscribe(l.apply)
	})
}

// apply folds one pushed payload into the mirror and notifies subscribers.
func (l *Local) apply(p model.Payload) {
	switch v := p.(type) {
	case model.ChatMessage:
		l.mu.Lock()
		l.chat = store.Tail(append(l.chat, v), ChatLimit)
		snapshot := slices.Clone(l.chat)
		l.mu.Unlock()
		l.chatSubs.emit(snapshot)

	case model.GhostEvent:
		l.eventSubs.emit(v)

	case model.SquadStatus:
		l.mu.Lock()
		l.squad = upsertSquad(l.squad, v)
		snapshot := slices.Clone(l.squad)
		l.mu.Unlock()
		l.statusSubs.emit(snapshot)

	case model.Evidence:
		l.mu.Lock()
		l.evidence = append(l.evidence, v)
		snapshot := slices.Clone(l.evidence)
		l.mu.Unlock()
		l.evidenceSubs.emit(snapshot)

	case model.EvidenceCleared:
		l.mu.Lock()
		l.evidence = nil
		l.mu.Unlock()
		l.evidenceSubs.emit([]model.Evidence{})
	}
}

func (l *Local) post(ctx context.Context, path string, body, out any) error {
	return l.do(ctx, http.MethodPost, path, body, out)
}

func (l *Local) get(path string, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return l.do(ctx, http.MethodGet, path, nil, out)
}

func (l *Local) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg := errResp["error"]; msg != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, msg, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s %s: %w", method, path, err)
		}
	}
	return nil
}

func upsertSquad(rows []model.SquadStatus, row model.SquadStatus) []model.SquadStatus {
	for i := range rows {
		if rows[i].UserID == row.UserID {
			rows[i] = row
			return rows
		}
	}
	return append(rows, row)
}

// mergeByID combines a fetched list with items pushed before the fetch
// finished, ordered by timestamp.
func mergeByID[T any](fetched, pushed []T, id func(T) string, ts func(T) time.Time) []T {
	seen := make(map[string]bool, len(fetched))
	out := slices.Clone(fetched)
	for _, item := range fetched {
		seen[id(item)] = true
	}
	for _, item := range pushed {
		if !seen[id(item)] {
			out = append(out, item)
		}
	}
	slices.SortStableFunc(out, func(a, b T) int { return ts(a).Compare(ts(b)) })
	return out
}
