// Package sqlstore is the Event Store backed by MySQL, PostgreSQL or SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ghosthq/internal/model"
	"ghosthq/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store on database/sql
type Store struct {
	db      *sql.DB
	dialect Dialect
	clock   *store.Clock
}

// New wraps db and creates any missing tables.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect, clock: store.NewClock()}
	for _, stmt := range dialect.Schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, s.q("SELECT id, display_name, photo_url, last_seen FROM users WHERE id = ?"), id)

	var u model.User
	var lastSeen int64
	if err := row.Scan(&u.ID, &u.DisplayName, &u.PhotoURL, &lastSeen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	u.LastSeen = fromMicros(lastSeen)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (*model.User, error) {
	if u.PhotoURL == "" {
		u.PhotoURL = model.DefaultPhotoURL
	}
	u.LastSeen = s.clock.Now()

	_, err := s.db.ExecContext(ctx,
		s.q("INSERT INTO users (id, display_name, photo_url, last_seen) VALUES (?, ?, ?, ?)"),
		u.ID, u.DisplayName, u.PhotoURL, u.LastSeen.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("creating user %s: %w", u.ID, err)
	}
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.DisplayName != "" {
		u.DisplayName = upd.DisplayName
	}
	if upd.PhotoURL != nil {
		u.PhotoURL = *upd.PhotoURL
	}
	u.LastSeen = s.clock.Now()

	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE users SET display_name = ?, photo_url = ?, last_seen = ? WHERE id = ?"),
		u.DisplayName, u.PhotoURL, u.LastSeen.UnixMicro(), id)
	if err != nil {
		return nil, fmt.Errorf("updating user %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetChatMessages(ctx context.Context, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = store.DefaultChatLimit
	}

	rows, err := s.db.QueryContext(ctx, s.q(
		"SELECT id, user_id, text, is_command, display_name, photo_url, ts FROM chat_messages ORDER BY ts DESC LIMIT ?"), limit)
	if err != nil {
		return nil, fmt.Errorf("listing chat messages: %w", err)
	}
	defer rows.Close()

	msgs := []model.ChatMessage{}
	for rows.Next() {
		var m model.ChatMessage
		var displayName, photoURL sql.NullString
		var ts int64
		if err := rows.Scan(&m.ID, &m.UserID, &m.Text, &m.IsCommand, &displayName, &photoURL, &ts); err != nil {
			return nil, fmt.Errorf("scanning chat message: %w", err)
		}
		m.DisplayName = displayName.String
		m.PhotoURL = photoURL.String
		m.Timestamp = fromMicros(ts)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing chat messages: %w", err)
	}

	reverse(msgs)
	return msgs, nil
}

func (s *Store) CreateChatMessage(ctx context.Context, m model.ChatMessage) (*model.ChatMessage, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Timestamp = s.clock.Now()

	_, err := s.db.ExecContext(ctx, s.q(
		"INSERT INTO chat_messages (id, user_id, text, is_command, display_name, photo_url, ts) VALUES (?, ?, ?, ?, ?, ?, ?)"),
		m.ID, m.UserID, m.Text, m.IsCommand, nullIfEmpty(m.DisplayName), nullIfEmpty(m.PhotoURL), m.Timestamp.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("creating chat message: %w", err)
	}
	return &m, nil
}

func (s *Store) GetGhostEvents(ctx context.Context, limit int) ([]model.GhostEvent, error) {
	if limit <= 0 {
		limit = store.DefaultEventLimit
	}

	rows, err := s.db.QueryContext(ctx, s.q(
		"SELECT id, type, intensity, message, triggered_by, ts FROM ghost_events ORDER BY ts DESC LIMIT ?"), limit)
	if err != nil {
		return nil, fmt.Errorf("listing ghost events: %w", err)
	}
	defer rows.Close()

	events := []model.GhostEvent{}
	for rows.Next() {
		var e model.GhostEvent
		var eventType string
		var triggeredBy sql.NullString
		var ts int64
		if err := rows.Scan(&e.ID, &eventType, &e.Intensity, &e.Message, &triggeredBy, &ts); err != nil {
			return nil, fmt.Errorf("scanning ghost event: %w", err)
		}
		e.Type = model.EventType(eventType)
		e.TriggeredBy = stringPtr(triggeredBy)
		e.Timestamp = fromMicros(ts)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing ghost events: %w", err)
	}

	reverse(events)
	return events, nil
}

func (s *Store) CreateGhostEvent(ctx context.Context, e model.GhostEvent) (*model.GhostEvent, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Timestamp = s.clock.Now()

	_, err := s.db.ExecContext(ctx, s.q(
		"INSERT INTO ghost_events (id, type, intensity, message, triggered_by, ts) VALUES (?, ?, ?, ?, ?, ?)"),
		e.ID, string(e.Type), e.Intensity, e.Message, nullable(e.TriggeredBy), e.Timestamp.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("creating ghost event: %w", err)
	}
	return &e, nil
}

func (s *Store) GetEvidence(ctx context.Context) ([]model.Evidence, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, user_id, evidence, display_name, ts FROM evidence ORDER BY ts ASC")
	if err != nil {
		return nil, fmt.Errorf("listing evidence: %w", err)
	}
	defer rows.Close()

	items := []model.Evidence{}
	for rows.Next() {
		var e model.Evidence
		var displayName sql.NullString
		var ts int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.Evidence, &displayName, &ts); err != nil {
			return nil, fmt.Errorf("scanning evidence: %w", err)
		}
		e.DisplayName = displayName.String
		e.Timestamp = fromMicros(ts)
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing evidence: %w", err)
	}
	return items, nil
}

func (s *Store) CreateEvidence(ctx context.Context, e model.Evidence) (*model.Evidence, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Timestamp = s.clock.Now()

	_, err := s.db.ExecContext(ctx, s.q(
		"INSERT INTO evidence (id, user_id, evidence, display_name, ts) VALUES (?, ?, ?, ?, ?)"),
		e.ID, e.UserID, e.Evidence, nullIfEmpty(e.DisplayName), e.Timestamp.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("creating evidence: %w", err)
	}
	return &e, nil
}

func (s *Store) ClearEvidence(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM evidence"); err != nil {
		return fmt.Errorf("clearing evidence: %w", err)
	}
	return nil
}

const squadColumns = "id, user_id, is_dead, map, location, display_name, photo_url, ts"

func (s *Store) GetSquadStatus(ctx context.Context) ([]model.SquadStatus, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+squadColumns+" FROM squad_status ORDER BY joined_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing squad status: %w", err)
	}
	defer rows.Close()

	statuses := []model.SquadStatus{}
	for rows.Next() {
		st, err := scanSquad(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing squad status: %w", err)
	}
	return statuses, nil
}

const mergeAttempts = 3

// UpdateSquadStatus merges upd into the user's row. The existing row is
// locked for the merge. A concurrent first insert for the same user loses on
// the unique key (or a deadlock on the gap lock) and is retried as a merge.
func (s *Store) UpdateSquadStatus(ctx context.Context, upd model.SquadStatusUpdate) (*model.SquadStatus, error) {
	var lastErr error
	for attempt := 0; attempt < mergeAttempts; attempt++ {
		st, err := s.mergeSquadStatus(ctx, upd)
		if err == nil {
			return st, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *Store) mergeSquadStatus(ctx context.Context, upd model.SquadStatusUpdate) (*model.SquadStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("updating squad status: %w", err)
	}
	defer tx.Rollback()

	// 同一ユーザーの並行更新はここで直列化
	row := tx.QueryRowContext(ctx, s.q("SELECT "+squadColumns+" FROM squad_status WHERE user_id = ?"+s.dialect.LockSuffix()), upd.UserID)
	existing, err := scanSquad(row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	merged := model.MergeSquadStatus(existing, upd, uuid.NewString(), s.clock.Now())
	ts := merged.Timestamp.UnixMicro()

	if existing == nil {
		_, err = tx.ExecContext(ctx, s.q(
			"INSERT INTO squad_status (id, user_id, is_dead, map, location, display_name, photo_url, joined_at, ts) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"),
			merged.ID, merged.UserID, merged.IsDead, nullable(merged.Map), nullable(merged.Location),
			nullable(merged.DisplayName), nullable(merged.PhotoURL), ts, ts)
	} else {
		_, err = tx.ExecContext(ctx, s.q(
			"UPDATE squad_status SET is_dead = ?, map = ?, location = ?, display_name = ?, photo_url = ?, ts = ? WHERE user_id = ?"),
			merged.IsDead, nullable(merged.Map), nullable(merged.Location),
			nullable(merged.DisplayName), nullable(merged.PhotoURL), ts, merged.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("writing squad status for %s: %w", upd.UserID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing squad status for %s: %w", upd.UserID, err)
	}
	return &merged, nil
}

func scanSquad(row rowScanner) (*model.SquadStatus, error) {
	var st model.SquadStatus
	var mapName, location, displayName, photoURL sql.NullString
	var ts int64
	if err := row.Scan(&st.ID, &st.UserID, &st.IsDead, &mapName, &location, &displayName, &photoURL, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning squad status: %w", err)
	}
	st.Map = stringPtr(mapName)
	st.Location = stringPtr(location)
	st.DisplayName = stringPtr(displayName)
	st.PhotoURL = stringPtr(photoURL)
	st.Timestamp = fromMicros(ts)
	return &st, nil
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func reverse[T any](items []T) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
