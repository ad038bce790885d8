package model

import "time"

// DefaultPhotoURL is assigned to users created without a photo.
const DefaultPhotoURL = "/avatars/default.png"

// ChatMessage represents one line of squad chat
type ChatMessage struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Text        string    `json:"text"`
	IsCommand   bool      `json:"isCommand"`
	DisplayName string    `json:"displayName,omitempty"`
	PhotoURL    string    `json:"photoUrl,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// GhostEvent represents a scripted scare broadcast to the whole squad
type GhostEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Intensity   int       `json:"intensity"`
	Message     string    `json:"message"`
	TriggeredBy *string   `json:"triggeredBy"`
	Timestamp   time.Time `json:"timestamp"`
}

// Evidence represents one logged evidence finding
type Evidence struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Evidence    string    `json:"evidence"`
	DisplayName string    `json:"displayName,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// SquadStatus is the single live status row of a player, keyed by UserID
type SquadStatus struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	IsDead      bool      `json:"isDead"`
	Map         *string   `json:"map"`
	Location    *string   `json:"location"`
	DisplayName *string   `json:"displayName,omitempty"`
	PhotoURL    *string   `json:"photoUrl,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// SquadStatusUpdate is a partial status write. Nil fields keep the stored value.
type SquadStatusUpdate struct {
	UserID      string  `json:"userId"`
	IsDead      *bool   `json:"isDead,omitempty"`
	Map         *string `json:"map,omitempty"`
	Location    *string `json:"location,omitempty"`
	DisplayName *string `json:"displayName,omitempty"`
	PhotoURL    *string `json:"photoUrl,omitempty"`
}

// User is a player profile
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	PhotoURL    string    `json:"photoUrl"`
	LastSeen    time.Time `json:"lastSeen"`
}

// UserUpdate carries the profile fields that may change on save
type UserUpdate struct {
	DisplayName string
	PhotoURL    *string
}

// MergeSquadStatus applies upd over existing. When existing is nil a new row
// is started with id; otherwise the existing id is kept.
func MergeSquadStatus(existing *SquadStatus, upd SquadStatusUpdate, id string, ts time.Time) SquadStatus {
	merged := SquadStatus{
		ID:        id,
		UserID:    upd.UserID,
		Timestamp: ts,
	}
	if existing != nil {
		merged.ID = existing.ID
		merged.IsDead = existing.IsDead
		merged.Map = existing.Map
		merged.Location = existing.Location
		merged.DisplayName = existing.DisplayName
		merged.PhotoURL = existing.PhotoURL
	}

	if upd.IsDead != nil {
		merged.IsDead = *upd.IsDead
	}
	if upd.Map != nil {
		merged.Map = upd.Map
	}
	if upd.Location != nil {
		merged.Location = upd.Location
	}
	if upd.DisplayName != nil {
		merged.DisplayName = upd.DisplayName
	}
	if upd.PhotoURL != nil {
		merged.PhotoURL = upd.PhotoURL
	}

	return merged
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}
