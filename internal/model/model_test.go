package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEventTypeMessage(t *testing.T) {
	if got := EventHunt.Message(); got != "HUNT INITIATED! All agents take cover immediately!" {
		t.Errorf("unexpected hunt message: %q", got)
	}
	if got := EventWhisper.Message(); got != "Paranormal event registered." {
		t.Errorf("whisper should fall back to generic message, got %q", got)
	}
	if got := EventType("bogus").Message(); got != EventGeneric.Message() {
		t.Errorf("unknown type should fall back to generic message, got %q", got)
	}
}

func TestEventTypeValid(t *testing.T) {
	for _, et := range EventTypes() {
		if !et.Valid() {
			t.Errorf("%q should be valid", et)
		}
	}
	if EventType("poltergeist").Valid() {
		t.Error("poltergeist is not an event type")
	}
}

func TestClampIntensity(t *testing.T) {
	cases := map[int]int{-3: 1, 0: 1, 1: 1, 3: 3, 5: 5, 9: 5}
	for in, want := range cases {
		if got := ClampIntensity(in); got != want {
			t.Errorf("ClampIntensity(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestMergeSquadStatus(t *testing.T) {
	now := time.Now()

	first := MergeSquadStatus(nil, SquadStatusUpdate{UserID: "u1", IsDead: BoolPtr(true)}, "id-1", now)
	if first.ID != "id-1" || !first.IsDead || first.Map != nil {
		t.Fatalf("unexpected first row: %+v", first)
	}

	second := MergeSquadStatus(&first, SquadStatusUpdate{UserID: "u1", Map: StringPtr("Prison")}, "id-2", now.Add(time.Second))
	if second.ID != "id-1" {
		t.Errorf("merge should keep the original id, got %q", second.ID)
	}
	if !second.IsDead {
		t.Error("isDead should be inherited")
	}
	if second.Map == nil || *second.Map != "Prison" {
		t.Errorf("map should be Prison, got %v", second.Map)
	}

	third := MergeSquadStatus(&second, SquadStatusUpdate{UserID: "u1", IsDead: BoolPtr(false)}, "id-3", now)
	if third.IsDead {
		t.Error("explicit false should override")
	}
	if third.Map == nil || *third.Map != "Prison" {
		t.Error("map should still be inherited")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	msg := ChatMessage{ID: "m1", UserID: "u1", Text: "hello", Timestamp: time.Now().UTC()}
	env, err := NewEnvelope(msg)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	raw, _ := json.Marshal(env)

	p, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	got, ok := p.(ChatMessage)
	if !ok {
		t.Fatalf("expected ChatMessage, got %T", p)
	}
	if got.Text != "hello" || got.ID != "m1" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestEnvelopeEvidenceCleared(t *testing.T) {
	env, err := NewEnvelope(EvidenceCleared{})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	raw, _ := json.Marshal(env)
	if string(raw) != `{"type":"evidence_cleared","data":{}}` {
		t.Errorf("unexpected wire form: %s", raw)
	}
	p, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if _, ok := p.(EvidenceCleared); !ok {
		t.Errorf("expected EvidenceCleared, got %T", p)
	}
}

func TestParseEnvelopeErrors(t *testing.T) {
	if _, err := ParseEnvelope([]byte("not json")); err == nil {
		t.Error("expected error for malformed frame")
	}
	_, err := ParseEnvelope([]byte(`{"type":"presence","data":{}}`))
	if !errors.Is(err, ErrUnknownEnvelope) {
		t.Errorf("expected ErrUnknownEnvelope, got %v", err)
	}
	if _, err := ParseEnvelope([]byte(`{"type":"chat"}`)); err == nil {
		t.Error("expected error for missing data")
	}
}
