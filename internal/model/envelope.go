package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EnvelopeType tags the payload carried by an Envelope
type EnvelopeType string

const (
	TypeChat            EnvelopeType = "chat"
	TypeEvent           EnvelopeType = "event"
	TypeEvidence        EnvelopeType = "evidence"
	TypeEvidenceCleared EnvelopeType = "evidence_cleared"
	TypeSquad           EnvelopeType = "squad"
)

// ErrUnknownEnvelope is returned when decoding an envelope of an unknown type.
var ErrUnknownEnvelope = errors.New("unknown envelope type")

// Payload is implemented by every type that can travel inside an Envelope.
// The set is closed: ChatMessage, GhostEvent, Evidence, EvidenceCleared and
// SquadStatus.
type Payload interface {
	EnvelopeType() EnvelopeType
}

// EvidenceCleared is pushed after the evidence board is wiped
type EvidenceCleared struct{}

func (ChatMessage) EnvelopeType() EnvelopeType     { return TypeChat }
func (GhostEvent) EnvelopeType() EnvelopeType      { return TypeEvent }
func (Evidence) EnvelopeType() EnvelopeType        { return TypeEvidence }
func (EvidenceCleared) EnvelopeType() EnvelopeType { return TypeEvidenceCleared }
func (SquadStatus) EnvelopeType() EnvelopeType     { return TypeSquad }

// Envelope is the {type, data} wire form of every real-time push
type Envelope struct {
	Type EnvelopeType    `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEnvelope wraps p with its type tag.
func NewEnvelope(p Payload) (Envelope, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", p.EnvelopeType(), err)
	}
	return Envelope{Type: p.EnvelopeType(), Data: data}, nil
}

// ParseEnvelope decodes a raw frame into its typed payload.
func ParseEnvelope(raw []byte) (Payload, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	return env.Decode()
}

// Decode returns the typed payload of e.
func (e Envelope) Decode() (Payload, error) {
	switch e.Type {
	case TypeChat:
		return decodeData[ChatMessage](e)
	case TypeEvent:
		return decodeData[GhostEvent](e)
	case TypeEvidence:
		return decodeData[Evidence](e)
	case TypeEvidenceCleared:
		return EvidenceCleared{}, nil
	case TypeSquad:
		return decodeData[SquadStatus](e)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnvelope, e.Type)
	}
}

func decodeData[T Payload](e Envelope) (Payload, error) {
	var v T
	if len(e.Data) == 0 {
		return nil, fmt.Errorf("decoding %s payload: missing data", e.Type)
	}
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", e.Type, err)
	}
	return v, nil
}
