package model

// EventType names a kind of ghost event
type EventType string

const (
	EventHunt      EventType = "hunt"
	EventFlicker   EventType = "flicker"
	EventManifest  EventType = "manifest"
	EventSlam      EventType = "slam"
	EventCurse     EventType = "curse"
	EventScare     EventType = "scare"
	EventJumpscare EventType = "jumpscare"
	EventWhisper   EventType = "whisper"
	EventCreak     EventType = "creak"
	EventHaunt     EventType = "haunt"
	EventGeneric   EventType = "event"
)

const (
	MinIntensity = 1
	MaxIntensity = 5
)

var eventMessages = map[EventType]string{
	EventHunt:     "HUNT INITIATED! All agents take cover immediately!",
	EventFlicker:  "Lights flickering detected. Paranormal activity rising.",
	EventManifest: "Ghost manifestation in progress...",
	EventSlam:     "Door SLAM! Ghost activity confirmed.",
	EventCurse:    "Cursed object interaction detected!",
	EventGeneric:  "Paranormal event registered.",
}

// EventTypes lists every known event type.
func EventTypes() []EventType {
	return []EventType{
		EventHunt, EventFlicker, EventManifest, EventSlam, EventCurse,
		EventScare, EventJumpscare, EventWhisper, EventCreak, EventHaunt,
		EventGeneric,
	}
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	for _, known := range EventTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Message returns the broadcast text for t, falling back to the generic
// event text.
func (t EventType) Message() string {
	if msg, ok := eventMessages[t]; ok {
		return msg
	}
	return eventMessages[EventGeneric]
}

// ClampIntensity forces n into [MinIntensity, MaxIntensity].
func ClampIntensity(n int) int {
	if n < MinIntensity {
		return MinIntensity
	}
	if n > MaxIntensity {
		return MaxIntensity
	}
	return n
}
