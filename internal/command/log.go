package command

import (
	"strconv"
	"sync"
	"time"

	"ghosthq/internal/model"
)

// Kind classifies an activity log entry.
type Kind string

const (
	KindSystem  Kind = "system"
	KindEvent   Kind = "event"
	KindCommand Kind = "command"
	KindHunt    Kind = "hunt"
)

// DefaultLogSize is how many entries an ActivityLog keeps.
const DefaultLogSize = 200

// Entry is one line of the activity log.
type Entry struct {
	ID        string
	Kind      Kind
	Message   string
	Timestamp time.Time
}

// ActivityLog is a bounded, append-only feed of what happened to the squad.
type ActivityLog struct {
	mu      sync.Mutex
	size    int
	seq     int
	entries []Entry
	seen    map[string]bool
	notify  func(Entry)
}

// NewActivityLog keeps the last size entries.
func NewActivityLog(size int) *ActivityLog {
	if size <= 0 {
		size = DefaultLogSize
	}
	return &ActivityLog{size: size, seen: make(map[string]bool)}
}

// OnAppend sets a callback run after every new entry.
func (l *ActivityLog) OnAppend(fn func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = fn
}

// Add appends a new entry stamped now.
func (l *ActivityLog) Add(kind Kind, message string) Entry {
	l.mu.Lock()
	l.seq++
	e := Entry{
		ID:        strconv.Itoa(l.seq),
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
	}
	notify := l.append(e)
	l.mu.Unlock()

	if notify != nil {
		notify(e)
	}
	return e
}

// ObserveEvent records a ghost event once while its entry is still in the log.
func (l *ActivityLog) ObserveEvent(ev model.GhostEvent) bool {
	id := "event-" + ev.ID

	l.mu.Lock()
	if l.seen[id] {
		l.mu.Unlock()
		return false
	}
	l.seen[id] = true

	kind := KindEvent
	if ev.Type == model.EventHunt {
		kind = KindHunt
	}
	e := Entry{ID: id, Kind: kind, Message: ev.Message, Timestamp: ev.Timestamp}
	notify := l.append(e)
	l.mu.Unlock()

	if notify != nil {
		notify(e)
	}
	return true
}

// Entries returns the kept entries, oldest first.
func (l *ActivityLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// append must be called with mu held. An event that falls off the log is
// forgotten by the dedupe set too.
func (l *ActivityLog) append(e Entry) func(Entry) {
	l.entries = append(l.entries, e)
	if len(l.entries) > l.size {
		delete(l.seen, l.entries[0].ID)
		l.entries = append([]Entry(nil), l.entries[1:]...)
	}
	return l.notify
}
