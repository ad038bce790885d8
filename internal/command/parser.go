// Package command turns "!" chat lines into squad actions.
package command

import (
	"strings"

	"ghosthq/internal/model"
)

// Prefix marks a chat line as a command.
const Prefix = "!"

// Command is one parsed "!name[:value]" line.
type Command struct {
	Name  string
	Value string
	Raw   string
}

// ghostIntensity is the fixed intensity of each ghost command. The other
// event types can only be posted to /api/events.
var ghostIntensity = map[string]int{
	string(model.EventHunt):     5,
	string(model.EventFlicker):  3,
	string(model.EventManifest): 4,
	string(model.EventSlam):     4,
	string(model.EventCurse):    5,
}

// IsCommand reports whether text is a command line.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), Prefix)
}

// Parse splits a command line. The name is lowercased; the value is
// everything after the first ':' with its case kept. ok is false for lines
// that are not commands.
func Parse(text string) (cmd Command, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, Prefix) {
		return Command{}, false
	}

	body := strings.TrimPrefix(text, Prefix)
	name, value, _ := strings.Cut(body, ":")
	return Command{
		Name:  strings.ToLower(strings.TrimSpace(name)),
		Value: strings.TrimSpace(value),
		Raw:   text,
	}, true
}

// Ghost returns the event type and intensity for a ghost command.
func (c Command) Ghost() (model.EventType, int, bool) {
	intensity, ok := ghostIntensity[c.Name]
	return model.EventType(c.Name), intensity, ok
}
