// Package relay forwards ghost events to a Discord channel.
package relay

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/gtuk/discordwebhook"

	"ghosthq/internal/model"
)

const (
	username    = "Ghost HQ"
	queueLength = 32
)

// Discord posts every ghost event it observes to a webhook.
type Discord struct {
	url    string
	queue  chan model.GhostEvent
	logger *log.Logger
}

// NewDiscord creates a relay for webhookURL. A nil logger uses log.Default().
func NewDiscord(webhookURL string, logger *log.Logger) *Discord {
	if logger == nil {
		logger = log.Default()
	}
	return &Discord{
		url:    webhookURL,
		queue:  make(chan model.GhostEvent, queueLength),
		logger: logger,
	}
}

// Observe is registered with hub.Listen. It never blocks the hub.
func (d *Discord) Observe(p model.Payload) {
	event, ok := p.(model.GhostEvent)
	if !ok {
		return
	}
	select {
	case d.queue <- event:
	default:
		d.logger.Printf("[Discord] ⚠️  Relay queue full, dropping event %s", event.ID)
	}
}

// Run posts queued events until ctx is done.
func (d *Discord) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.queue:
			if err := d.post(event); err != nil {
				d.logger.Printf("[Discord] ❌ Failed to relay event %s: %v", event.ID, err)
				continue
			}
			d.logger.Printf("[Discord] ✅ Relayed %s event %s", event.Type, event.ID)
		}
	}
}

func (d *Discord) post(event model.GhostEvent) error {
	name := username
	content := Format(event)
	return discordwebhook.SendMessage(d.url, discordwebhook.Message{
		Username: &name,
		Content:  &content,
	})
}

// Format renders event as a Discord message line.
func Format(event model.GhostEvent) string {
	line := fmt.Sprintf("👻 **%s** (intensity %d): %s",
		strings.ToUpper(string(event.Type)), event.Intensity, event.Message)
	if event.TriggeredBy != nil && *event.TriggeredBy != "" {
		line += fmt.Sprintf(" (triggered by %s)", *event.TriggeredBy)
	}
	return line
}
