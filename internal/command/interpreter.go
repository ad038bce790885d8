package command

import (
	"context"
	"fmt"
	"strings"

	"ghosthq/internal/model"
)

// Actions is what the interpreter drives. *backend.Facade implements it.
type Actions interface {
	SendMessage(ctx context.Context, text string, isCommand bool) error
	TriggerEvent(ctx context.Context, t model.EventType, intensity int) error
	UpdateStatus(ctx context.Context, upd model.SquadStatusUpdate) error
	SaveEvidence(ctx context.Context, evidence string) error
	DisplayName() string
}

// Interpreter runs chat lines against Actions and records what it did.
type Interpreter struct {
	actions Actions
	log     *ActivityLog
}

// NewInterpreter creates an interpreter writing to log.
func NewInterpreter(actions Actions, log *ActivityLog) *Interpreter {
	return &Interpreter{actions: actions, log: log}
}

// Log returns the activity log.
func (in *Interpreter) Log() *ActivityLog {
	return in.log
}

// Submit handles one line typed into chat. Command lines are executed and
// then, like every other line, posted to chat.
func (in *Interpreter) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	cmd, isCommand := Parse(text)
	if isCommand {
		if err := in.Execute(ctx, cmd); err != nil {
			return err
		}
	}
	return in.actions.SendMessage(ctx, text, isCommand)
}

// Execute runs cmd. Ghost commands are logged when their event comes back
// through the event subscription.
func (in *Interpreter) Execute(ctx context.Context, cmd Command) error {
	if t, intensity, ok := cmd.Ghost(); ok {
		return in.actions.TriggerEvent(ctx, t, intensity)
	}

	switch cmd.Name {
	case "dead", "revive":
		if cmd.Value == "" {
			return nil
		}
		dead := cmd.Name == "dead"
		if err := in.actions.UpdateStatus(ctx, model.SquadStatusUpdate{IsDead: model.BoolPtr(dead)}); err != nil {
			return fmt.Errorf("updating status: %w", err)
		}
		if dead {
			in.log.Add(KindEvent, fmt.Sprintf("%s has been killed by the ghost!", cmd.Value))
		} else {
			in.log.Add(KindSystem, fmt.Sprintf("%s has been revived.", cmd.Value))
		}

	case "location":
		if cmd.Value == "" {
			return nil
		}
		if err := in.actions.UpdateStatus(ctx, model.SquadStatusUpdate{Location: model.StringPtr(cmd.Value)}); err != nil {
			return fmt.Errorf("updating location: %w", err)
		}
		in.log.Add(KindSystem, fmt.Sprintf("%s moved to: %s", in.actions.DisplayName(), cmd.Value))

	case "evidence":
		if cmd.Value == "" {
			return nil
		}
		evidence := strings.ToUpper(cmd.Value)
		if err := in.actions.SaveEvidence(ctx, evidence); err != nil {
			return fmt.Errorf("saving evidence: %w", err)
		}
		in.log.Add(KindCommand, "Evidence logged: "+evidence)

	default:
		in.log.Add(KindCommand, "Unknown command: "+cmd.Name)
	}

	return nil
}

// ChangeMap sets the acting agent's investigation map.
func (in *Interpreter) ChangeMap(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if err := in.actions.UpdateStatus(ctx, model.SquadStatusUpdate{Map: model.StringPtr(name)}); err != nil {
		return fmt.Errorf("updating map: %w", err)
	}
	in.log.Add(KindSystem, "Investigation location set: "+name)
	return nil
}
