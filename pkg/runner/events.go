package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/mariozechner/bytebox/pkg/workspace"
)

// ErrUnknownEvent is returned by Apply for an event type it does not handle.
var ErrUnknownEvent = errors.New("unknown event")

// EventType names a user-facing control.
type EventType string

const (
	EventEdit           EventType = "edit"
	EventSwitchFile     EventType = "switch_file"
	EventCreateFile     EventType = "create_file"
	EventDeleteFile     EventType = "delete_file"
	EventSwitchLanguage EventType = "switch_language"
	EventSetInput       EventType = "set_input"
	EventToggleInput    EventType = "toggle_input"
	EventRun            EventType = "run"
	EventDismiss        EventType = "dismiss"
)

// Event is one user action. Content carries the text for edit and set_input,
// Name the file for the file events and Language the target of switch_language.
type Event struct {
	Type     EventType `json:"type"`
	Content  string    `json:"content,omitempty"`
	Name     string    `json:"name,omitempty"`
	Language string    `json:"language,omitempty"`
}

// Apply dispatches ev. A run rejected because another is pending is not an error.
func (r *Runner) Apply(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventEdit:
		return r.Do(func(ws *workspace.Workspace) error {
			ws.EditActiveFile(ev.Content)
			return nil
		})
	case EventSwitchFile:
		return r.Do(func(ws *workspace.Workspace) error { return ws.SwitchFile(ev.Name) })
	case EventCreateFile:
		return r.Do(func(ws *workspace.Workspace) error { return ws.CreateFile(ev.Name) })
	case EventDeleteFile:
		return r.Do(func(ws *workspace.Workspace) error { return ws.DeleteFile(ev.Name) })
	case EventSwitchLanguage:
		return r.Do(func(ws *workspace.Workspace) error { return ws.SwitchLanguage(ev.Language) })
	case EventSetInput:
		r.SetInput(ev.Content)
	case EventToggleInput:
		r.ToggleInput()
	case EventRun:
		r.Start(ctx)
	case EventDismiss:
		r.Dismiss()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	return nil
}
