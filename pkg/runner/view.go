package runner

import (
	"github.com/mariozechner/bytebox/pkg/execution"
	"github.com/mariozechner/bytebox/pkg/language"
	"github.com/mariozechner/bytebox/pkg/session"
	"github.com/mariozechner/bytebox/pkg/workspace"
)

// View is a snapshot of everything a shell renders.
type View struct {
	Files      []workspace.File    `json:"files"`
	ActiveFile string              `json:"activeFile"`
	Language   string              `json:"language"`
	Languages  []language.Language `json:"languages"`
	Buffer     string              `json:"buffer"`
	Input      string              `json:"input"`
	ShowInput  bool                `json:"showInput"`
	Run        RunView             `json:"run"`
}

// RunView describes the run session. Label, Output and Result are only set
// once the run is resolved.
type RunView struct {
	State     session.State     `json:"state"`
	RequestID string            `json:"requestId,omitempty"`
	Label     string            `json:"label,omitempty"`
	Output    string            `json:"output,omitempty"`
	Failed    bool              `json:"failed"`
	Result    *execution.Result `json:"result,omitempty"`
}

// View returns the current snapshot.
func (r *Runner) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

func (r *Runner) viewLocked() View {
	v := View{
		Files:      r.ws.Files(),
		ActiveFile: r.ws.ActiveFile(),
		Language:   r.ws.ActiveLanguage(),
		Languages:  r.ws.Languages().List(),
		Buffer:     r.ws.Buffer(),
		Input:      r.stdin,
		ShowInput:  r.showInput,
		Run:        RunView{State: r.sess.State()},
	}
	if r.sess.State() != session.Idle {
		v.Run.RequestID = r.sess.Request().ID
	}
	if r.sess.State() == session.Resolved {
		res := r.sess.Result()
		v.Run.Label = res.Label()
		v.Run.Output = res.Output(r.sess.StartedAt())
		v.Run.Failed = res.Failed()
		v.Run.Result = &res
	}
	return v
}
