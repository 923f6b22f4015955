package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/mariozechner/bytebox/pkg/execution"
	"github.com/mariozechner/bytebox/pkg/runner"
	"github.com/mariozechner/bytebox/pkg/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	tabStyle       = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("245"))
	activeTabStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("205")).Bold(true).Underline(true)
	languageStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true) // Red
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
)

const (
	inputHeight  = 3
	outputHeight = 10
	helpText     = `# ByteBox

| Key | Action |
|-----|--------|
| F5 / ctrl+r | Run the active file |
| F2 | New file |
| F3 | Next file |
| F4 | Delete the active file |
| F6 | Next language |
| F7 | Show or hide stdin (tab switches focus) |
| F8 / esc | Close the output |
| F1 | Toggle this help |
| ctrl+c | Quit |

The *main* file cannot be deleted. Switching language replaces the code only
while it is empty or still the previous language's template.
`
)

type mode int

const (
	modeEdit mode = iota
	modeInput
	modeNewFile
	modeConfirmDelete
	modeHelp
)

// runFinishedMsg carries the result of a run back into the update loop.
type runFinishedMsg struct {
	id     string
	result execution.Result
}

type model struct {
	ctx      context.Context
	runner   *runner.Runner
	executor runner.Executor
	view     runner.View

	mode   mode
	status string
	err    error
	width  int
	height int

	// UI Components
	editor   textarea.Model
	input    textarea.Model
	prompt   textinput.Model
	output   viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
}

func initialModel(ctx context.Context, rn *runner.Runner, executor runner.Executor) model {
	ed := textarea.New()
	ed.Placeholder = "Write your code here..."
	ed.ShowLineNumbers = true
	ed.CharLimit = 0
	ed.MaxHeight = 0
	ed.Focus()

	in := textarea.New()
	in.Placeholder = "stdin"
	in.ShowLineNumbers = false
	in.CharLimit = 0
	in.SetHeight(inputHeight)
	// Remove cursor line styling
	in.FocusedStyle.CursorLine = lipgloss.NewStyle()

	ti := textinput.New()
	ti.Placeholder = "file name"
	ti.Prompt = "New file: "

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	// Use "light" style to avoid terminal queries that leak into input
	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(80),
	)

	m := model{
		ctx:      ctx,
		runner:   rn,
		executor: executor,
		editor:   ed,
		input:    in,
		prompt:   ti,
		output:   viewport.New(80, outputHeight),
		spinner:  sp,
		renderer: r,
		width:    80,
		height:   24,
	}
	m.refresh()
	m.mount()
	return m
}

func (m model) Init() tea.Cmd {
	return textarea.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("light"),
			glamour.WithWordWrap(m.width-4),
		)
		m.layout()
		return m, nil

	case runFinishedMsg:
		if !m.runner.Complete(msg.id, msg.result) {
			slog.Warn("Run result arrived for a run that is no longer pending", "runID", msg.id)
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.view.Run.State != session.Pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.mode {
		case modeHelp:
			return m.updateHelp(msg)
		case modeNewFile:
			return m.updateNewFile(msg)
		case modeConfirmDelete:
			return m.updateConfirmDelete(msg)
		default:
			return m.updateEditing(msg)
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	cmds = append(cmds, cmd)
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.output, cmd = m.output.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status, m.err = "", nil

	switch msg.String() {
	case "f5", "ctrl+r":
		next, cmd := m.startRun()
		if cmd == nil {
			return next, nil
		}
		return next, tea.Batch(next.spinner.Tick, cmd)
	case "f2":
		m.mode = modeNewFile
		m.prompt.SetValue("")
		m.editor.Blur()
		m.input.Blur()
		return m, m.prompt.Focus()
	case "f3":
		m.apply(runner.Event{Type: runner.EventSwitchFile, Name: m.nextFile()})
		return m, nil
	case "f4":
		m.mode = modeConfirmDelete
		return m, nil
	case "f6":
		m.apply(runner.Event{Type: runner.EventSwitchLanguage, Language: m.nextLanguage()})
		return m, nil
	case "f7":
		m.apply(runner.Event{Type: runner.EventToggleInput})
		if m.view.ShowInput {
			m.focus(modeInput)
		} else {
			m.focus(modeEdit)
		}
		m.layout()
		return m, nil
	case "tab":
		if m.view.ShowInput {
			if m.mode == modeInput {
				m.focus(modeEdit)
			} else {
				m.focus(modeInput)
			}
			return m, nil
		}
	case "f8", "esc":
		m.apply(runner.Event{Type: runner.EventDismiss})
		m.layout()
		return m, nil
	case "f1":
		m.mode = modeHelp
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.output, cmd = m.output.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	if m.mode == modeInput {
		m.input, cmd = m.input.Update(msg)
		if v := m.input.Value(); v != m.view.Input {
			m.apply(runner.Event{Type: runner.EventSetInput, Content: v})
		}
		return m, cmd
	}

	m.editor, cmd = m.editor.Update(msg)
	if v := m.editor.Value(); v != m.view.Buffer {
		m.apply(runner.Event{Type: runner.EventEdit, Content: v})
	}
	return m, cmd
}

func (m model) updateHelp(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "f1", "q":
		m.focus(modeEdit)
	}
	return m, nil
}

func (m model) updateNewFile(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.prompt.Blur()
		m.focus(modeEdit)
		return m, nil
	case tea.KeyEnter:
		m.prompt.Blur()
		m.focus(modeEdit)
		m.apply(runner.Event{Type: runner.EventCreateFile, Name: m.prompt.Value()})
		return m, nil
	}
	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m model) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.mode = modeEdit
		m.apply(runner.Event{Type: runner.EventDeleteFile, Name: m.view.ActiveFile})
	case "n", "N", "esc":
		m.mode = modeEdit
	}
	return m, nil
}

// startRun triggers a run and returns the command that executes it, or nil
// when a run is already pending.
func (m model) startRun() (model, tea.Cmd) {
	req, ok := m.runner.Trigger()
	if !ok {
		m.status = "A run is already in progress."
		return m, nil
	}
	m.refresh()
	m.layout()
	return m, runCmd(m.ctx, m.executor, req)
}

func runCmd(ctx context.Context, executor runner.Executor, req execution.Request) tea.Cmd {
	return func() tea.Msg {
		return runFinishedMsg{id: req.ID, result: executor.Run(ctx, req)}
	}
}

// apply sends ev to the runner and resyncs the widgets. Failures go to the
// status line.
func (m *model) apply(ev runner.Event) {
	before := m.view
	if err := m.runner.Apply(m.ctx, ev); err != nil {
		slog.Debug("Operation rejected", "type", ev.Type, "error", err)
		m.err = err
		return
	}
	m.refresh()
	if before.ActiveFile != m.view.ActiveFile || before.Language != m.view.Language || ev.Type == runner.EventSwitchLanguage {
		m.mount()
	}
}

// refresh pulls a fresh view from the runner.
func (m *model) refresh() {
	m.view = m.runner.View()
	if m.view.Run.State == session.Resolved {
		m.output.SetContent(m.view.Run.Output)
		m.output.GotoTop()
	}
}

// mount loads the active file's buffer into the editor widget.
func (m *model) mount() {
	if m.editor.Value() != m.view.Buffer {
		m.editor.SetValue(m.view.Buffer)
	}
	if m.input.Value() != m.view.Input {
		m.input.SetValue(m.view.Input)
	}
}

func (m *model) focus(md mode) {
	m.mode = md
	if md == modeInput {
		m.editor.Blur()
		m.input.Focus()
		return
	}
	m.input.Blur()
	m.editor.Focus()
}

func (m *model) layout() {
	h := m.height - 4 // Header + status + footer
	if m.view.ShowInput {
		h -= inputHeight + 1
	}
	if m.view.Run.State != session.Idle {
		h -= outputHeight + 1
	}
	if h < 3 {
		h = 3
	}
	m.editor.SetWidth(m.width)
	m.editor.SetHeight(h)
	m.input.SetWidth(m.width)
	m.output.Width = m.width
	m.output.Height = outputHeight
}

func (m model) nextFile() string {
	files := m.view.Files
	for i, f := range files {
		if f.Name == m.view.ActiveFile {
			return files[(i+1)%len(files)].Name
		}
	}
	return m.view.ActiveFile
}

func (m model) nextLanguage() string {
	langs := m.view.Languages
	for i, l := range langs {
		if l.ID == m.view.Language {
			return langs[(i+1)%len(langs)].ID
		}
	}
	return m.view.Language
}

func (m model) View() string {
	if m.mode == modeHelp {
		help, err := m.renderer.Render(helpText)
		if err != nil {
			help = helpText
		}
		return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("ByteBox Help"), help, footerStyle.Render("esc to close"))
	}

	sections := []string{m.headerView(), m.editor.View()}

	if m.view.ShowInput {
		sections = append(sections, labelStyle.Render("stdin"), m.input.View())
	}

	switch m.view.Run.State {
	case session.Pending:
		sections = append(sections, fmt.Sprintf("%s Running %s...", m.spinner.View(), m.view.Language))
	case session.Resolved:
		style := successStyle
		if m.view.Run.Failed {
			style = errorStyle
		}
		sections = append(sections, style.Render(m.view.Run.Label), m.output.View())
	}

	sections = append(sections, m.statusView(), m.footerView())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m model) headerView() string {
	tabs := make([]string, 0, len(m.view.Files))
	for _, f := range m.view.Files {
		if f.Name == m.view.ActiveFile {
			tabs = append(tabs, activeTabStyle.Render(f.Name))
		} else {
			tabs = append(tabs, tabStyle.Render(f.Name))
		}
	}
	lang := m.view.Language
	for _, l := range m.view.Languages {
		if l.ID == m.view.Language {
			lang = l.DisplayName
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, titleStyle.Render("ByteBox"), " ", languageStyle.Render(lang), " ", strings.Join(tabs, ""))
}

func (m model) statusView() string {
	switch m.mode {
	case modeNewFile:
		return m.prompt.View()
	case modeConfirmDelete:
		return errorStyle.Render(fmt.Sprintf("Delete %q? (y/n)", m.view.ActiveFile))
	}
	if m.err != nil {
		return errorStyle.Render("Error: " + m.err.Error())
	}
	return m.status
}

func (m model) footerView() string {
	return footerStyle.Render("F5 run • F2 new • F3 next file • F4 delete • F6 language • F7 stdin • F1 help • ctrl+c quit")
}
