package screen

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"chessdolls/internal/assembler"
	"chessdolls/internal/shell"
	"chessdolls/pkg/outputlog"
)

const (
	promptText       = "cmd: "
	statusCompletion = "Completion time!"
)

// Dispatcher runs a submitted line. *shell.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(line string, sink assembler.Sink) shell.Outcome
}

type outputLine struct {
	stream string
	text   string
}

// Model is the bubbletea model of the shell: an output pane, a prompt line
// and a status line.
type Model struct {
	dispatcher Dispatcher
	sink       assembler.Sink
	viewport   viewport.Model
	input      textinput.Model
	lines      []outputLine
	maxLines   int
	status     string
	running    bool
	ready      bool
	quitting   bool
	width      int
	height     int
}

// NewModel creates the model. Lines of dispatched commands are handed to
// sink, which must deliver them back to the program as lineMsg values.
func NewModel(dispatcher Dispatcher, sink assembler.Sink, maxLines int) Model {
	ti := textinput.New()
	ti.Prompt = promptText
	ti.PromptStyle = promptStyle
	ti.CharLimit = 0
	ti.Focus()

	if maxLines < 1 {
		maxLines = 1
	}
	return Model{
		dispatcher: dispatcher,
		sink:       sink,
		input:      ti,
		maxLines:   maxLines,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case lineMsg:
		m.appendLine(msg.Stream, msg.Text)
		return m, nil

	case commandDoneMsg:
		return m.handleDone(msg.Outcome)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlD, tea.KeyCtrlC:
		m.status = shell.StatusExiting
		m.quitting = true
		return m, tea.Quit

	case tea.KeyTab:
		m.status = statusCompletion
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyEnter:
		if m.running {
			return m, nil
		}
		return m.submit(m.input.Value())
	}

	if m.running {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	m.input.Reset()
	if strings.TrimSpace(line) == "" {
		m.status = shell.StatusNoop
		return m, nil
	}

	m.running = true
	m.input.Blur()
	m.status = shell.RunningStatus(line)
	return m, dispatchCmd(m.dispatcher, line, m.sink)
}

// dispatchCmd runs line off the update loop. Its lines reach the program
// through the sink before the returned completion message does.
func dispatchCmd(dispatcher Dispatcher, line string, sink assembler.Sink) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg{Outcome: dispatcher.Dispatch(line, sink)}
	}
}

func (m Model) handleDone(outcome shell.Outcome) (tea.Model, tea.Cmd) {
	m.running = false
	m.status = outcome.Status
	if outcome.Clear {
		m.lines = nil
		m.refresh()
	}
	if outcome.Quit {
		m.quitting = true
		return m, tea.Quit
	}
	m.input.Focus()
	return m, textinput.Blink
}

func (m *Model) appendLine(stream, text string) {
	m.lines = append(m.lines, outputLine{stream: stream, text: text})
	if over := len(m.lines) - m.maxLines; over > 0 {
		m.lines = append(m.lines[:0:0], m.lines[over:]...)
	}
	m.refresh()
	m.viewport.GotoBottom()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	rendered := make([]string, len(m.lines))
	for i, line := range m.lines {
		rendered[i] = renderLine(line.stream, line.text)
	}
	m.viewport.SetContent(strings.Join(rendered, "\n"))
}

func renderLine(stream, text string) string {
	if stream == outputlog.Stderr {
		return stderrStyle.Render(text)
	}
	return text
}

// layout gives the output pane everything except the prompt and status lines.
func (m *Model) layout() {
	paneHeight := m.height - 2
	if paneHeight < 1 {
		paneHeight = 1
	}
	if !m.ready {
		m.viewport = viewport.New(m.width, paneHeight)
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = paneHeight
	}
	m.input.Width = m.width - len(promptText) - 1
	m.refresh()
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	status := statusStyle.Width(m.width).Render(m.status)
	return m.viewport.View() + "\n" + m.input.View() + "\n" + status
}

// Status returns the text of the status line.
func (m Model) Status() string {
	return m.status
}

// Running reports whether a command is executing.
func (m Model) Running() bool {
	return m.running
}
