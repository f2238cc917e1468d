// Package screen is the interactive terminal front-end: it shows command
// output, reads input lines and reports status.
package screen

import (
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
)

// Screen owns the bubbletea program. It is the sink of every command's lines.
type Screen struct {
	program *tea.Program
	logger  *slog.Logger
}

func New(dispatcher Dispatcher, maxLines int, logger *slog.Logger, opts ...tea.ProgramOption) *Screen {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Screen{logger: logger}
	model := NewModel(dispatcher, s, maxLines)
	s.program = tea.NewProgram(model, append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)
	return s
}

// AppendLine hands a line to the update loop, which alone mutates the output.
func (s *Screen) AppendLine(stream, text string) {
	s.program.Send(lineMsg{Stream: stream, Text: text})
}

// Run blocks until the user exits.
func (s *Screen) Run() error {
	s.logger.Info("Starting interactive shell")
	if _, err := s.program.Run(); err != nil {
		return fmt.Errorf("failed to run terminal UI: %w", err)
	}
	s.logger.Info("Interactive shell stopped")
	return nil
}
