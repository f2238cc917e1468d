package screen

import "chessdolls/internal/shell"

// lineMsg carries one output line from the running command into the update loop.
type lineMsg struct {
	Stream string
	Text   string
}

// commandDoneMsg is delivered after every line of the command.
type commandDoneMsg struct {
	Outcome shell.Outcome
}
