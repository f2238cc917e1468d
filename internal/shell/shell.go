// Package shell turns a submitted input line into either a built-in action or
// an external command run through the executor.
package shell

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"chessdolls/internal/assembler"
	"chessdolls/internal/executor"
	"chessdolls/internal/streamer"
	"chessdolls/internal/sysmon"

	"github.com/mattn/go-shellwords"
)

const (
	StatusNoop    = "Exec: NOOP"
	StatusExiting = "Exiting..."
)

// Executor runs external commands. *executor.Executor implements it.
type Executor interface {
	Execute(argv []string, sink assembler.Sink) (*executor.Result, error)
	SetDir(directory string) error
	Dir() string
}

// Outcome tells the display what a dispatched line did.
type Outcome struct {
	Status string
	Clear  bool // empty the output pane
	Quit   bool
	Result *executor.Result // set for external commands that ran
	Err    error
}

// Dispatcher runs one input line at a time.
type Dispatcher struct {
	exec      Executor
	history   *History
	logger    *slog.Logger
	width     func() int
	processes func() ([]*sysmon.ProcessInfo, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWidth sets how the display width used to cut `ps` rows is obtained.
func WithWidth(width func() int) Option {
	return func(d *Dispatcher) { d.width = width }
}

// WithProcessLister replaces the process source of the `ps` built-in.
func WithProcessLister(list func() ([]*sysmon.ProcessInfo, error)) Option {
	return func(d *Dispatcher) { d.processes = list }
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func NewDispatcher(exec Executor, history *History, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		exec:    exec,
		history: history,
		logger:  slog.Default(),
		width:   func() int { return 0 },
		processes: func() ([]*sysmon.ProcessInfo, error) {
			return sysmon.GetUserProcesses(uint32(os.Getuid()))
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// History returns the commands dispatched in this session.
func (d *Dispatcher) History() *History {
	return d.history
}

// RunningStatus is the status shown while line executes.
func RunningStatus(line string) string {
	return fmt.Sprintf("Exec: cmd(%s)", line)
}

// Tokenize splits line into words using shell quoting rules. Environment
// variables are expanded; command substitution is not. Shell operators are
// rejected since no shell interprets them.
func Tokenize(line string) ([]string, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command line: %w", err)
	}
	if parser.Position >= 0 {
		return nil, errors.New("shell operators such as | or ; need sh -c")
	}
	return args, nil
}

// Dispatch runs line and blocks until it is done. Output lines go to sink.
func (d *Dispatcher) Dispatch(line string, sink assembler.Sink) Outcome {
	if strings.TrimSpace(line) == "" {
		return Outcome{Status: StatusNoop}
	}
	d.history.Add(line)

	argv, err := Tokenize(line)
	if err != nil {
		d.logger.Info("Rejected input line", "line", line, "error", err)
		return Outcome{Status: "Error: " + err.Error(), Err: err}
	}
	if len(argv) == 0 {
		return Outcome{Status: StatusNoop}
	}

	if builtin, ok := builtins[argv[0]]; ok {
		outcome := builtin(d, argv[1:], sink)
		if outcome.Err != nil {
			d.logger.Warn("Built-in command failed", "command", argv[0], "error", outcome.Err)
			outcome.Status = "Error: " + outcome.Err.Error()
		} else if outcome.Status == "" {
			outcome.Status = RunningStatus(line)
		}
		return outcome
	}

	return d.external(line, argv, sink)
}

func (d *Dispatcher) external(line string, argv []string, sink assembler.Sink) Outcome {
	result, err := d.exec.Execute(argv, sink)
	if err != nil {
		var spawnErr *streamer.SpawnError
		if errors.As(err, &spawnErr) {
			return Outcome{Status: fmt.Sprintf("Error: %s: %s", spawnErr.Reason, argv[0]), Err: err}
		}
		return Outcome{Status: "Error: " + err.Error(), Result: result, Err: err}
	}
	return Outcome{
		Status: fmt.Sprintf("Done: cmd(%s) exit %d", line, result.ExitCode),
		Result: result,
	}
}
