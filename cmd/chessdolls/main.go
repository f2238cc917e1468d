package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"chessdolls/internal/config"
	"chessdolls/internal/executor"
	"chessdolls/internal/logging"
	"chessdolls/internal/screen"
	"chessdolls/internal/shell"
	"chessdolls/internal/streamer"
	"chessdolls/pkg/outputlog"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	logFile     string
	logLevel    string
	transcript  string
	readSize    int
	maxLines    int
	historySize int

	replayStream string

	cfg         *config.Config
	logger      *slog.Logger
	closeLogger = func() error { return nil }
)

// exitCodeError carries a child's exit status out of the exec command.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

var rootCmd = &cobra.Command{
	Use:   "chessdolls",
	Short: "chessdolls - a minimal interactive shell",
	Long: `chessdolls runs commands typed at its prompt and shows their stdout and
stderr line by line as the output arrives.

Settings are read from CHESSDOLLS_* environment variables; flags override them.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isTerminal() {
			return fmt.Errorf("interactive mode needs a terminal, use 'chessdolls exec -- cmd' instead")
		}

		exec, err := newExecutor()
		if err != nil {
			return err
		}
		defer exec.Close()

		dispatcher := shell.NewDispatcher(exec, shell.NewHistory(cfg.HistorySize),
			shell.WithLogger(logger),
			shell.WithWidth(terminalWidth),
		)
		return screen.New(dispatcher, cfg.MaxLines, logger).Run()
	},
}

var execCmd = &cobra.Command{
	Use:   "exec [--] cmd [args...]",
	Short: "Run one command and print its output lines",
	Long: `Run one command through the same line streaming as the interactive shell.

Stdout lines are printed to stdout, stderr lines to stderr. chessdolls exits
with the exit status of the command.`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		exec, err := newExecutor()
		if err != nil {
			return err
		}
		defer exec.Close()

		result, err := exec.Execute(args, &writerSink{
			stdout: cmd.OutOrStdout(),
			stderr: cmd.ErrOrStderr(),
		})
		if err != nil {
			var spawnErr *streamer.SpawnError
			if errors.As(err, &spawnErr) {
				fmt.Fprintf(cmd.ErrOrStderr(), "chessdolls: %s: %s\n", spawnErr.Reason, args[0])
				if spawnErr.Reason == "command not found" {
					return &exitCodeError{code: 127}
				}
				return &exitCodeError{code: 126}
			}
			return err
		}
		if result.ExitCode != 0 {
			return &exitCodeError{code: result.ExitCode}
		}
		return nil
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <transcript>",
	Short: "Print the lines recorded in a transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open transcript: %w", err)
		}
		defer f.Close()

		return replay(f, replayStream, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

// setup loads the configuration, applies flags given on the command line and
// starts logging.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-file") {
		loaded.LogFile = logFile
	}
	if flags.Changed("log-level") {
		loaded.LogLevel = logLevel
	}
	if flags.Changed("transcript") {
		loaded.Transcript = transcript
	}
	if flags.Changed("read-size") {
		loaded.ReadSize = readSize
	}
	if flags.Changed("max-lines") {
		loaded.MaxLines = maxLines
	}
	if flags.Changed("history-size") {
		loaded.HistorySize = historySize
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	l, closeFn, err := logging.Setup(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	logger, closeLogger = l, closeFn
	logger.Debug("Configuration loaded", "command", cmd.Name(), "read_size", cfg.ReadSize, "max_lines", cfg.MaxLines)
	return nil
}

func newExecutor() (*executor.Executor, error) {
	execCfg := executor.Config{ReadSize: cfg.ReadSize}
	if cfg.Transcript != "" {
		f, err := os.OpenFile(cfg.Transcript, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open transcript: %w", err)
		}
		// The file stays open for the life of the process.
		execCfg.Transcript = f
	}
	return executor.New(execCfg, logger), nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// writerSink prints lines to the writer of their stream.
type writerSink struct {
	stdout io.Writer
	stderr io.Writer
}

func (w *writerSink) AppendLine(stream, text string) {
	out := w.stdout
	if stream == outputlog.Stderr {
		out = w.stderr
	}
	fmt.Fprintln(out, text)
}

func replay(r io.Reader, stream string, stdout, stderr io.Writer) error {
	reader, err := outputlog.NewOutputLogReader(r)
	if err != nil {
		return err
	}
	sink := &writerSink{stdout: stdout, stderr: stderr}
	for chunk := range reader.Channel() {
		if chunk.Error != nil {
			return fmt.Errorf("failed to read transcript: %w", chunk.Error)
		}
		if stream != "" && chunk.Stream != stream {
			continue
		}
		sink.AppendLine(chunk.Stream, string(chunk.Line))
	}
	return nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logFile, "log-file", "", "Log file, \"stderr\" to log to standard error (default: $CHESSDOLLS_LOG_FILE or $TMPDIR/chessdolls.log)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (default: $CHESSDOLLS_LOG_LEVEL or info)")
	flags.StringVar(&transcript, "transcript", "", "Append every output line to this transcript file (default: $CHESSDOLLS_TRANSCRIPT)")
	flags.IntVar(&readSize, "read-size", 0, "Bytes read per ready stream (default: $CHESSDOLLS_READ_SIZE or 1)")
	flags.IntVar(&maxLines, "max-lines", 0, "Lines kept in the output pane (default: $CHESSDOLLS_MAX_LINES or 10000)")
	flags.IntVar(&historySize, "history-size", 0, "Commands kept in the session history (default: $CHESSDOLLS_HISTORY_SIZE or 500)")

	execCmd.Flags().SetInterspersed(false)
	replayCmd.Flags().StringVar(&replayStream, "stream", "", "Only print this stream (stdout or stderr)")

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(replayCmd)
}

func main() {
	err := rootCmd.Execute()
	if cerr := closeLogger(); cerr != nil {
		fmt.Fprintln(os.Stderr, cerr)
	}
	if err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
