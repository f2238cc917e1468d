package executor

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"chessdolls/internal/assembler"
	"chessdolls/internal/streamer"
	"chessdolls/pkg/outputlog"
	"chessdolls/pkg/outputtype"
)

// Config configures an Executor.
type Config struct {
	ReadSize   int       // bytes per ready stream and readiness event
	Dir        string    // initial working directory of children, "" for ours
	Transcript io.Writer // optional record of every emitted line
}

// Result describes a finished command.
type Result struct {
	Command    string                `json:"command"`
	PID        int                   `json:"pid"`
	ExitCode   int                   `json:"exit_code"`
	StartTime  time.Time             `json:"start_time"`
	EndTime    time.Time             `json:"end_time"`
	Lines      map[string]int        `json:"lines"`       // emitted lines per stream
	OutputType outputtype.OutputType `json:"output_type"` // what stdout looked like
}

// Duration returns how long the command ran.
func (r *Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Executor runs one command at a time and streams its output as lines.
type Executor struct {
	mu         sync.Mutex
	readSize   int
	dir        string
	transcript *outputlog.Recorder
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		readSize: cfg.ReadSize,
		dir:      cfg.Dir,
		logger:   logger,
	}
	if cfg.Transcript != nil {
		e.transcript = outputlog.NewRecorder(cfg.Transcript, logger)
	}
	return e
}

// SetDir changes the working directory used for the following commands.
func (e *Executor) SetDir(directory string) error {
	info, err := os.Stat(directory)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", directory)
		}
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", directory)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.dir = directory
	return nil
}

// Dir returns the working directory used for commands, "" meaning ours.
func (e *Executor) Dir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir
}

// Execute runs argv to completion, pushing every line of its output to sink.
// A spawn failure returns a *streamer.SpawnError and emits nothing. A failure
// while waiting for output returns the partial result together with the
// error; lines emitted until then stay emitted. A non-zero exit status is
// not an error.
func (e *Executor) Execute(argv []string, sink assembler.Sink) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := &Result{
		Command:   strings.Join(argv, " "),
		StartTime: time.Now(),
		ExitCode:  -1,
	}

	s, err := streamer.Spawn(argv,
		streamer.WithReadSize(e.readSize),
		streamer.WithDir(e.dir),
		streamer.WithLogger(e.logger),
	)
	if err != nil {
		e.logger.Info("Failed to spawn command", "command", result.Command, "error", err)
		return nil, err
	}
	defer func() {
		if err := s.Close(); err != nil {
			e.logger.Error("Failed to release command pipes", "error", err, "pid", result.PID)
		}
	}()
	result.PID = s.PID()

	detector := outputtype.NewDetector()
	asm := assembler.New(e.tee(observe(sink, detector)))
	consumeErr := asm.Consume(s)

	result.EndTime = time.Now()
	result.Lines = asm.Lines()
	detector.Finish()
	outputType, reason := detector.GetDetectedType()
	result.OutputType = outputType
	if outputType == outputtype.OutputTypeFullscreen || outputType == outputtype.OutputTypeBinary {
		e.logger.Warn("Command output is not line oriented", "command", result.Command, "output_type", outputType, "reason", reason)
	}
	if consumeErr != nil {
		e.logger.Error("Command output streaming failed", "command", result.Command, "pid", result.PID, "error", consumeErr)
		return result, consumeErr
	}

	result.ExitCode = s.ExitCode()
	if err := s.Err(); err != nil {
		e.logger.Warn("Waiting for command reported an error", "command", result.Command, "error", err)
	}
	e.logger.Info("Command finished",
		"command", result.Command,
		"pid", result.PID,
		"exit_code", result.ExitCode,
		"duration", result.Duration(),
	)
	return result, nil
}

// observe feeds stdout lines to the detector on their way to sink.
func observe(sink assembler.Sink, detector *outputtype.Detector) assembler.Sink {
	return assembler.SinkFunc(func(stream, text string) {
		if stream == outputlog.Stdout && !detector.IsDetected() {
			detector.AnalyzeLine(text)
		}
		sink.AppendLine(stream, text)
	})
}

// tee also records every line in the transcript, one entry per line.
func (e *Executor) tee(sink assembler.Sink) assembler.Sink {
	if e.transcript == nil {
		return sink
	}
	recorder := e.transcript
	return assembler.SinkFunc(func(stream, text string) {
		sink.AppendLine(stream, text)
		recorder.Record(stream, []byte(text))
	})
}

// Close flushes the transcript.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transcript != nil {
		if err := e.transcript.Close(); err != nil {
			e.logger.Warn("Transcript is incomplete", "error", err)
		}
		e.transcript = nil
	}
}
