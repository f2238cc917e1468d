// Package streamer runs a child process and exposes its stdout and stderr as
// a pull-based sequence of output chunks. The sequence ends only after the
// process has exited and everything left in the pipes has been drained.
package streamer

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"chessdolls/pkg/outputlog"

	"golang.org/x/sys/unix"
)

// DefaultReadSize reads one byte per ready stream and readiness event.
const DefaultReadSize = 1

type options struct {
	readSize int
	dir      string
	env      []string
	logger   *slog.Logger
}

// Option configures a Streamer.
type Option func(*options)

// WithReadSize sets the maximum number of bytes read from a ready stream per
// readiness event. Values below 1 are clamped to 1.
func WithReadSize(n int) Option {
	return func(o *options) { o.readSize = n }
}

// WithDir sets the working directory of the child.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithEnv sets the environment of the child. nil inherits ours.
func WithEnv(env []string) Option {
	return func(o *options) { o.env = env }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	o := options{readSize: DefaultReadSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.readSize < 1 {
		o.readSize = 1
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// process is the reaped side of a spawned child.
type process struct {
	cmd    *exec.Cmd
	exited chan struct{} // closed once cmd.Wait returned
	err    error         // result of cmd.Wait, valid after exited is closed
}

// Streamer yields the output of one child process. It is one-shot and must be
// used from a single goroutine.
type Streamer struct {
	mux     Multiplexer
	proc    *process
	buf     []byte
	pending []outputlog.Chunk
	done    bool
	err     error
	closed  bool
	logger  *slog.Logger
}

// New returns a Streamer over an already running source of output. Spawn is
// the usual entry point; New exists for alternative multiplexers.
func New(mux Multiplexer, opts ...Option) *Streamer {
	o := buildOptions(opts)
	return &Streamer{
		mux:    mux,
		buf:    make([]byte, o.readSize),
		logger: o.logger,
	}
}

// Spawn starts argv[0] with argv[1:] and streams its stdout and stderr.
// On failure it returns a *SpawnError and leaves no descriptors behind.
func Spawn(argv []string, opts ...Option) (*Streamer, error) {
	o := buildOptions(opts)
	if len(argv) == 0 {
		return nil, &SpawnError{Reason: "empty command"}
	}

	var pipes [3][2]int
	created := 0
	cleanup := func() {
		for i := 0; i < created; i++ {
			_ = unix.Close(pipes[i][0])
			_ = unix.Close(pipes[i][1])
		}
	}
	for i := range pipes {
		if err := unix.Pipe2(pipes[i][:], unix.O_CLOEXEC); err != nil {
			cleanup()
			return nil, &SpawnError{Argv: argv, Reason: "failed to create pipe", Err: err}
		}
		created++
	}
	stdoutR, stdoutW := pipes[0][0], pipes[0][1]
	stderrR, stderrW := pipes[1][0], pipes[1][1]
	exitR, exitW := pipes[2][0], pipes[2][1]

	for _, fd := range []int{stdoutR, stderrR} {
		if err := unix.SetNonblock(fd, true); err != nil {
			cleanup()
			return nil, &SpawnError{Argv: argv, Reason: "failed to configure pipe", Err: err}
		}
	}

	childStdout := os.NewFile(uintptr(stdoutW), "stdout")
	childStderr := os.NewFile(uintptr(stderrW), "stderr")

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = o.dir
	cmd.Env = o.env
	cmd.Stdout = childStdout
	cmd.Stderr = childStderr

	err := cmd.Start()

	// The child holds its own copies of the write ends now.
	_ = childStdout.Close()
	_ = childStderr.Close()

	if err != nil {
		_ = unix.Close(stdoutR)
		_ = unix.Close(stderrR)
		_ = unix.Close(exitR)
		_ = unix.Close(exitW)
		return nil, &SpawnError{Argv: argv, Reason: spawnReason(err), Err: err}
	}

	proc := &process{cmd: cmd, exited: make(chan struct{})}
	go func() {
		proc.err = cmd.Wait()
		close(proc.exited)
		_ = unix.Close(exitW)
	}()

	o.logger.Debug("Spawned child process", "argv", argv, "pid", cmd.Process.Pid)

	s := New(newPollMux(stdoutR, stderrR, exitR), opts...)
	s.proc = proc
	return s, nil
}

// Next returns the next chunk. While the process runs it blocks until a
// stream has data; once the process has exited it yields what is left in
// the pipes and then returns io.EOF on every call. A failure of the
// readiness wait is returned as a *WaitError and is final.
func (s *Streamer) Next() (outputlog.Chunk, error) {
	for {
		if len(s.pending) > 0 {
			chunk := s.pending[0]
			s.pending = s.pending[1:]
			return chunk, nil
		}
		if s.err != nil {
			return outputlog.Chunk{}, s.err
		}
		if s.done {
			return outputlog.Chunk{}, io.EOF
		}

		ready, exited, err := s.mux.Wait()
		if err != nil {
			s.fail(&WaitError{Op: "wait", Err: err})
			continue
		}
		if exited {
			s.drain()
			continue
		}

		for _, stream := range ready {
			n, err := s.mux.Read(stream, s.buf)
			if n > 0 {
				s.queue(stream, s.buf[:n])
			}
			if err != nil && !errors.Is(err, io.EOF) {
				s.fail(&WaitError{Op: "read", Err: err})
				break
			}
			// n == 0: transient, or the stream reached EOF and the
			// multiplexer stops watching it. Either way the sequence goes
			// on until the process exits.
		}
	}
}

func (s *Streamer) drain() {
	for _, stream := range outputlog.Streams {
		data, err := s.mux.Drain(stream)
		if len(data) > 0 {
			s.queue(stream, data)
		}
		if err != nil {
			s.fail(&WaitError{Op: "drain", Err: err})
			return
		}
	}
	s.done = true
}

func (s *Streamer) queue(stream string, data []byte) {
	s.pending = append(s.pending, outputlog.Chunk{
		Stream:    stream,
		Timestamp: time.Now().UTC(),
		Line:      append([]byte(nil), data...),
	})
}

func (s *Streamer) fail(err error) {
	s.logger.Error("Output streaming failed", "error", err)
	s.err = err
	s.done = true
}

// PID returns the child's process id, or 0 when there is no child.
func (s *Streamer) PID() int {
	if s.proc == nil {
		return 0
	}
	return s.proc.cmd.Process.Pid
}

// Exited reports whether the child has been reaped. Without a child it
// reports whether the sequence is exhausted.
func (s *Streamer) Exited() bool {
	if s.proc == nil {
		return s.done
	}
	select {
	case <-s.proc.exited:
		return true
	default:
		return false
	}
}

// ExitCode returns the child's exit status, -1 while it is running or when
// it was killed by a signal.
func (s *Streamer) ExitCode() int {
	if s.proc == nil {
		if s.done && s.err == nil {
			return 0
		}
		return -1
	}
	if !s.Exited() || s.proc.cmd.ProcessState == nil {
		return -1
	}
	return s.proc.cmd.ProcessState.ExitCode()
}

// Err returns the error of waiting for the child that is not an exit status,
// for example an I/O error reported by exec.
func (s *Streamer) Err() error {
	if s.proc == nil || !s.Exited() {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(s.proc.err, &exitErr) {
		return nil
	}
	return s.proc.err
}

// Close releases the pipes. A child that is still running is killed and
// reaped. Close is idempotent.
func (s *Streamer) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.proc != nil {
		if !s.Exited() {
			s.logger.Debug("Killing unfinished child process", "pid", s.PID())
			_ = s.proc.cmd.Process.Kill()
		}
		<-s.proc.exited
	}
	return s.mux.Close()
}
