package streamer

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"

	"golang.org/x/sys/unix"
)

// Sentinel errors for streamer operations.
var (
	// ErrSpawn indicates the child process could not be created
	// (missing binary, permission denied, bad path).
	ErrSpawn = errors.New("streamer: spawn failed")

	// ErrReadinessWait indicates the readiness wait or a read on a ready
	// stream failed. The command is over; lines already emitted stay.
	ErrReadinessWait = errors.New("streamer: readiness wait failed")
)

// SpawnError describes a child process that could not be started.
// errors.Is(err, ErrSpawn) reports true for it; the underlying OS error
// stays reachable through Unwrap.
type SpawnError struct {
	Argv   []string
	Reason string // "command not found", "permission denied", ...
	Err    error
}

func (e *SpawnError) Error() string {
	name := ""
	if len(e.Argv) > 0 {
		name = e.Argv[0]
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Reason, name)
	}
	return fmt.Sprintf("%s: %s: %v", e.Reason, name, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }

// WaitError wraps a failure of the multiplexing primitive or of a read on
// a ready stream.
type WaitError struct {
	Op  string // "wait", "read" or "drain"
	Err error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *WaitError) Unwrap() error { return e.Err }

func (e *WaitError) Is(target error) bool { return target == ErrReadinessWait }

// spawnReason classifies a process start error.
func spawnReason(err error) string {
	var pathErr *fs.PathError
	switch {
	case errors.As(err, &pathErr) && pathErr.Op == "chdir":
		return "failed to change directory"
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, unix.ENOENT):
		return "command not found"
	case errors.Is(err, fs.ErrPermission), errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return "permission denied"
	case errors.Is(err, unix.ENOEXEC):
		return "exec format error"
	default:
		return "failed to start"
	}
}
