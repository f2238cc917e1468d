package streamer

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chessdolls/pkg/outputlog"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestNext_SingleByteChunks(t *testing.T) {
	mux := newFakeMux(
		step{data: map[string]string{outputlog.Stdout: "ab\n"}},
		step{data: map[string]string{outputlog.Stderr: "x"}},
	)
	s := New(mux)

	chunks, err := collect(s)
	require.NoError(t, err)

	require.Len(t, chunks, 4)
	for _, c := range chunks {
		require.Len(t, c.Line, 1)
		require.False(t, c.Timestamp.IsZero())
	}
	require.Equal(t, "ab\n", joined(chunks, outputlog.Stdout))
	require.Equal(t, "x", joined(chunks, outputlog.Stderr))
}

func TestNext_BatchedReads(t *testing.T) {
	mux := newFakeMux(
		step{data: map[string]string{outputlog.Stdout: "line1\nline2\nline3"}},
	)
	s := New(mux, WithReadSize(64))

	chunks, err := collect(s)
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	require.Equal(t, outputlog.Stdout, chunks[0].Stream)
	require.Equal(t, "line1\nline2\nline3", string(chunks[0].Line))
}

func TestNext_ReadSizeClamped(t *testing.T) {
	mux := newFakeMux(step{data: map[string]string{outputlog.Stdout: "ok"}})
	s := New(mux, WithReadSize(0))

	chunks, err := collect(s)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
}

func TestNext_OneReadPerReadyStream(t *testing.T) {
	mux := newFakeMux(step{data: map[string]string{
		outputlog.Stdout: "o",
		outputlog.Stderr: "e",
	}})
	s := New(mux)

	chunk, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, outputlog.Stdout, chunk.Stream)
	require.Equal(t, 1, mux.waits)
	require.Equal(t, 2, mux.reads)

	chunk, err = s.Next()
	require.NoError(t, err)
	require.Equal(t, outputlog.Stderr, chunk.Stream)
	require.Equal(t, 1, mux.waits)
}

func TestNext_TransientEmptyRead(t *testing.T) {
	mux := newFakeMux(
		step{spurious: []string{outputlog.Stdout, outputlog.Stderr}},
		step{data: map[string]string{outputlog.Stdout: "z"}},
	)
	s := New(mux)

	chunks, err := collect(s)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "z", string(chunks[0].Line))
}

func TestNext_FinalDrain(t *testing.T) {
	mux := newFakeMux(
		step{data: map[string]string{outputlog.Stdout: "a"}},
		step{data: map[string]string{
			outputlog.Stdout: "bc\nd",
			outputlog.Stderr: "oops\n",
		}, exited: true},
	)
	s := New(mux)

	chunks, err := collect(s)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	require.Equal(t, "a", string(chunks[0].Line))
	require.Equal(t, outputlog.Stdout, chunks[1].Stream)
	require.Equal(t, "bc\nd", string(chunks[1].Line))
	require.Equal(t, outputlog.Stderr, chunks[2].Stream)
	require.Equal(t, "oops\n", string(chunks[2].Line))
}

func TestNext_EndsPermanently(t *testing.T) {
	s := New(newFakeMux(step{exited: true}))

	for i := 0; i < 3; i++ {
		_, err := s.Next()
		require.ErrorIs(t, err, io.EOF)
	}
	require.True(t, s.Exited())
	require.Equal(t, 0, s.ExitCode())
}

func TestNext_WaitFailure(t *testing.T) {
	boom := errors.New("poll: bad descriptor")
	mux := newFakeMux(
		step{data: map[string]string{outputlog.Stdout: "hi"}},
		step{err: boom},
	)
	s := New(mux)

	chunks, err := collect(s)
	require.ErrorIs(t, err, ErrReadinessWait)
	require.ErrorIs(t, err, boom)
	require.Equal(t, "hi", joined(chunks, outputlog.Stdout))

	var waitErr *WaitError
	require.ErrorAs(t, err, &waitErr)
	require.Equal(t, "wait", waitErr.Op)

	// Sticky
	_, err = s.Next()
	require.ErrorIs(t, err, ErrReadinessWait)
}

func TestNext_ReadFailure(t *testing.T) {
	mux := newFakeMux(step{data: map[string]string{outputlog.Stdout: "x"}})
	mux.readErr = errors.New("read: I/O error")
	s := New(mux)

	_, err := s.Next()
	require.ErrorIs(t, err, ErrReadinessWait)
}

func TestNext_DrainFailureKeepsEarlierChunks(t *testing.T) {
	mux := newFakeMux(
		step{data: map[string]string{outputlog.Stdout: "k"}},
		step{exited: true},
	)
	mux.drainErr = errors.New("drain: I/O error")
	s := New(mux)

	chunks, err := collect(s)
	require.ErrorIs(t, err, ErrReadinessWait)
	require.Len(t, chunks, 1)
}

func TestClose_Idempotent(t *testing.T) {
	mux := newFakeMux()
	s := New(mux)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.True(t, mux.closed)
}

func spawnShell(t *testing.T, script string, opts ...Option) *Streamer {
	t.Helper()
	s, err := Spawn([]string{"sh", "-c", script}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSpawn_SeparatesStreams(t *testing.T) {
	for _, readSize := range []int{1, 3, 4096} {
		s := spawnShell(t, `printf 'out1\nout2\n'; printf 'err1\n' >&2; printf 'tail'`, WithReadSize(readSize))

		chunks, err := collect(s)
		require.NoError(t, err)

		require.Equal(t, "out1\nout2\ntail", joined(chunks, outputlog.Stdout), "read size %d", readSize)
		require.Equal(t, "err1\n", joined(chunks, outputlog.Stderr), "read size %d", readSize)
		require.Equal(t, 0, s.ExitCode())
	}
}

func TestSpawn_LargeOutputIsComplete(t *testing.T) {
	s := spawnShell(t, `i=0; while [ $i -lt 2000 ]; do echo "line $i"; echo "err $i" >&2; i=$((i+1)); done`, WithReadSize(512))

	chunks, err := collect(s)
	require.NoError(t, err)

	out := joined(chunks, outputlog.Stdout)
	errOut := joined(chunks, outputlog.Stderr)
	require.Equal(t, 2000, strings.Count(out, "\n"))
	require.Equal(t, 2000, strings.Count(errOut, "\n"))
	require.True(t, strings.HasPrefix(out, "line 0\nline 1\n"))
	require.True(t, strings.HasSuffix(errOut, "err 1999\n"))
}

func TestSpawn_NoOutput(t *testing.T) {
	s := spawnShell(t, `true`)

	chunks, err := collect(s)
	require.NoError(t, err)
	require.Empty(t, chunks)
	require.Equal(t, 0, s.ExitCode())
	require.NoError(t, s.Err())
}

func TestSpawn_ExitCode(t *testing.T) {
	s := spawnShell(t, `echo bye; exit 3`)

	_, err := collect(s)
	require.NoError(t, err)
	require.Equal(t, 3, s.ExitCode())
	require.NoError(t, s.Err())
	require.Greater(t, s.PID(), 0)
}

func TestSpawn_StreamClosedEarly(t *testing.T) {
	s := spawnShell(t, `exec 1>&-; sleep 0.2; echo late >&2`)

	start := time.Now()
	chunks, err := collect(s)
	require.NoError(t, err)
	require.Equal(t, "late\n", joined(chunks, outputlog.Stderr))
	require.Empty(t, joined(chunks, outputlog.Stdout))
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestSpawn_NotFound(t *testing.T) {
	tests := []struct {
		name string
		argv []string
	}{
		{name: "absolute path", argv: []string{"/nonexistent/definitely/missing"}},
		{name: "lookup in PATH", argv: []string{"chessdolls-no-such-command-xyz"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Spawn(tt.argv)
			require.Nil(t, s)
			require.ErrorIs(t, err, ErrSpawn)

			var spawnErr *SpawnError
			require.ErrorAs(t, err, &spawnErr)
			require.Equal(t, "command not found", spawnErr.Reason)
			require.Contains(t, err.Error(), tt.argv[0])
		})
	}
}

func TestSpawn_PermissionDenied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o600))

	_, err := Spawn([]string{path})
	require.ErrorIs(t, err, ErrSpawn)
	require.ErrorIs(t, err, unix.EACCES)

	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	require.Equal(t, "permission denied", spawnErr.Reason)
}

func TestSpawn_EmptyCommand(t *testing.T) {
	_, err := Spawn(nil)
	require.ErrorIs(t, err, ErrSpawn)
}

func TestSpawn_Dir(t *testing.T) {
	dir := t.TempDir()
	s := spawnShell(t, `pwd -P`, WithDir(dir), WithReadSize(256))

	chunks, err := collect(s)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.Equal(t, want+"\n", joined(chunks, outputlog.Stdout))
}

func TestSpawn_DirRemoved(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	require.NoError(t, os.Mkdir(dir, 0o700))
	require.NoError(t, os.Remove(dir))

	s, err := Spawn([]string{"true"}, WithDir(dir))
	require.Nil(t, s)
	require.ErrorIs(t, err, ErrSpawn)

	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	require.Equal(t, "failed to change directory", spawnErr.Reason)
}

func TestClose_KillsRunningChild(t *testing.T) {
	s, err := Spawn([]string{"sleep", "30"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Close() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	require.True(t, s.Exited())
	require.Equal(t, -1, s.ExitCode())
}

func TestSpawnError_Unwrap(t *testing.T) {
	err := &SpawnError{Argv: []string{"x"}, Reason: "command not found", Err: exec.ErrNotFound}
	require.ErrorIs(t, err, ErrSpawn)
	require.ErrorIs(t, err, exec.ErrNotFound)
	require.NotErrorIs(t, err, ErrReadinessWait)
}
