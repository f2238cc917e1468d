package streamer

import (
	"fmt"
	"io"

	"chessdolls/pkg/outputlog"

	"golang.org/x/sys/unix"
)

// Multiplexer waits for readiness on a child's output streams together with
// an observable for the child's exit.
type Multiplexer interface {
	// Wait blocks until at least one stream has data ready or the process has
	// exited. Ready streams are reported in outputlog.Streams order.
	Wait() (ready []string, exited bool, err error)

	// Read performs one read of at most len(p) bytes on a stream that Wait
	// reported ready. It never blocks. (0, nil) is a transient empty read;
	// io.EOF means the stream will produce nothing more.
	Read(stream string, p []byte) (int, error)

	// Drain reads everything still buffered in the stream until end of file.
	// It is only called after the process has exited.
	Drain(stream string) ([]byte, error)

	Close() error
}

// pollMux multiplexes pipe descriptors with poll(2). The exit descriptor is
// the read end of a pipe whose write end is closed once the child is reaped.
type pollMux struct {
	fds    map[string]int
	open   map[string]bool
	exitFd int
	closed bool
}

var _ Multiplexer = &pollMux{}

func newPollMux(stdoutFd, stderrFd, exitFd int) *pollMux {
	return &pollMux{
		fds:    map[string]int{outputlog.Stdout: stdoutFd, outputlog.Stderr: stderrFd},
		open:   map[string]bool{outputlog.Stdout: true, outputlog.Stderr: true},
		exitFd: exitFd,
	}
}

func (m *pollMux) Wait() ([]string, bool, error) {
	streams := make([]string, 0, len(outputlog.Streams))
	pfds := make([]unix.PollFd, 0, len(outputlog.Streams)+1)
	for _, stream := range outputlog.Streams {
		if !m.open[stream] {
			continue
		}
		streams = append(streams, stream)
		pfds = append(pfds, unix.PollFd{Fd: int32(m.fds[stream]), Events: unix.POLLIN})
	}
	pfds = append(pfds, unix.PollFd{Fd: int32(m.exitFd), Events: unix.POLLIN})

	for {
		_, err := unix.Poll(pfds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("poll: %w", err)
		}
		break
	}

	var ready []string
	for i, stream := range streams {
		revents := pfds[i].Revents
		if revents&unix.POLLNVAL != 0 {
			return nil, false, fmt.Errorf("poll %s: %w", stream, unix.EBADF)
		}
		if revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			ready = append(ready, stream)
		}
	}
	exited := pfds[len(pfds)-1].Revents != 0
	return ready, exited, nil
}

func (m *pollMux) Read(stream string, p []byte) (int, error) {
	if !m.open[stream] {
		return 0, io.EOF
	}
	n, err := unix.Read(m.fds[stream], p)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("read %s: %w", stream, err)
	case n == 0:
		m.open[stream] = false
		return 0, io.EOF
	}
	return n, nil
}

func (m *pollMux) Drain(stream string) ([]byte, error) {
	if !m.open[stream] {
		return nil, nil
	}
	fd := m.fds[stream]
	if err := unix.SetNonblock(fd, false); err != nil {
		return nil, fmt.Errorf("drain %s: %w", stream, err)
	}

	var data []byte
	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return data, fmt.Errorf("drain %s: %w", stream, err)
		}
		if n == 0 {
			m.open[stream] = false
			return data, nil
		}
		data = append(data, buf[:n]...)
	}
}

func (m *pollMux) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	for _, stream := range outputlog.Streams {
		if err := unix.Close(m.fds[stream]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := unix.Close(m.exitFd); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
