package streamer

import (
	"io"

	"chessdolls/pkg/outputlog"
)

// step is one scripted readiness event.
type step struct {
	data     map[string]string // bytes arriving in the pipes
	spurious []string          // streams reported ready without data
	exited   bool
	err      error
}

// fakeMux replays scripted readiness events. It is level triggered like
// poll(2): a stream with unread bytes is reported ready until it is empty.
type fakeMux struct {
	steps    []step
	queues   map[string][]byte
	readErr  error
	drainErr error
	waits    int
	reads    int
	closed   bool
}

var _ Multiplexer = &fakeMux{}

func newFakeMux(steps ...step) *fakeMux {
	return &fakeMux{steps: steps, queues: map[string][]byte{}}
}

func (f *fakeMux) readyStreams() []string {
	var ready []string
	for _, stream := range outputlog.Streams {
		if len(f.queues[stream]) > 0 {
			ready = append(ready, stream)
		}
	}
	return ready
}

func (f *fakeMux) Wait() ([]string, bool, error) {
	f.waits++
	if ready := f.readyStreams(); len(ready) > 0 {
		return ready, false, nil
	}
	if len(f.steps) == 0 {
		return nil, true, nil
	}
	st := f.steps[0]
	f.steps = f.steps[1:]
	for _, stream := range outputlog.Streams {
		f.queues[stream] = append(f.queues[stream], st.data[stream]...)
	}
	if st.err != nil {
		return nil, false, st.err
	}
	if st.exited {
		return nil, true, nil
	}
	return append(f.readyStreams(), st.spurious...), false, nil
}

func (f *fakeMux) Read(stream string, p []byte) (int, error) {
	f.reads++
	if f.readErr != nil {
		return 0, f.readErr
	}
	n := copy(p, f.queues[stream])
	f.queues[stream] = f.queues[stream][n:]
	return n, nil
}

func (f *fakeMux) Drain(stream string) ([]byte, error) {
	if f.drainErr != nil {
		return nil, f.drainErr
	}
	data := f.queues[stream]
	f.queues[stream] = nil
	return data, nil
}

func (f *fakeMux) Close() error {
	f.closed = true
	return nil
}

// collect pulls chunks until the sequence ends or fails.
func collect(s *Streamer) ([]outputlog.Chunk, error) {
	var chunks []outputlog.Chunk
	for {
		chunk, err := s.Next()
		if err == io.EOF {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}

// joined concatenates the payload of one stream.
func joined(chunks []outputlog.Chunk, stream string) string {
	var out []byte
	for _, c := range chunks {
		if c.Stream == stream {
			out = append(out, c.Line...)
		}
	}
	return string(out)
}
