package outputlog

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// recorderBacklog is how many entries may be queued before Record blocks.
const recorderBacklog = 100

// TranscriptWriter records command output as transcript entries.
type TranscriptWriter interface {
	// Record queues one entry for stream, stamped with the current time.
	Record(stream string, line []byte)

	// Stream returns an io.Writer whose every Write becomes one entry.
	Stream(stream string) io.Writer

	// Close flushes queued entries and reports the first write error.
	Close() error
}

// Recorder appends transcript entries to an io.Writer from a single goroutine,
// so commands never wait on the transcript file.
type Recorder struct {
	entries chan Chunk
	done    chan struct{}
	once    sync.Once
	err     error
}

var _ TranscriptWriter = &Recorder{}

// NewRecorder starts recording into w. A failed write is logged once and the
// remaining entries are still attempted.
func NewRecorder(w io.Writer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		entries: make(chan Chunk, recorderBacklog),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(r.done)
		for entry := range r.entries {
			_, err := w.Write(FormatChunk(entry))
			if err != nil && r.err == nil {
				logger.Error("Failed to write transcript entry", "error", err, "stream", entry.Stream)
				r.err = err
			}
		}
	}()

	return r
}

func (r *Recorder) Record(stream string, line []byte) {
	r.Append(Chunk{Stream: stream, Timestamp: time.Now().UTC(), Line: line})
}

// Append queues an entry that already carries its timestamp.
func (r *Recorder) Append(entry Chunk) {
	r.entries <- entry
}

func (r *Recorder) Stream(stream string) io.Writer {
	return &entryWriter{stream: stream, recorder: r}
}

// Close must not race with Record or Append. Calling it again returns the
// same result.
func (r *Recorder) Close() error {
	r.once.Do(func() { close(r.entries) })
	<-r.done
	return r.err
}

type entryWriter struct {
	stream   string
	recorder *Recorder
}

// Write copies p so callers may reuse their buffer.
func (ew *entryWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	ew.recorder.Record(ew.stream, append([]byte(nil), p...))
	return len(p), nil
}
