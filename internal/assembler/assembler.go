// Package assembler rebuilds newline-delimited lines from the output chunks
// of a child process and hands every completed line to a sink.
package assembler

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sort"

	"chessdolls/pkg/outputlog"
)

// Sink receives completed lines without their terminating newline.
type Sink interface {
	AppendLine(stream, text string)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(stream, text string)

func (f SinkFunc) AppendLine(stream, text string) { f(stream, text) }

// Source yields output chunks until io.EOF.
type Source interface {
	Next() (outputlog.Chunk, error)
}

// Assembler keeps one line buffer per stream. Bytes of different streams are
// never mixed into one line.
type Assembler struct {
	sink    Sink
	buffers map[string][]byte
	lines   map[string]int
	flushed bool
}

// New returns an Assembler that emits to sink.
func New(sink Sink) *Assembler {
	return &Assembler{
		sink:    sink,
		buffers: make(map[string][]byte),
		lines:   make(map[string]int),
	}
}

// Feed consumes one chunk.
func (a *Assembler) Feed(chunk outputlog.Chunk) {
	if a.flushed {
		slog.Warn("Ignoring output chunk after flush", "stream", chunk.Stream, "bytes", len(chunk.Line))
		return
	}

	data := chunk.Line
	switch {
	case len(data) == 0:
	case len(data) == 1 && data[0] == '\n':
		a.emit(chunk.Stream)
	case len(data) == 1:
		a.buffers[chunk.Stream] = append(a.buffers[chunk.Stream], data[0])
	default:
		a.feedBatch(chunk.Stream, data)
	}
}

// feedBatch handles a multi-byte chunk. The first newline-terminated segment
// completes whatever was already buffered. The unterminated rest is carried
// over to the next chunk.
func (a *Assembler) feedBatch(stream string, data []byte) {
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		a.buffers[stream] = append(a.buffers[stream], data[:i]...)
		a.emit(stream)
		data = data[i+1:]
	}
	if len(data) > 0 {
		a.buffers[stream] = append(a.buffers[stream], data...)
	}
}

func (a *Assembler) emit(stream string) {
	buf := a.buffers[stream]
	a.sink.AppendLine(stream, string(buf))
	a.lines[stream]++
	a.buffers[stream] = buf[:0]
}

// Flush emits every non-empty line buffer once, stdout first, and ends the
// assembler. Later calls do nothing.
func (a *Assembler) Flush() {
	if a.flushed {
		return
	}
	for _, stream := range a.streams() {
		if len(a.buffers[stream]) > 0 {
			a.emit(stream)
		}
	}
	a.buffers = nil
	a.flushed = true
}

// streams returns buffered stream tags, the well-known ones first.
func (a *Assembler) streams() []string {
	known := make(map[string]bool, len(outputlog.Streams))
	streams := make([]string, 0, len(a.buffers))
	for _, stream := range outputlog.Streams {
		known[stream] = true
		if _, ok := a.buffers[stream]; ok {
			streams = append(streams, stream)
		}
	}
	var others []string
	for stream := range a.buffers {
		if !known[stream] {
			others = append(others, stream)
		}
	}
	sort.Strings(others)
	return append(streams, others...)
}

// Consume feeds every chunk of src and flushes when src ends. When src fails
// the buffered partial lines are flushed before the error is returned.
func (a *Assembler) Consume(src Source) error {
	defer a.Flush()
	for {
		chunk, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		a.Feed(chunk)
	}
}

// Lines returns the number of lines emitted per stream.
func (a *Assembler) Lines() map[string]int {
	out := make(map[string]int, len(a.lines))
	for stream, n := range a.lines {
		out[stream] = n
	}
	return out
}
