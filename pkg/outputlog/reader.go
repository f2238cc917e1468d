package outputlog

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"time"
)

type OutputLogReader interface {
	// StreamReader returns an io.Reader for reading one stream. Example: You want to read only the
	// stream "stdout". Other streams and the timestamps get ignored.
	StreamReader(stream string) io.Reader

	// Channel returns a channel which emits Chunks.
	Channel() <-chan Chunk

	// All returns a map with stream as key and the data as bytes. Timestamps get ignored.
	All() map[string][]byte
}

type OutputLogIoReader struct {
	reader *bufio.Reader
}

var _ OutputLogReader = &OutputLogIoReader{}

type ChannelReader struct {
	stream  string
	channel <-chan Chunk
	buffer  []byte // partial chunk data left over from the previous Read
}

func (cr *ChannelReader) Read(p []byte) (n int, err error) {
	if len(cr.buffer) > 0 {
		n = copy(p, cr.buffer)
		cr.buffer = cr.buffer[n:]
		if n == len(p) {
			return n, nil
		}
	}

	for chunk := range cr.channel {
		if chunk.Stream != cr.stream {
			continue
		}

		copied := copy(p[n:], chunk.Line)
		n += copied
		if copied < len(chunk.Line) {
			cr.buffer = append(cr.buffer, chunk.Line[copied:]...)
		}

		// Return as soon as we have some data
		return n, nil
	}

	if n > 0 {
		return n, nil
	}
	return 0, io.EOF
}

func (o *OutputLogIoReader) Channel() <-chan Chunk {
	channel := make(chan Chunk)
	go readToChannel(o.reader, channel)
	return channel
}

func readToChannel(reader *bufio.Reader, channel chan<- Chunk) {
	defer close(channel)
	for {
		chunk, eof := readToChunk(reader)
		if chunk.Error != nil || !eof {
			channel <- chunk
		}
		if eof {
			return
		}
	}
}

// readToChunk parses one entry. It reports eof on a clean end of input or after a
// parse error; the error is carried in chunk.Error.
func readToChunk(reader *bufio.Reader) (Chunk, bool) {
	var chunk Chunk

	stream, err := reader.ReadString(' ')
	if err != nil {
		if err == io.EOF && stream == "" {
			return chunk, true
		}
		chunk.Error = fmt.Errorf("reading stream: %w", err)
		return chunk, true
	}
	chunk.Stream = stream[:len(stream)-1]

	timestampStr, err := reader.ReadString(' ')
	if err != nil {
		chunk.Error = fmt.Errorf("reading timestamp: %w", err)
		return chunk, true
	}
	timestamp, err := time.Parse(timestampLayout, timestampStr[:len(timestampStr)-1])
	if err != nil {
		chunk.Error = fmt.Errorf("parsing timestamp: %w", err)
		return chunk, true
	}
	chunk.Timestamp = timestamp

	lengthStr, err := reader.ReadString(':')
	if err != nil {
		chunk.Error = fmt.Errorf("reading length: %w", err)
		return chunk, true
	}
	length, err := strconv.Atoi(lengthStr[:len(lengthStr)-1])
	if err != nil || length < 0 {
		chunk.Error = fmt.Errorf("parsing length %q: invalid", lengthStr[:len(lengthStr)-1])
		return chunk, true
	}

	b, err := reader.ReadByte()
	if err != nil {
		chunk.Error = fmt.Errorf("reading space after colon: %w", err)
		return chunk, true
	}
	if b != ' ' {
		chunk.Error = fmt.Errorf("expected space after colon, got %q", b)
		return chunk, true
	}

	chunk.Line = make([]byte, length)
	if _, err := io.ReadFull(reader, chunk.Line); err != nil {
		chunk.Error = fmt.Errorf("reading content (%d bytes): %w", length, err)
		return chunk, true
	}

	b, err = reader.ReadByte()
	if err != nil {
		chunk.Error = fmt.Errorf("reading final newline: %w", err)
		return chunk, true
	}
	if b != '\n' {
		chunk.Error = fmt.Errorf("expected newline separator, got %q", b)
		return chunk, true
	}

	return chunk, false
}

func (o *OutputLogIoReader) StreamReader(stream string) io.Reader {
	return &ChannelReader{
		stream:  stream,
		channel: o.Channel(),
	}
}

func (o *OutputLogIoReader) All() map[string][]byte {
	result := make(map[string][]byte)
	for chunk := range o.Channel() {
		if chunk.Error != nil {
			continue
		}
		result[chunk.Stream] = append(result[chunk.Stream], chunk.Line...)
	}
	return result
}

func NewOutputLogReader(reader io.Reader) (OutputLogReader, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader is nil")
	}
	return &OutputLogIoReader{
		reader: bufio.NewReader(reader),
	}, nil
}
