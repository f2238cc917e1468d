// Package outputlog defines the chunk type shared by the shell's output pipeline and a
// simple protocol to multiplex several streams into one transcript. See doc.go for docs.
package outputlog

import (
	"fmt"
	"time"
)

// Stream tags.
const (
	Stdout = "stdout"
	Stderr = "stderr"
)

// Streams lists the stream tags in the order they are flushed and drained.
var Streams = []string{Stdout, Stderr}

const timestampLayout = time.RFC3339Nano

// Chunk is a unit of output from one stream.
type Chunk struct {
	Stream    string
	Timestamp time.Time // UTC arrival time
	Line      []byte    // payload, may contain newlines
	Error     error     // set by the reader on malformed input
}

// FormatChunk formats a Chunk into the transcript format
// Format: "stream timestamp length: content\n"
func FormatChunk(chunk Chunk) []byte {
	timestamp := chunk.Timestamp.UTC().Format(timestampLayout)
	start := fmt.Appendf(nil, "%s %s %d: ", chunk.Stream, timestamp, len(chunk.Line))
	result := append(start, chunk.Line...)
	result = append(result, '\n')
	return result
}
