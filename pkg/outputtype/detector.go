// Package outputtype classifies what a command writes to stdout, so that
// programs expecting a real terminal can be recognised.
package outputtype

import "strings"

// OutputType represents the detected type of output
type OutputType string

const (
	OutputTypeUnknown    OutputType = "unknown"
	OutputTypeText       OutputType = "text"
	OutputTypeStyled     OutputType = "styled"     // colors or cursor movement
	OutputTypeFullscreen OutputType = "fullscreen" // alternate screen or full clears
	OutputTypeBinary     OutputType = "binary"
)

const (
	maxAnalyzedBytes = 8192
	maxAnalyzedLines = 50
)

// Detector looks at the first lines of a stream and settles on one type.
// It is used from a single goroutine.
type Detector struct {
	detectedType OutputType
	reason       string
	detected     bool
	bytes        int
	lines        int
	styled       bool
}

func NewDetector() *Detector {
	return &Detector{detectedType: OutputTypeUnknown}
}

// AnalyzeLine feeds one line. It returns true once the type is settled;
// further calls are no-ops.
func (d *Detector) AnalyzeLine(line string) bool {
	if d.detected {
		return true
	}
	d.bytes += len(line)
	d.lines++

	switch {
	case isBinary(line):
		d.settle(OutputTypeBinary, "null bytes or many control characters")
	case hasAny(line, "\x1b[?1049h", "\x1b[?1047h", "\x1b[?47h"):
		d.settle(OutputTypeFullscreen, "alternate screen buffer requested")
	case hasAny(line, "\x1b[2J", "\x1b[3J"):
		d.settle(OutputTypeFullscreen, "screen cleared")
	default:
		if strings.Contains(line, "\x1b[") && (containsCSI(line, 'm') || containsCSI(line, 'H') || hasAny(line, "\x1b[A", "\x1b[B", "\x1b[C", "\x1b[D")) {
			d.styled = true
		}
		if d.bytes >= maxAnalyzedBytes || d.lines >= maxAnalyzedLines {
			d.Finish()
		}
	}
	return d.detected
}

// Finish settles the type from what has been seen so far. It is called when
// the stream ends before enough output arrived.
func (d *Detector) Finish() {
	if d.detected {
		return
	}
	switch {
	case d.styled:
		d.settle(OutputTypeStyled, "escape sequences without fullscreen switches")
	case d.lines > 0:
		d.settle(OutputTypeText, "no terminal control sequences")
	}
}

func (d *Detector) settle(t OutputType, reason string) {
	d.detectedType = t
	d.reason = reason
	d.detected = true
}

// GetDetectedType returns the detected type and why it was chosen.
func (d *Detector) GetDetectedType() (OutputType, string) {
	return d.detectedType, d.reason
}

func (d *Detector) IsDetected() bool {
	return d.detected
}

func hasAny(line string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(line, needle) {
			return true
		}
	}
	return false
}

// isBinary reports null bytes, or control characters in more than 30% of
// the runes. ESC and common whitespace do not count.
func isBinary(line string) bool {
	if line == "" {
		return false
	}
	total, control := 0, 0
	for _, r := range line {
		total++
		switch {
		case r == 0:
			return true
		case r < 32 && r != '\t' && r != '\r' && r != 0x1B:
			control++
		case r > 126 && r < 160:
			control++
		}
	}
	return float64(control) > float64(total)*0.3
}

// containsCSI finds ESC [ followed by digits and semicolons and final.
func containsCSI(line string, final byte) bool {
	for rest := line; ; {
		idx := strings.Index(rest, "\x1b[")
		if idx == -1 {
			return false
		}
		j := idx + 2
		for j < len(rest) && (rest[j] >= '0' && rest[j] <= '9' || rest[j] == ';') {
			j++
		}
		if j < len(rest) && rest[j] == final {
			return true
		}
		rest = rest[idx+2:]
	}
}
