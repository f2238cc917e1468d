package outputtype

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func detect(lines ...string) (OutputType, bool) {
	d := NewDetector()
	for _, line := range lines {
		if d.AnalyzeLine(line) {
			break
		}
	}
	settledEarly := d.IsDetected()
	d.Finish()
	t, _ := d.GetDetectedType()
	return t, settledEarly
}

func TestDetector_Binary(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"null byte", "binary\x00data"},
		{"control characters", "\x01\x02\x03\x04ab"},
		{"c1 controls", "a\u0080\u0081\u0082"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, early := detect("text", tt.input)
			require.Equal(t, OutputTypeBinary, got)
			require.True(t, early)
		})
	}
}

func TestDetector_Fullscreen(t *testing.T) {
	for _, line := range []string{"\x1b[?1049h", "x\x1b[?47hy", "\x1b[H\x1b[2J", "\x1b[3J"} {
		got, early := detect("starting", line, "never read")
		require.Equal(t, OutputTypeFullscreen, got, "%q", line)
		require.True(t, early)
	}
}

func TestDetector_Styled(t *testing.T) {
	for _, line := range []string{"\x1b[31mred\x1b[0m", "\x1b[1;32mok", "\x1b[10;5Hmoved", "\x1b[Aup"} {
		got, early := detect(line, "plain")
		require.Equal(t, OutputTypeStyled, got, "%q", line)
		require.False(t, early)
	}
}

func TestDetector_Text(t *testing.T) {
	got, early := detect("hello", "\ttabbed", "")
	require.Equal(t, OutputTypeText, got)
	require.False(t, early)

	require.False(t, isBinary(""))
	require.False(t, isBinary("esc \x1b is fine"))
}

func TestDetector_SettlesAfterEnoughLines(t *testing.T) {
	d := NewDetector()
	for i := 0; i < maxAnalyzedLines-1; i++ {
		require.False(t, d.AnalyzeLine("line"))
	}
	require.True(t, d.AnalyzeLine("line"))

	// Later fullscreen switches no longer change the result.
	require.True(t, d.AnalyzeLine("\x1b[?1049h"))
	got, reason := d.GetDetectedType()
	require.Equal(t, OutputTypeText, got)
	require.NotEmpty(t, reason)
}

func TestDetector_SettlesAfterEnoughBytes(t *testing.T) {
	d := NewDetector()
	require.True(t, d.AnalyzeLine(strings.Repeat("x", maxAnalyzedBytes)))
}

func TestDetector_NoOutput(t *testing.T) {
	d := NewDetector()
	d.Finish()
	got, _ := d.GetDetectedType()
	require.Equal(t, OutputTypeUnknown, got)
	require.False(t, d.IsDetected())
}

func TestContainsCSI(t *testing.T) {
	require.True(t, containsCSI("a\x1b[0mb", 'm'))
	require.True(t, containsCSI("\x1b[x\x1b[12;4H", 'H'))
	require.False(t, containsCSI("\x1b[12;4", 'H'))
	require.False(t, containsCSI("plain", 'm'))
}
