// Package outputlog defines the chunk type shared by the shell's output pipeline and a
// simple protocol to multiplex several streams into one transcript.
//
// # Transcript Format
//
// Goals:
//
//  1. Preserve the exact output including binary data
//  2. Differentiate between streams (stdout, stderr)
//  3. Include a timestamp for each entry
//  4. Preserve information about trailing newlines
//
// Each entry follows this format:
//
//	stream timestamp length: content\n
//
// # Fields
//
//   - stream: stdout or stderr.
//   - timestamp: UTC timestamp in RFC 3339 format with trailing zeros of the
//     fraction removed: 2025-01-07T12:34:56.789Z
//   - length: byte length of content.
//   - content: exactly length bytes. Content can contain newlines.
//   - a separator \n always follows the content.
//
// # Examples
//
// A line that was terminated by a newline in the child's output:
//
//	stdout 2025-01-07T12:34:56.789Z 12: Hello world\n\n
//
// A trailing line that was flushed without a newline when the stream ended:
//
//	stderr 2025-01-07T12:34:56Z 7: prompt>\n
package outputlog
