package frame

import (
	"bytes"
	"strconv"
	"strings"
)

// STOMP 1.1+ defined escape sequences for header names and values.
// strings.Replacer runs a single non-overlapping pass, so backslashes are
// never escaped twice.
var (
	escapeModern = strings.NewReplacer(
		"\\", "\\\\",
		"\r", "\\r",
		"\n", "\\n",
		":", "\\c",
	)
	unescapeModern = strings.NewReplacer(
		"\\\\", "\\",
		"\\r", "\r",
		"\\n", "\n",
		"\\c", ":",
	)

	// STOMP 1.0 only knows about the newline sequence.
	escapeLegacy   = strings.NewReplacer("\n", "\\n")
	unescapeLegacy = strings.NewReplacer("\\n", "\n")
)

// EscapeHeader encodes a header name or value for the wire.
func EscapeHeader(s string, legacy bool) string {
	if legacy {
		return escapeLegacy.Replace(s)
	}
	return escapeModern.Replace(s)
}

// UnescapeHeader decodes a header name or value read from the wire.
func UnescapeHeader(s string, legacy bool) string {
	if legacy {
		return unescapeLegacy.Replace(s)
	}
	return unescapeModern.Replace(s)
}

// Marshal serializes the frame to its wire form: command line, header lines,
// a blank line, the body and the terminating NUL. A heartbeat frame
// serializes to the single byte '\n'.
//
// A content-length header is emitted exactly when the body contains a NUL
// byte or ExpectLengthHeader is set; any caller-provided content-length is
// dropped so the emitted value always matches the body.
func (f *Frame) Marshal() []byte {
	if f.IsHeartbeat() {
		return []byte{'\n'}
	}

	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')

	for _, p := range f.Header.pairs {
		if strings.EqualFold(p[0], HdrContentLength) {
			continue
		}
		buf.WriteString(EscapeHeader(p[0], f.Legacy))
		buf.WriteByte(':')
		buf.WriteString(EscapeHeader(p[1], f.Legacy))
		buf.WriteByte('\n')
	}
	if f.needsContentLength() {
		buf.WriteString(HdrContentLength)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(len(f.Body)))
		buf.WriteByte('\n')
	}

	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}
