// Package frame defines the STOMP frame model and its wire serialization.
//
// A Frame is the unit every other layer works with: the parser produces
// frames from the byte stream, the protocol layer builds verb frames, and the
// transport writes them back out as bytes.
package frame

import "bytes"

// Frame is a single STOMP frame: a command, ordered headers and an optional
// binary body.
//
// Legacy switches header escaping to the STOMP 1.0 rules. ExpectLengthHeader
// forces a content-length header on serialization even when the body carries
// no NUL byte.
type Frame struct {
	Command            string
	Header             Header
	Body               []byte
	Legacy             bool
	ExpectLengthHeader bool
}

// New returns a frame with the given command and body.
func New(command string, body []byte) *Frame {
	return &Frame{Command: command, Body: body}
}

// Heartbeat returns the frame representation of a single heartbeat byte.
func Heartbeat() *Frame {
	return &Frame{}
}

// IsHeartbeat reports whether the frame is a bare liveness signal rather
// than a command frame.
func (f *Frame) IsHeartbeat() bool {
	return f.Command == "" && f.Header.Len() == 0 && len(f.Body) == 0
}

// BodyString returns the body as a string.
func (f *Frame) BodyString() string {
	return string(f.Body)
}

// needsContentLength reports whether serialization must emit a
// content-length header. Brokers auto-detect the frame end on the NUL
// terminator, which breaks as soon as the body itself contains one.
func (f *Frame) needsContentLength() bool {
	return f.ExpectLengthHeader || bytes.IndexByte(f.Body, 0) >= 0
}

// Equal reports whether two frames carry the same command, headers (same
// pairs in the same order) and body.
func (f *Frame) Equal(o *Frame) bool {
	if f.Command != o.Command || !bytes.Equal(f.Body, o.Body) {
		return false
	}
	if f.Header.Len() != o.Header.Len() {
		return false
	}
	fp, op := f.Header.All(), o.Header.All()
	for i := range fp {
		if fp[i] != op[i] {
			return false
		}
	}
	return true
}
