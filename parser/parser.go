// Package parser turns an arbitrary stream of byte chunks into STOMP frames.
//
// The parser is incremental: AddData may be called with any partition of the
// wire bytes, and NextFrame returns a frame only once a complete one is
// buffered. Bytes following a complete frame are retained verbatim for the
// next call.
package parser

import (
	"bytes"
	"strconv"

	"gostomp/frame"
)

// Parser decodes STOMP frames from a growable byte buffer.
type Parser struct {
	buf    []byte
	legacy bool

	// onHeartbeat fires once per server heartbeat byte consumed ahead of a
	// command. Heartbeats never surface as frames.
	onHeartbeat func()
}

// New returns a parser in STOMP 1.0 (legacy) mode, matching the state of a
// connection before version negotiation completes.
func New() *Parser {
	return &Parser{legacy: true}
}

// SetLegacy switches header escaping between the 1.0 and 1.1+ rules.
func (p *Parser) SetLegacy(legacy bool) {
	p.legacy = legacy
}

// Legacy reports whether the parser applies the STOMP 1.0 escaping rules.
func (p *Parser) Legacy() bool {
	return p.legacy
}

// OnHeartbeat installs the hook invoked for each heartbeat byte consumed.
func (p *Parser) OnHeartbeat(fn func()) {
	p.onHeartbeat = fn
}

// AddData appends a chunk of wire bytes to the parse buffer.
func (p *Parser) AddData(data []byte) {
	p.buf = append(p.buf, data...)
}

// BufferEmpty reports whether all buffered bytes have been consumed.
func (p *Parser) BufferEmpty() bool {
	return len(p.buf) == 0
}

// NextFrame returns the next complete frame, or nil when the buffered bytes
// do not yet form one. Partial frame bytes stay buffered; the parser never
// fails on byte-level anomalies.
func (p *Parser) NextFrame() *frame.Frame {
	p.skipHeartbeats()

	f, n := p.decode(p.buf)
	if f == nil {
		return nil
	}
	p.buf = p.buf[n:]
	return f
}

// skipHeartbeats consumes leading '\n' bytes and '\r\n' pairs, firing the
// heartbeat hook once per occurrence. Consumption is committed immediately so
// a later partial frame cannot replay the hook.
func (p *Parser) skipHeartbeats() {
	i := 0
	for i < len(p.buf) {
		switch {
		case p.buf[i] == '\n':
			i++
		case p.buf[i] == '\r' && i+1 < len(p.buf) && p.buf[i+1] == '\n':
			i += 2
		default:
			p.buf = p.buf[i:]
			return
		}
		if p.onHeartbeat != nil {
			p.onHeartbeat()
		}
	}
	p.buf = p.buf[i:]
}

// decode attempts to read one complete frame from data. It returns the frame
// and the number of bytes consumed, or (nil, 0) when data is incomplete.
func (p *Parser) decode(data []byte) (*frame.Frame, int) {
	pos := 0

	command, n, ok := readLine(data, pos)
	if !ok {
		return nil, 0
	}
	pos = n

	f := &frame.Frame{Command: string(command), Legacy: p.legacy}
	for {
		line, n, ok := readLine(data, pos)
		if !ok {
			return nil, 0
		}
		pos = n
		if len(line) == 0 {
			break
		}
		name, value := splitHeaderLine(line)
		f.Header.AddIfAbsent(
			frame.UnescapeHeader(name, p.legacy),
			frame.UnescapeHeader(value, p.legacy),
		)
	}

	// Body: an explicit content-length wins over NUL scanning, except in
	// legacy mode where brokers did not reliably emit it.
	if cl, ok := f.Header.Get(frame.HdrContentLength); ok && !p.legacy {
		length, err := strconv.Atoi(cl)
		if err == nil && length >= 0 {
			if pos+length >= len(data) {
				return nil, 0
			}
			if data[pos+length] == 0 {
				f.Body = copyBytes(data[pos : pos+length])
				return f, pos + length + 1
			}
			// Length does not line up with the terminator; fall back to
			// scanning for the NUL.
		}
	}

	end := bytes.IndexByte(data[pos:], 0)
	if end < 0 {
		return nil, 0
	}
	f.Body = copyBytes(data[pos : pos+end])
	return f, pos + end + 1
}

// readLine returns the bytes of the line starting at pos, stripped of the
// trailing '\n' (and optional '\r'), plus the position just past it.
func readLine(data []byte, pos int) ([]byte, int, bool) {
	i := bytes.IndexByte(data[pos:], '\n')
	if i < 0 {
		return nil, 0, false
	}
	line := data[pos : pos+i]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return line, pos + i + 1, true
}

// splitHeaderLine splits a header line at the first ':'. A raw colon is
// always the separator since escaped colons arrive as the sequence "\c".
// A line without a colon is treated as a name with an empty value.
func splitHeaderLine(line []byte) (string, string) {
	if i := bytes.IndexByte(line, ':'); i >= 0 {
		return string(line[:i]), string(line[i+1:])
	}
	return string(line), ""
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
