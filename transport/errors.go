package transport

import (
	"gostomp/frame"
)

// ConnectionError wraps any socket level failure: dialing, reading, writing
// or operating on a closed connection. Err chains the underlying cause; for
// a failed failover attempt it joins the per-endpoint errors.
type ConnectionError struct {
	Host string // active endpoint, empty when not connected
	Op   string
	Err  error
}

func (e *ConnectionError) Error() string {
	msg := "stomp connection: " + e.Op
	if e.Host != "" {
		msg += " (" + e.Host + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ErrorFrame is returned when the broker pushed an ERROR frame. The full
// frame is preserved; the message header is the human readable summary.
type ErrorFrame struct {
	Frame *frame.Frame
}

func (e *ErrorFrame) Error() string {
	msg := e.Frame.Header.Value(frame.HdrMessage)
	if msg == "" {
		msg = e.Frame.BodyString()
	}
	return "stomp: broker error: " + msg
}
