// Package observer defines the connection event hooks and the standard
// observers built on them.
//
// Observers are synchronous callbacks fired from inside the connection's
// read/write path; implementations must not block and must keep side effects
// to their own state.
package observer

import "gostomp/frame"

// ConnectionObserver receives connection lifecycle events.
type ConnectionObserver interface {
	// SentFrame fires after a frame was fully written to the wire.
	SentFrame(f *frame.Frame)
	// ReceivedFrame fires for every decoded inbound frame.
	ReceivedFrame(f *frame.Frame)
	// EmptyRead fires when a read attempt returned no bytes.
	EmptyRead()
	// EmptyBuffer fires when the parser holds no complete frame.
	EmptyBuffer()
	// EmptyLineRead fires for every server heartbeat byte consumed.
	EmptyLineRead()
}

// Failer is implemented by observers that can invalidate the connection,
// such as the server-alive watchdog. The connection checks Err after
// dispatching events and surfaces a non-nil result to the reader.
type Failer interface {
	Err() error
}

// Base is a no-op ConnectionObserver for embedding.
type Base struct{}

func (Base) SentFrame(*frame.Frame)     {}
func (Base) ReceivedFrame(*frame.Frame) {}
func (Base) EmptyRead()                 {}
func (Base) EmptyBuffer()               {}
func (Base) EmptyLineRead()             {}

// Set dispatches every event to a list of observers in registration order.
type Set struct {
	observers []ConnectionObserver
}

// Add appends an observer to the set.
func (s *Set) Add(o ConnectionObserver) {
	s.observers = append(s.observers, o)
}

// Remove drops an observer from the set.
func (s *Set) Remove(o ConnectionObserver) {
	out := s.observers[:0]
	for _, cur := range s.observers {
		if cur != o {
			out = append(out, cur)
		}
	}
	s.observers = out
}

// Err returns the first pending failure among Failer observers.
func (s *Set) Err() error {
	for _, o := range s.observers {
		if f, ok := o.(Failer); ok {
			if err := f.Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Set) SentFrame(f *frame.Frame) {
	for _, o := range s.observers {
		o.SentFrame(f)
	}
}

func (s *Set) ReceivedFrame(f *frame.Frame) {
	for _, o := range s.observers {
		o.ReceivedFrame(f)
	}
}

func (s *Set) EmptyRead() {
	for _, o := range s.observers {
		o.EmptyRead()
	}
}

func (s *Set) EmptyBuffer() {
	for _, o := range s.observers {
		o.EmptyBuffer()
	}
}

func (s *Set) EmptyLineRead() {
	for _, o := range s.observers {
		o.EmptyLineRead()
	}
}
