package observer

import (
	"fmt"
	"time"

	"gostomp/frame"
)

// HeartbeatError reports a server that went silent past its negotiated
// heartbeat interval.
type HeartbeatError struct {
	Silence  time.Duration
	Interval time.Duration
}

func (e *HeartbeatError) Error() string {
	return fmt.Sprintf("stomp heartbeat: no server activity for %s (interval %s)", e.Silence, e.Interval)
}

// ServerAliveObserver tracks inbound traffic and flags the connection dead
// when the server exceeds its promised heartbeat interval by DelayFactor.
// The connection surfaces the flag through the Failer check in its read
// loop; this observer never enforces anything on its own.
type ServerAliveObserver struct {
	Base

	// DelayFactor is the tolerated multiple of the negotiated interval.
	DelayFactor float64

	interval time.Duration
	lastseen time.Time
	err      error
}

// NewServerAliveObserver returns an observer that is inactive until an
// interval is negotiated via SetInterval.
func NewServerAliveObserver() *ServerAliveObserver {
	return &ServerAliveObserver{DelayFactor: 2, lastseen: time.Now()}
}

// SetInterval installs the agreed server-to-client interval. Zero disables
// the watchdog.
func (o *ServerAliveObserver) SetInterval(interval time.Duration) {
	o.interval = interval
	o.lastseen = time.Now()
	o.err = nil
}

// Enabled reports whether an interval has been negotiated.
func (o *ServerAliveObserver) Enabled() bool {
	return o.interval > 0
}

// Err returns the pending heartbeat failure, if any.
func (o *ServerAliveObserver) Err() error {
	return o.err
}

func (o *ServerAliveObserver) ReceivedFrame(*frame.Frame) {
	o.lastseen = time.Now()
}

func (o *ServerAliveObserver) EmptyLineRead() {
	o.lastseen = time.Now()
}

func (o *ServerAliveObserver) EmptyBuffer() {
	o.check()
}

func (o *ServerAliveObserver) EmptyRead() {
	o.check()
}

func (o *ServerAliveObserver) check() {
	if o.interval <= 0 || o.err != nil {
		return
	}
	limit := time.Duration(float64(o.interval) * o.DelayFactor)
	if silence := time.Since(o.lastseen); silence > limit {
		o.err = &HeartbeatError{Silence: silence, Interval: o.interval}
	}
}
