package observer

import (
	"time"

	"gostomp/frame"
)

// AliveSender is the slice of the connection the heartbeat emitter needs.
type AliveSender interface {
	SendAlive() error
}

// intervalUsage is the fraction of the negotiated send interval after which
// an alive byte goes out. Emitting early keeps the client inside the
// interval even when a write stalls briefly.
const intervalUsage = 0.65

// HeartbeatEmitter sends client heartbeats. It watches outbound traffic via
// SentFrame and, on idle ticks of the read loop and on inbound frames, emits
// an alive byte once the negotiated interval is nearly used up.
type HeartbeatEmitter struct {
	Base

	sender   AliveSender
	interval time.Duration
	lastbeat time.Time
}

// NewHeartbeatEmitter returns an emitter that is inactive until an interval
// is negotiated via SetInterval.
func NewHeartbeatEmitter(sender AliveSender) *HeartbeatEmitter {
	return &HeartbeatEmitter{sender: sender, lastbeat: time.Now()}
}

// SetInterval installs the agreed client-to-server interval. Zero disables
// emission.
func (e *HeartbeatEmitter) SetInterval(interval time.Duration) {
	e.interval = interval
	e.lastbeat = time.Now()
}

// Enabled reports whether an interval has been negotiated.
func (e *HeartbeatEmitter) Enabled() bool {
	return e.interval > 0
}

func (e *HeartbeatEmitter) SentFrame(*frame.Frame) {
	e.lastbeat = time.Now()
}

// ReceivedFrame ticks as well: a busy inbound stream keeps the read loop out
// of its idle path, yet the server still expects client beats on schedule.
func (e *HeartbeatEmitter) ReceivedFrame(*frame.Frame) {
	e.tick()
}

func (e *HeartbeatEmitter) EmptyBuffer() {
	e.tick()
}

func (e *HeartbeatEmitter) EmptyRead() {
	e.tick()
}

func (e *HeartbeatEmitter) tick() {
	if e.interval <= 0 {
		return
	}
	budget := time.Duration(float64(e.interval) * intervalUsage)
	if time.Since(e.lastbeat) < budget {
		return
	}
	if err := e.sender.SendAlive(); err == nil {
		e.lastbeat = time.Now()
	}
}
