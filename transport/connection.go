// Package transport implements the byte level STOMP connection.
//
// A Connection dials one endpoint out of a failover group, pushes received
// bytes through the incremental parser, and writes outbound frames in
// bounded chunks under per-operation timeouts. Connection events fan out to
// registered observers; the heartbeat emitter and the server-alive watchdog
// are implemented on top of those hooks.
//
// A Connection serves a single session and is not safe for concurrent use;
// callers that share one must serialize access externally.
package transport

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"gostomp/failover"
	"gostomp/frame"
	"gostomp/observer"
	"gostomp/parser"
)

// Config tunes a Connection. Zero values fall back to the defaults below.
type Config struct {
	// ConnectTimeout bounds each dial attempt during failover.
	ConnectTimeout time.Duration
	// ReadTimeout bounds one ReadFrame wait for data.
	ReadTimeout time.Duration
	// WriteTimeout bounds a frame write, measured from the last byte that
	// made forward progress.
	WriteTimeout time.Duration
	// AliveTimeout bounds the single-byte heartbeat write.
	AliveTimeout time.Duration

	MaxReadBytes  int
	MaxWriteBytes int

	// TLS is used for ssl/tls scheme endpoints. When nil a config with the
	// endpoint host as ServerName is derived.
	TLS *tls.Config

	Logger *zap.Logger
}

const (
	defaultConnectTimeout = 3 * time.Second
	defaultReadTimeout    = 60 * time.Second
	defaultWriteTimeout   = 3 * time.Second
	defaultAliveTimeout   = time.Second
	defaultMaxBytes       = 8 * 1024

	// pollInterval slices a read wait so the wait callback runs between
	// readiness polls.
	pollInterval = 250 * time.Millisecond

	// partialWriteSleep separates two write attempts of one frame.
	partialWriteSleep = 2500 * time.Microsecond

	// emptyReadSleep backs off after a zero-byte read from a likely
	// half-closed peer.
	emptyReadSleep = 5 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.AliveTimeout <= 0 {
		c.AliveTimeout = defaultAliveTimeout
	}
	if c.MaxReadBytes <= 0 {
		c.MaxReadBytes = defaultMaxBytes
	}
	if c.MaxWriteBytes <= 0 {
		c.MaxWriteBytes = defaultMaxBytes
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Connection manages the socket for one STOMP session.
type Connection struct {
	group  *failover.Group
	cfg    Config
	log    *zap.Logger
	conn   net.Conn
	active *failover.Endpoint

	parser    *parser.Parser
	observers observer.Set

	// waitCallback runs between readiness polls during a read wait.
	// Returning false aborts the wait and ReadFrame yields no frame.
	waitCallback func() bool
}

// New returns an unconnected Connection for the given endpoint group.
func New(group *failover.Group, cfg Config) *Connection {
	cfg = cfg.withDefaults()
	c := &Connection{
		group:  group,
		cfg:    cfg,
		log:    cfg.Logger,
		parser: parser.New(),
	}
	c.parser.OnHeartbeat(c.observers.EmptyLineRead)
	return c
}

// NewWithConn wraps an already established socket, bypassing failover.
// Useful for custom transports and tests.
func NewWithConn(conn net.Conn, cfg Config) *Connection {
	c := New(failover.NewGroup(nil, false), cfg)
	c.conn = conn
	return c
}

// Parser exposes the frame parser so the session can switch it out of
// legacy mode after version negotiation.
func (c *Connection) Parser() *parser.Parser {
	return c.parser
}

// AddObserver registers a connection observer.
func (c *Connection) AddObserver(o observer.ConnectionObserver) {
	c.observers.Add(o)
}

// RemoveObserver drops a connection observer.
func (c *Connection) RemoveObserver(o observer.ConnectionObserver) {
	c.observers.Remove(o)
}

// SetWaitCallback installs the cooperative hook invoked between readiness
// polls. A nil callback removes it.
func (c *Connection) SetWaitCallback(fn func() bool) {
	c.waitCallback = fn
}

// ActiveEndpoint returns the endpoint currently connected, or nil.
func (c *Connection) ActiveEndpoint() *failover.Endpoint {
	return c.active
}

// Connected reports whether a socket is open.
func (c *Connection) Connected() bool {
	return c.conn != nil
}

// Connect dials the group's endpoints in order (shuffled when the group
// randomizes) and keeps the first socket that opens. When every endpoint
// fails the returned ConnectionError chains all attempt errors.
func (c *Connection) Connect() error {
	if c.conn != nil {
		return nil
	}
	var attempts []error
	for _, ep := range c.group.Endpoints() {
		conn, err := c.dial(ep)
		if err != nil {
			c.log.Debug("broker dial failed",
				zap.String("endpoint", ep.String()), zap.Error(err))
			attempts = append(attempts, fmt.Errorf("%s: %w", ep, err))
			continue
		}
		c.conn = conn
		active := ep
		c.active = &active
		c.log.Debug("broker connected", zap.String("endpoint", ep.String()))
		return nil
	}
	if len(attempts) == 0 {
		return &ConnectionError{Op: "connect", Err: errors.New("no endpoints configured")}
	}
	return &ConnectionError{Op: "connect", Err: errors.Join(attempts...)}
}

func (c *Connection) dial(ep failover.Endpoint) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: c.cfg.ConnectTimeout}
	if !ep.SSL() {
		return dialer.Dial("tcp", ep.Addr())
	}
	tlsCfg := c.cfg.TLS
	if tlsCfg == nil {
		tlsCfg = &tls.Config{ServerName: ep.Host}
	}
	return tls.DialWithDialer(dialer, "tcp", ep.Addr(), tlsCfg)
}

// Disconnect shuts the socket and clears the active endpoint. Further
// operations fail with a not-connected error.
func (c *Connection) Disconnect() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.active = nil
	return err
}

func (c *Connection) errNotConnected(op string) error {
	return &ConnectionError{Op: op, Err: errors.New("not connected")}
}

func (c *Connection) hostString() string {
	if c.active == nil {
		return ""
	}
	return c.active.String()
}

// WriteFrame serializes and writes a frame, then notifies observers.
func (c *Connection) WriteFrame(f *frame.Frame) error {
	if c.conn == nil {
		return c.errNotConnected("write")
	}
	if err := c.writeData(f.Marshal(), c.cfg.WriteTimeout); err != nil {
		return err
	}
	c.observers.SentFrame(f)
	return nil
}

// SendAlive writes the single heartbeat byte under the alive timeout.
func (c *Connection) SendAlive() error {
	if c.conn == nil {
		return c.errNotConnected("heartbeat")
	}
	return c.writeData([]byte{'\n'}, c.cfg.AliveTimeout)
}

// writeData pushes data out in chunks of at most MaxWriteBytes. The
// deadline restarts whenever bytes leave the socket, so the timeout bounds
// stalled progress rather than total transfer time.
func (c *Connection) writeData(data []byte, timeout time.Duration) error {
	for len(data) > 0 {
		chunk := data
		if len(chunk) > c.cfg.MaxWriteBytes {
			chunk = chunk[:c.cfg.MaxWriteBytes]
		}
		if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return &ConnectionError{Host: c.hostString(), Op: "write", Err: err}
		}
		n, err := c.conn.Write(chunk)
		data = data[n:]
		if err != nil {
			var nerr net.Error
			if n > 0 && errors.As(err, &nerr) && nerr.Timeout() {
				// Forward progress was made; keep going with a fresh
				// deadline.
				time.Sleep(partialWriteSleep)
				continue
			}
			return &ConnectionError{Host: c.hostString(), Op: "write", Err: err}
		}
		if len(data) > 0 {
			time.Sleep(partialWriteSleep)
		}
	}
	return nil
}

// ReadFrame returns the next inbound frame. It first drains frames already
// decoded by the parser, then waits up to ReadTimeout for wire data. A nil
// frame with a nil error means no frame arrived within the budget, the wait
// callback cancelled the wait, or the peer half-closed the stream.
//
// A broker ERROR frame is converted into an *ErrorFrame error.
func (c *Connection) ReadFrame() (*frame.Frame, error) {
	if c.conn == nil {
		return nil, c.errNotConnected("read")
	}
	deadline := time.Now().Add(c.cfg.ReadTimeout)
	buf := make([]byte, c.cfg.MaxReadBytes)
	for {
		if f := c.parser.NextFrame(); f != nil {
			return c.deliver(f)
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			return nil, nil
		}
		poll := pollInterval
		if poll > remain {
			poll = remain
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(poll)); err != nil {
			return nil, &ConnectionError{Host: c.hostString(), Op: "read", Err: err}
		}
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.parser.AddData(buf[:n])
			continue
		}
		if err == nil {
			c.observers.EmptyRead()
			time.Sleep(emptyReadSleep)
			continue
		}
		var nerr net.Error
		switch {
		case errors.As(err, &nerr) && nerr.Timeout():
			// Liveness is judged and the callback runs only after the
			// socket had a full slice to speak; heartbeat bytes pending in
			// the kernel buffer must refresh the watchdog first.
			c.observers.EmptyBuffer()
			if werr := c.observers.Err(); werr != nil {
				return nil, werr
			}
			if c.waitCallback != nil && !c.waitCallback() {
				return nil, nil
			}
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, net.ErrClosed):
			c.observers.EmptyRead()
			time.Sleep(emptyReadSleep)
			return nil, nil
		default:
			return nil, &ConnectionError{Host: c.hostString(), Op: "read", Err: err}
		}
	}
}

// NextBuffered returns a frame decodable from bytes already buffered,
// without touching the socket.
func (c *Connection) NextBuffered() (*frame.Frame, error) {
	if f := c.parser.NextFrame(); f != nil {
		return c.deliver(f)
	}
	return nil, nil
}

// HasBufferedData reports whether undecoded bytes remain in the parser.
func (c *Connection) HasBufferedData() bool {
	return !c.parser.BufferEmpty()
}

func (c *Connection) deliver(f *frame.Frame) (*frame.Frame, error) {
	c.observers.ReceivedFrame(f)
	if f.Command == frame.CmdError {
		return nil, &ErrorFrame{Frame: f}
	}
	return f, nil
}
