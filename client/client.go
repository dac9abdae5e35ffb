// Package client implements the STOMP session on top of a transport
// connection: CONNECT/CONNECTED bring-up with version negotiation,
// receipt-synchronous sends, buffering of out-of-order frames, and graceful
// disconnect.
//
// A Client runs as a single cooperative flow of control; concurrent callers
// must serialize externally. Independent sessions over independent
// connections may run in parallel.
package client

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gostomp/frame"
	"gostomp/observer"
	"gostomp/protocol"
	"gostomp/transport"
)

// Config tunes a Client. The zero value connects anonymously, negotiates
// every protocol version, disables heartbeats and sends synchronously.
type Config struct {
	Login    string
	Passcode string
	// Host is the vhost for the CONNECT frame; defaults to the host of the
	// endpoint that accepted the connection.
	Host     string
	ClientID string
	// Versions restricts the accept-version offer; empty offers 1.0-1.2.
	Versions []protocol.Version
	// Beat is the requested heart-beat tuple in milliseconds.
	Beat protocol.HeartBeat
	// Async disables the default receipt handshake on sends.
	Async bool
	// ReceiptWait bounds one synchronous send. Default 2s.
	ReceiptWait time.Duration
	// ConnectTimeout bounds the wait for CONNECTED. Default 3s.
	ConnectTimeout time.Duration
	// SendLimit throttles outbound frames when set.
	SendLimit *rate.Limiter
	Logger    *zap.Logger
}

const (
	defaultReceiptWait    = 2 * time.Second
	defaultConnectTimeout = 3 * time.Second
)

// Client is one STOMP session over one connection. The Client owns the
// connection for its lifetime; Disconnect tears both down.
type Client struct {
	conn *transport.Connection
	cfg  Config
	log  *zap.Logger

	proto     protocol.Protocol
	version   protocol.Version
	sessionID string
	server    string
	connected bool

	// unprocessed holds frames read while waiting for a receipt; they are
	// replayed FIFO before any new wire read.
	unprocessed []*frame.Frame

	emitter  *observer.HeartbeatEmitter
	watchdog *observer.ServerAliveObserver
	traffic  *observer.LoggingObserver
}

// New wraps an unconnected transport connection.
func New(conn *transport.Connection, cfg Config) *Client {
	if cfg.ReceiptWait <= 0 {
		cfg.ReceiptWait = defaultReceiptWait
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{conn: conn, cfg: cfg, log: cfg.Logger}
}

// Connect opens the transport, performs the CONNECT/CONNECTED handshake and
// selects the dialect matching the negotiated version and server.
func (c *Client) Connect() error {
	if c.connected {
		return nil
	}
	if err := c.conn.Connect(); err != nil {
		return err
	}
	if c.traffic == nil {
		c.traffic = observer.NewLoggingObserver(c.log)
		c.conn.AddObserver(c.traffic)
	}

	// Until the server names a version, the wire speaks STOMP 1.0.
	c.conn.Parser().SetLegacy(true)

	host := c.cfg.Host
	if host == "" {
		if ep := c.conn.ActiveEndpoint(); ep != nil {
			host = ep.Host
		}
	}
	connect := protocol.NewStomp(protocol.V10, c.cfg.ClientID).ConnectFrame(protocol.ConnectOptions{
		Login:    c.cfg.Login,
		Passcode: c.cfg.Passcode,
		Host:     host,
		Versions: c.cfg.Versions,
		Beat:     c.cfg.Beat,
	})
	if err := c.conn.WriteFrame(connect); err != nil {
		return err
	}

	connected, err := c.awaitConnected()
	if err != nil {
		return err
	}
	return c.setupSession(connected)
}

func (c *Client) awaitConnected() (*frame.Frame, error) {
	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	c.conn.SetWaitCallback(func() bool { return time.Now().Before(deadline) })
	defer c.conn.SetWaitCallback(nil)

	for time.Now().Before(deadline) {
		f, err := c.conn.ReadFrame()
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		if f.Command != frame.CmdConnected {
			return nil, &UnexpectedResponseError{Expected: frame.CmdConnected, Frame: f}
		}
		return f, nil
	}
	return nil, &transport.ConnectionError{
		Op:  "connect",
		Err: errors.New("connection not acknowledged by broker"),
	}
}

func (c *Client) setupSession(connected *frame.Frame) error {
	v, err := protocol.ParseVersion(connected.Header.Value(frame.HdrVersion))
	if err != nil {
		return err
	}
	c.version = v
	if v.AtLeast(protocol.V11) {
		c.conn.Parser().SetLegacy(false)
	}
	c.sessionID = connected.Header.Value(frame.HdrSession)
	c.server = connected.Header.Value(frame.HdrServer)
	c.proto = protocol.ForServer(c.server, v, c.cfg.ClientID)
	c.setupHeartbeats(connected)
	c.connected = true
	c.log.Debug("session established",
		zap.String("version", v.String()),
		zap.String("session", c.sessionID),
		zap.String("server", c.server),
	)
	return nil
}

// setupHeartbeats resolves the negotiated intervals from the CONNECTED
// heart-beat header and installs the standard observers for whichever
// directions ended up active.
func (c *Client) setupHeartbeats(connected *frame.Frame) {
	serverSend, serverReceive := parseHeartBeat(connected.Header.Value(frame.HdrHeartBeat))
	send := negotiated(c.cfg.Beat.Send, serverReceive)
	receive := negotiated(c.cfg.Beat.Receive, serverSend)

	if send > 0 {
		c.emitter = observer.NewHeartbeatEmitter(c.conn)
		c.emitter.SetInterval(time.Duration(send) * time.Millisecond)
		c.conn.AddObserver(c.emitter)
	}
	if receive > 0 {
		c.watchdog = observer.NewServerAliveObserver()
		c.watchdog.SetInterval(time.Duration(receive) * time.Millisecond)
		c.conn.AddObserver(c.watchdog)
	}
}

func parseHeartBeat(value string) (send, receive int) {
	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	send, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
	receive, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	return send, receive
}

// negotiated resolves one heartbeat direction: both sides must opt in, and
// the slower side wins.
func negotiated(mine, theirs int) int {
	if mine <= 0 || theirs <= 0 {
		return 0
	}
	if mine > theirs {
		return mine
	}
	return theirs
}

// Protocol returns the active dialect. Nil before Connect.
func (c *Client) Protocol() protocol.Protocol {
	return c.proto
}

// Version returns the negotiated protocol version.
func (c *Client) Version() protocol.Version {
	return c.version
}

// SessionID returns the broker assigned session identifier.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Server returns the CONNECTED server header value.
func (c *Client) Server() string {
	return c.server
}

// Connected reports whether the handshake completed.
func (c *Client) Connected() bool {
	return c.connected
}

// Connection exposes the underlying transport connection.
func (c *Client) Connection() *transport.Connection {
	return c.conn
}

// Send writes a SEND frame for the destination with the given body, using
// the configured synchronicity.
func (c *Client) Send(destination string, body []byte) error {
	f := frame.New(frame.CmdSend, body)
	f.Header.Set(frame.HdrDestination, destination)
	return c.SendFrame(f)
}

// SendFrame writes a frame using the configured synchronicity.
func (c *Client) SendFrame(f *frame.Frame) error {
	return c.sendFrame(f, !c.cfg.Async)
}

// SendFrameSync writes a frame with an explicit synchronicity override.
func (c *Client) SendFrameSync(f *frame.Frame, sync bool) error {
	return c.sendFrame(f, sync)
}

func (c *Client) sendFrame(f *frame.Frame, sync bool) error {
	if !c.connected {
		return &transport.ConnectionError{Op: "send", Err: errors.New("client not connected")}
	}
	if c.cfg.SendLimit != nil {
		if err := c.cfg.SendLimit.Wait(context.Background()); err != nil {
			return err
		}
	}
	if !sync {
		return c.conn.WriteFrame(f)
	}
	// The receipt header is always owned by the sync path; a caller that
	// needs its own receipt must send asynchronously.
	receiptID := uuid.NewString()
	f.Header.Set(frame.HdrReceipt, receiptID)
	if err := c.conn.WriteFrame(f); err != nil {
		return err
	}
	return c.waitForReceipt(receiptID)
}

// waitForReceipt blocks until the matching RECEIPT arrives or ReceiptWait
// elapses. Non-receipt frames read in the meantime are queued for later
// delivery in arrival order.
func (c *Client) waitForReceipt(receiptID string) error {
	deadline := time.Now().Add(c.cfg.ReceiptWait)
	c.conn.SetWaitCallback(func() bool { return time.Now().Before(deadline) })
	defer c.conn.SetWaitCallback(nil)

	for {
		f, err := c.conn.ReadFrame()
		if err != nil {
			return err
		}
		if f == nil {
			if !time.Now().Before(deadline) {
				return &MissingReceiptError{ReceiptID: receiptID}
			}
			continue
		}
		if f.Command == frame.CmdReceipt {
			if id := f.Header.Value(frame.HdrReceiptID); id != receiptID {
				return &UnexpectedResponseError{
					Expected: frame.CmdReceipt + " " + receiptID,
					Frame:    f,
				}
			}
			return nil
		}
		c.unprocessed = append(c.unprocessed, f)
	}
}

// ReadFrame returns the next frame for the caller: buffered frames first in
// FIFO order, then whatever the connection produces within its read timeout.
// A nil frame with nil error means nothing arrived in time.
func (c *Client) ReadFrame() (*frame.Frame, error) {
	if f := c.popBuffered(); f != nil {
		return f, nil
	}
	if !c.connected {
		return nil, &transport.ConnectionError{Op: "read", Err: errors.New("client not connected")}
	}
	return c.conn.ReadFrame()
}

// ReadBuffered returns the next frame available without touching the
// socket: the unprocessed queue first, then frames decodable from bytes the
// parser already holds.
func (c *Client) ReadBuffered() (*frame.Frame, error) {
	if f := c.popBuffered(); f != nil {
		return f, nil
	}
	return c.conn.NextBuffered()
}

// FlushBufferedFrames drains every frame obtainable without new reads.
func (c *Client) FlushBufferedFrames() ([]*frame.Frame, error) {
	var out []*frame.Frame
	for {
		f, err := c.ReadBuffered()
		if err != nil {
			return out, err
		}
		if f == nil {
			return out, nil
		}
		out = append(out, f)
	}
}

// HasBufferedFrames reports whether ReadBuffered could still yield frames,
// counting undecoded parser bytes as potential frames.
func (c *Client) HasBufferedFrames() bool {
	return len(c.unprocessed) > 0 || c.conn.HasBufferedData()
}

func (c *Client) popBuffered() *frame.Frame {
	if len(c.unprocessed) == 0 {
		return nil
	}
	f := c.unprocessed[0]
	c.unprocessed = c.unprocessed[1:]
	return f
}

// Disconnect sends DISCONNECT when a session is up, then closes the
// transport. Errors from the farewell frame are suppressed; the socket is
// closed regardless.
func (c *Client) Disconnect() error {
	if c.connected {
		if err := c.conn.WriteFrame(c.proto.DisconnectFrame()); err != nil {
			c.log.Debug("disconnect frame failed", zap.Error(err))
		}
	}
	if c.emitter != nil {
		c.conn.RemoveObserver(c.emitter)
		c.emitter = nil
	}
	if c.watchdog != nil {
		c.conn.RemoveObserver(c.watchdog)
		c.watchdog = nil
	}
	if c.traffic != nil {
		c.conn.RemoveObserver(c.traffic)
		c.traffic = nil
	}
	c.connected = false
	c.sessionID = ""
	c.unprocessed = nil
	return c.conn.Disconnect()
}
