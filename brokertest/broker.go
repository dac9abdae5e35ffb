// Package brokertest runs a scripted in-process STOMP broker for tests.
//
// The broker answers CONNECT with a configurable CONNECTED frame, issues
// receipts for frames carrying a receipt header, records every client frame
// and lets tests push arbitrary frames to the connected client. It makes no
// attempt at real broker semantics; the Intercept hook scripts anything
// beyond the defaults.
package brokertest

import (
	"net"
	"sync"

	"gostomp/frame"
	"gostomp/parser"
)

// Config scripts the broker's behavior.
type Config struct {
	// Version is the CONNECTED version header. Default "1.2".
	Version string
	// Server is the CONNECTED server header. Default "gostomp-brokertest/1.0".
	Server string
	// Session is the CONNECTED session header. Default "session-test".
	Session string
	// HeartBeat is the CONNECTED heart-beat header. Default "0,0".
	HeartBeat string
	// OmitConnected suppresses the CONNECTED reply.
	OmitConnected bool
	// OmitReceipts suppresses automatic RECEIPT replies.
	OmitReceipts bool
	// Intercept runs before the default handling of each client frame. The
	// returned frames are written to the client; handled true suppresses
	// the default reply.
	Intercept func(f *frame.Frame) (replies []*frame.Frame, handled bool)
}

func (c Config) withDefaults() Config {
	if c.Version == "" {
		c.Version = "1.2"
	}
	if c.Server == "" {
		c.Server = "gostomp-brokertest/1.0"
	}
	if c.Session == "" {
		c.Session = "session-test"
	}
	if c.HeartBeat == "" {
		c.HeartBeat = "0,0"
	}
	return c
}

// Broker is a fake broker listening on a loopback port.
type Broker struct {
	cfg      Config
	listener net.Listener
	wg       sync.WaitGroup

	mu       sync.Mutex
	conn     net.Conn // most recent client connection
	received []*frame.Frame

	// writeMu serializes writes so Push cannot interleave with a reply
	// being written from the handler goroutine.
	writeMu sync.Mutex
}

// Start listens on an ephemeral loopback port and serves connections until
// Close.
func Start(cfg Config) (*Broker, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	b := &Broker{cfg: cfg.withDefaults(), listener: listener}
	b.wg.Add(1)
	go b.acceptLoop()
	return b, nil
}

// Addr returns the host:port the broker listens on.
func (b *Broker) Addr() string {
	return b.listener.Addr().String()
}

// URI returns the broker address as a tcp:// URI.
func (b *Broker) URI() string {
	return "tcp://" + b.Addr()
}

// Received returns a snapshot of every frame read from clients so far.
func (b *Broker) Received() []*frame.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*frame.Frame, len(b.received))
	copy(out, b.received)
	return out
}

// ReceivedCommands returns the commands of the received frames, in order.
func (b *Broker) ReceivedCommands() []string {
	frames := b.Received()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Command
	}
	return out
}

// Push writes a frame to the connected client.
func (b *Broker) Push(f *frame.Frame) error {
	return b.PushRaw(f.Marshal())
}

// PushRaw writes raw bytes to the connected client, for scripting
// heartbeats or malformed data.
func (b *Broker) PushRaw(data []byte) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}
	return b.write(conn, data)
}

func (b *Broker) write(conn net.Conn, data []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_, err := conn.Write(data)
	return err
}

// Close stops accepting, drops the active connection and waits for the
// serving goroutines to finish.
func (b *Broker) Close() {
	b.listener.Close()
	b.mu.Lock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Broker) acceptLoop() {
	defer b.wg.Done()
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		b.wg.Add(1)
		go b.handleConn(conn)
	}
}

func (b *Broker) handleConn(conn net.Conn) {
	defer b.wg.Done()
	defer conn.Close()

	p := parser.New()
	buf := make([]byte, 8*1024)
	for {
		for {
			f := p.NextFrame()
			if f == nil {
				break
			}
			if done := b.handleFrame(conn, p, f); done {
				return
			}
		}
		n, err := conn.Read(buf)
		if n > 0 {
			p.AddData(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// handleFrame records the frame and produces the scripted reply. Returns
// true when the connection should close.
func (b *Broker) handleFrame(conn net.Conn, p *parser.Parser, f *frame.Frame) bool {
	b.mu.Lock()
	b.received = append(b.received, f)
	b.mu.Unlock()

	if b.cfg.Intercept != nil {
		replies, handled := b.cfg.Intercept(f)
		for _, reply := range replies {
			b.write(conn, reply.Marshal())
		}
		if handled {
			return false
		}
	}

	switch f.Command {
	case frame.CmdConnect, frame.CmdStomp:
		if b.cfg.OmitConnected {
			return false
		}
		connected := frame.New(frame.CmdConnected, nil)
		connected.Header.Set(frame.HdrVersion, b.cfg.Version)
		connected.Header.Set(frame.HdrSession, b.cfg.Session)
		connected.Header.Set(frame.HdrServer, b.cfg.Server)
		connected.Header.Set(frame.HdrHeartBeat, b.cfg.HeartBeat)
		b.write(conn, connected.Marshal())
		if b.cfg.Version != "1.0" {
			p.SetLegacy(false)
		}
		return false
	case frame.CmdDisconnect:
		b.sendReceipt(conn, f)
		return true
	default:
		b.sendReceipt(conn, f)
		return false
	}
}

func (b *Broker) sendReceipt(conn net.Conn, f *frame.Frame) {
	if b.cfg.OmitReceipts {
		return
	}
	id, ok := f.Header.Get(frame.HdrReceipt)
	if !ok {
		return
	}
	receipt := frame.New(frame.CmdReceipt, nil)
	receipt.Header.Set(frame.HdrReceiptID, id)
	b.write(conn, receipt.Marshal())
}
