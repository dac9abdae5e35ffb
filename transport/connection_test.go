package transport

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostomp/failover"
	"gostomp/frame"
	"gostomp/observer"
)

type recordingObserver struct {
	observer.Base
	mu       sync.Mutex
	sent     []*frame.Frame
	received []*frame.Frame
}

func (r *recordingObserver) SentFrame(f *frame.Frame) {
	r.mu.Lock()
	r.sent = append(r.sent, f)
	r.mu.Unlock()
}

func (r *recordingObserver) ReceivedFrame(f *frame.Frame) {
	r.mu.Lock()
	r.received = append(r.received, f)
	r.mu.Unlock()
}

type stuckObserver struct {
	observer.Base
	err error
}

func (s *stuckObserver) Err() error { return s.err }

// pipeConn returns a connection wrapping one end of an in-memory pipe and
// the raw other end.
func pipeConn(cfg Config) (*Connection, net.Conn) {
	local, remote := net.Pipe()
	return NewWithConn(local, cfg), remote
}

// readUntilNul collects bytes from the raw side until a frame terminator.
func readUntilNul(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	var out bytes.Buffer
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		out.Write(buf[:n])
		if bytes.IndexByte(buf[:n], 0) >= 0 {
			return out.Bytes()
		}
	}
}

func TestWriteFrame(t *testing.T) {
	c, remote := pipeConn(Config{})
	defer c.Disconnect()

	rec := &recordingObserver{}
	c.AddObserver(rec)

	f := frame.New(frame.CmdSend, []byte("hello"))
	f.Header.Set(frame.HdrDestination, "/queue/test")

	done := make(chan []byte, 1)
	go func() { done <- readUntilNul(t, remote) }()

	require.NoError(t, c.WriteFrame(f))
	assert.Equal(t, f.Marshal(), <-done)
	require.Len(t, rec.sent, 1)
	assert.Same(t, f, rec.sent[0])
}

func TestWriteFrameChunked(t *testing.T) {
	c, remote := pipeConn(Config{MaxWriteBytes: 8})
	defer c.Disconnect()

	body := bytes.Repeat([]byte("x"), 300)
	f := frame.New(frame.CmdSend, body)

	done := make(chan []byte, 1)
	go func() { done <- readUntilNul(t, remote) }()

	require.NoError(t, c.WriteFrame(f))
	assert.Equal(t, f.Marshal(), <-done)
}

func TestSendAlive(t *testing.T) {
	c, remote := pipeConn(Config{})
	defer c.Disconnect()

	done := make(chan byte, 1)
	go func() {
		buf := make([]byte, 1)
		remote.Read(buf)
		done <- buf[0]
	}()

	require.NoError(t, c.SendAlive())
	assert.Equal(t, byte('\n'), <-done)
}

func TestReadFrame(t *testing.T) {
	c, remote := pipeConn(Config{})
	defer c.Disconnect()

	rec := &recordingObserver{}
	c.AddObserver(rec)

	msg := frame.New(frame.CmdMessage, []byte("payload"))
	msg.Header.Set(frame.HdrDestination, "/queue/test")
	go remote.Write(msg.Marshal())

	f, err := c.ReadFrame()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, frame.CmdMessage, f.Command)
	assert.Equal(t, "payload", f.BodyString())
	require.Len(t, rec.received, 1)
}

func TestReadFrameBrokerError(t *testing.T) {
	c, remote := pipeConn(Config{})
	defer c.Disconnect()

	e := frame.New(frame.CmdError, []byte("details"))
	e.Header.Set(frame.HdrMessage, "malformed frame received")
	go remote.Write(e.Marshal())

	f, err := c.ReadFrame()
	assert.Nil(t, f)

	var ferr *ErrorFrame
	require.ErrorAs(t, err, &ferr)
	assert.Contains(t, ferr.Error(), "malformed frame received")
	assert.Equal(t, "details", ferr.Frame.BodyString())
}

func TestReadFrameTimeout(t *testing.T) {
	c, _ := pipeConn(Config{ReadTimeout: 60 * time.Millisecond})
	defer c.Disconnect()

	start := time.Now()
	f, err := c.ReadFrame()
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestReadFrameWaitCallbackAborts(t *testing.T) {
	c, _ := pipeConn(Config{ReadTimeout: 10 * time.Second})
	defer c.Disconnect()

	calls := 0
	c.SetWaitCallback(func() bool {
		calls++
		return false
	})

	f, err := c.ReadFrame()
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, 1, calls)
}

func TestReadFrameEOF(t *testing.T) {
	c, remote := pipeConn(Config{ReadTimeout: time.Second})
	defer c.Disconnect()

	remote.Close()
	f, err := c.ReadFrame()
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestReadFramePendingHeartbeatResetsWatchdog(t *testing.T) {
	c, remote := pipeConn(Config{ReadTimeout: time.Second})
	defer c.Disconnect()

	watchdog := observer.NewServerAliveObserver()
	watchdog.SetInterval(40 * time.Millisecond)
	c.AddObserver(watchdog)

	go func() {
		// The beat sits in the pipe while the client stays away from the
		// socket; it must be counted before liveness is judged.
		remote.Write([]byte("\n"))
		msg := frame.New(frame.CmdMessage, []byte("late"))
		remote.Write(msg.Marshal())
	}()

	time.Sleep(200 * time.Millisecond)

	f, err := c.ReadFrame()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "late", f.BodyString())
	assert.NoError(t, watchdog.Err())
}

func TestReadFrameObserverFailure(t *testing.T) {
	c, _ := pipeConn(Config{ReadTimeout: time.Second})
	defer c.Disconnect()

	boom := errors.New("server considered dead")
	c.AddObserver(&stuckObserver{err: boom})

	f, err := c.ReadFrame()
	assert.Nil(t, f)
	assert.ErrorIs(t, err, boom)
}

func TestNextBuffered(t *testing.T) {
	c, _ := pipeConn(Config{})
	defer c.Disconnect()

	assert.False(t, c.HasBufferedData())
	f, err := c.NextBuffered()
	require.NoError(t, err)
	assert.Nil(t, f)

	msg := frame.New(frame.CmdMessage, []byte("one"))
	c.Parser().AddData(msg.Marshal())
	assert.True(t, c.HasBufferedData())

	f, err = c.NextBuffered()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "one", f.BodyString())
	assert.False(t, c.HasBufferedData())
}

func TestParserHeartbeatReachesObservers(t *testing.T) {
	c, _ := pipeConn(Config{})
	defer c.Disconnect()

	watchdog := observer.NewServerAliveObserver()
	watchdog.SetInterval(time.Hour)
	c.AddObserver(watchdog)

	c.Parser().AddData([]byte("\n"))
	f, err := c.NextBuffered()
	require.NoError(t, err)
	assert.Nil(t, f) // heartbeats never surface as frames
	assert.True(t, c.Parser().BufferEmpty())
}

func listen(t *testing.T) (net.Listener, failover.Endpoint) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	return l, failover.Endpoint{Scheme: "tcp", Host: "127.0.0.1", Port: addr.Port}
}

// deadEndpoint reserves a port and releases it so dialing is refused.
func deadEndpoint(t *testing.T) failover.Endpoint {
	t.Helper()
	l, ep := listen(t)
	l.Close()
	return ep
}

func TestConnectFailsOver(t *testing.T) {
	live, liveEP := listen(t)
	defer live.Close()
	go func() {
		conn, err := live.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(100 * time.Millisecond)
		}
	}()

	group := failover.NewGroup([]failover.Endpoint{deadEndpoint(t), liveEP}, false)
	c := New(group, Config{ConnectTimeout: time.Second})

	require.NoError(t, c.Connect())
	defer c.Disconnect()
	assert.True(t, c.Connected())
	require.NotNil(t, c.ActiveEndpoint())
	assert.Equal(t, liveEP.Port, c.ActiveEndpoint().Port)
}

func TestConnectAllEndpointsDead(t *testing.T) {
	first := deadEndpoint(t)
	second := deadEndpoint(t)
	group := failover.NewGroup([]failover.Endpoint{first, second}, false)
	c := New(group, Config{ConnectTimeout: 200 * time.Millisecond})

	err := c.Connect()
	var cerr *ConnectionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "connect", cerr.Op)
	assert.False(t, c.Connected())

	// Every attempt is in the cause chain.
	assert.Contains(t, err.Error(), first.Addr())
	assert.Contains(t, err.Error(), second.Addr())
}

func TestConnectNoEndpoints(t *testing.T) {
	c := New(failover.NewGroup(nil, false), Config{})
	var cerr *ConnectionError
	require.ErrorAs(t, c.Connect(), &cerr)
}

func TestOperationsWhenDisconnected(t *testing.T) {
	c := New(failover.NewGroup(nil, false), Config{})

	assert.Error(t, c.WriteFrame(frame.New(frame.CmdSend, nil)))
	assert.Error(t, c.SendAlive())
	_, err := c.ReadFrame()
	assert.Error(t, err)
	assert.NoError(t, c.Disconnect())
}
