// Connection pooling. Connections are not safe for concurrent use, so
// callers that fan work out over goroutines borrow a connection for
// exclusive use and return it when done.
//
// The pool is a buffered channel: FIFO, goroutine-safe, and blocking on
// empty comes for free.

package transport

import (
	"errors"
	"sync"

	"gostomp/failover"
)

// Pool hands out connections to one broker group for exclusive use.
// Connections are created lazily up to the pool's capacity.
type Pool struct {
	mu    sync.Mutex
	idle  chan *PooledConn
	group *failover.Group
	cfg   Config
	max   int
	cur   int
}

// PooledConn is a Connection on loan from a Pool. MarkBroken tells the pool
// to discard it instead of recycling it.
type PooledConn struct {
	*Connection
	pool   *Pool
	broken bool
}

// MarkBroken flags the connection as unusable; Put will close it.
func (pc *PooledConn) MarkBroken() {
	pc.broken = true
}

// Return gives the connection back to its pool.
func (pc *PooledConn) Return() {
	pc.pool.Put(pc)
}

// NewPool builds a pool of at most max connections to the group.
func NewPool(group *failover.Group, cfg Config, max int) *Pool {
	if max < 1 {
		max = 1
	}
	return &Pool{
		idle:  make(chan *PooledConn, max),
		group: group,
		cfg:   cfg,
		max:   max,
	}
}

// Get borrows a connection: an idle one when available, a freshly dialed one
// while under capacity, otherwise it blocks until a connection is returned.
func (p *Pool) Get() (*PooledConn, error) {
	select {
	case pc := <-p.idle:
		if pc.broken {
			pc.Connection.Disconnect()
			p.forget()
			return p.dialNew()
		}
		return pc, nil
	default:
	}

	p.mu.Lock()
	under := p.cur < p.max
	p.mu.Unlock()
	if under {
		return p.dialNew()
	}
	return <-p.idle, nil
}

// Put returns a borrowed connection. Broken connections are closed and
// their slot freed for a future dial.
func (p *Pool) Put(pc *PooledConn) {
	if pc.broken || !pc.Connected() {
		pc.Connection.Disconnect()
		p.forget()
		return
	}
	p.idle <- pc
}

// Close disconnects every idle connection. Borrowed connections are closed
// as they come back through Put.
func (p *Pool) Close() error {
	var errs []error
	for {
		select {
		case pc := <-p.idle:
			if err := pc.Connection.Disconnect(); err != nil {
				errs = append(errs, err)
			}
			p.forget()
		default:
			return errors.Join(errs...)
		}
	}
}

func (p *Pool) forget() {
	p.mu.Lock()
	p.cur--
	p.mu.Unlock()
}

func (p *Pool) dialNew() (*PooledConn, error) {
	p.mu.Lock()
	if p.cur >= p.max {
		p.mu.Unlock()
		return nil, &ConnectionError{Op: "pool", Err: errors.New("pool at capacity")}
	}
	p.cur++
	p.mu.Unlock()

	conn := New(p.group, p.cfg)
	if err := conn.Connect(); err != nil {
		p.forget()
		return nil, err
	}
	return &PooledConn{Connection: conn, pool: p}, nil
}
