// Package ids hands out integers that are unique among all concurrently
// live ids in the process. Subscription ids from independent sessions must
// never collide, so the pool is deliberately process-wide.
package ids

import (
	"errors"
	"sync"
)

// maxLive caps how many ids may be outstanding at once.
const maxLive = 1 << 20

var (
	mu   sync.Mutex
	next int
	used = make(map[int]struct{})
)

// ErrExhausted is returned when every id in the space is live.
var ErrExhausted = errors.New("ids: id space exhausted")

// Generate reserves and returns a fresh id.
func Generate() (int, error) {
	mu.Lock()
	defer mu.Unlock()
	if len(used) >= maxLive {
		return 0, ErrExhausted
	}
	for {
		next++
		if next >= maxLive {
			next = 1
		}
		if _, live := used[next]; !live {
			used[next] = struct{}{}
			return next, nil
		}
	}
}

// Release returns an id to the pool. Releasing an id that is not live is a
// no-op.
func Release(id int) {
	mu.Lock()
	delete(used, id)
	mu.Unlock()
}
