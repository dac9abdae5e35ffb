package failover

import (
	"math/rand"
	"sync"
)

// Strategy decides the order in which a connect attempt walks the group's
// endpoints. Order may rearrange the slice in place and must be safe for
// concurrent use.
type Strategy interface {
	Order(endpoints []Endpoint) []Endpoint
	Name() string
}

// Ordered tries endpoints in configuration order. Earlier endpoints act as
// primaries, later ones as backups.
func Ordered() Strategy { return orderedStrategy{} }

type orderedStrategy struct{}

func (orderedStrategy) Order(endpoints []Endpoint) []Endpoint { return endpoints }
func (orderedStrategy) Name() string                          { return "ordered" }

// Shuffled tries endpoints in a fresh random order on every attempt. This is
// the behavior of randomize=true in a failover URI.
func Shuffled() Strategy { return shuffledStrategy{} }

type shuffledStrategy struct{}

func (shuffledStrategy) Order(endpoints []Endpoint) []Endpoint {
	rand.Shuffle(len(endpoints), func(i, j int) {
		endpoints[i], endpoints[j] = endpoints[j], endpoints[i]
	})
	return endpoints
}

func (shuffledStrategy) Name() string { return "shuffled" }

// RoundRobin rotates the starting endpoint on every attempt, spreading
// sessions evenly across the brokers of a cluster.
func RoundRobin() Strategy { return &roundRobinStrategy{} }

type roundRobinStrategy struct {
	mu   sync.Mutex
	next int
}

func (r *roundRobinStrategy) Order(endpoints []Endpoint) []Endpoint {
	if len(endpoints) < 2 {
		return endpoints
	}
	r.mu.Lock()
	start := r.next % len(endpoints)
	r.next++
	r.mu.Unlock()

	out := make([]Endpoint, 0, len(endpoints))
	out = append(out, endpoints[start:]...)
	out = append(out, endpoints[:start]...)
	return out
}

func (r *roundRobinStrategy) Name() string { return "round-robin" }
