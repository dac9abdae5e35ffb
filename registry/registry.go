// Package registry provides dynamic broker endpoint discovery as an
// alternative to static failover URIs. Brokers of a named cluster register
// their endpoints; clients resolve the cluster into a failover group.
package registry

import "gostomp/failover"

// Registry tracks the live broker endpoints of named clusters.
type Registry interface {
	// Register announces a broker endpoint under the cluster with a TTL in
	// seconds; the entry expires automatically when the broker dies.
	Register(cluster string, endpoint failover.Endpoint, ttl int64) error

	// Deregister removes a broker endpoint from the cluster.
	Deregister(cluster string, endpoint failover.Endpoint) error

	// Discover returns the currently registered endpoints of the cluster.
	Discover(cluster string) ([]failover.Endpoint, error)

	// Watch emits the full endpoint list whenever cluster membership
	// changes.
	Watch(cluster string) <-chan []failover.Endpoint
}

// Group resolves a cluster into a failover group ready for dialing.
func Group(r Registry, cluster string, randomize bool) (*failover.Group, error) {
	endpoints, err := r.Discover(cluster)
	if err != nil {
		return nil, err
	}
	return failover.NewGroup(endpoints, randomize), nil
}
