package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostomp/failover"
)

// memoryRegistry is an in-process Registry for exercising the interface
// without an etcd cluster.
type memoryRegistry struct {
	clusters map[string]map[string]failover.Endpoint
}

func newMemoryRegistry() *memoryRegistry {
	return &memoryRegistry{clusters: map[string]map[string]failover.Endpoint{}}
}

func (m *memoryRegistry) Register(cluster string, ep failover.Endpoint, ttl int64) error {
	if m.clusters[cluster] == nil {
		m.clusters[cluster] = map[string]failover.Endpoint{}
	}
	m.clusters[cluster][ep.Addr()] = ep
	return nil
}

func (m *memoryRegistry) Deregister(cluster string, ep failover.Endpoint) error {
	delete(m.clusters[cluster], ep.Addr())
	return nil
}

func (m *memoryRegistry) Discover(cluster string) ([]failover.Endpoint, error) {
	out := make([]failover.Endpoint, 0, len(m.clusters[cluster]))
	for _, ep := range m.clusters[cluster] {
		out = append(out, ep)
	}
	return out, nil
}

func (m *memoryRegistry) Watch(cluster string) <-chan []failover.Endpoint {
	ch := make(chan []failover.Endpoint)
	close(ch)
	return ch
}

func TestGroupFromRegistry(t *testing.T) {
	r := newMemoryRegistry()
	a := failover.Endpoint{Scheme: "tcp", Host: "broker-a", Port: 61613}
	b := failover.Endpoint{Scheme: "ssl", Host: "broker-b", Port: 61614}
	require.NoError(t, r.Register("prod", a, 30))
	require.NoError(t, r.Register("prod", b, 30))
	require.NoError(t, r.Register("staging", a, 30))

	g, err := Group(r, "prod", false)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
	assert.False(t, g.Randomized())

	hosts := map[string]bool{}
	for _, ep := range g.Endpoints() {
		hosts[ep.Host] = true
	}
	assert.True(t, hosts["broker-a"])
	assert.True(t, hosts["broker-b"])
}

func TestGroupAfterDeregister(t *testing.T) {
	r := newMemoryRegistry()
	a := failover.Endpoint{Scheme: "tcp", Host: "broker-a", Port: 61613}
	b := failover.Endpoint{Scheme: "tcp", Host: "broker-b", Port: 61613}
	require.NoError(t, r.Register("prod", a, 30))
	require.NoError(t, r.Register("prod", b, 30))
	require.NoError(t, r.Deregister("prod", a))

	g, err := Group(r, "prod", true)
	require.NoError(t, err)
	require.Equal(t, 1, g.Len())
	assert.Equal(t, "broker-b", g.Endpoints()[0].Host)
	assert.True(t, g.Randomized())
}

func TestGroupEmptyCluster(t *testing.T) {
	g, err := Group(newMemoryRegistry(), "nowhere", false)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
}
