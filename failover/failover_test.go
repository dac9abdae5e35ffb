package failover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingleEndpoint(t *testing.T) {
	g, err := Parse("tcp://broker.example.org:61616")
	require.NoError(t, err)
	require.Equal(t, 1, g.Len())

	ep := g.Endpoints()[0]
	assert.Equal(t, "tcp", ep.Scheme)
	assert.Equal(t, "broker.example.org", ep.Host)
	assert.Equal(t, 61616, ep.Port)
	assert.Equal(t, "broker.example.org:61616", ep.Addr())
	assert.False(t, g.Randomized())
}

func TestParseDefaultPort(t *testing.T) {
	g, err := Parse("tcp://localhost")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, g.Endpoints()[0].Port)
}

func TestParseFailoverURI(t *testing.T) {
	g, err := Parse("failover://(tcp://a:61613,ssl://b:61614)?randomize=false")
	require.NoError(t, err)
	require.Equal(t, 2, g.Len())
	assert.False(t, g.Randomized())

	eps := g.Endpoints()
	assert.Equal(t, "a", eps[0].Host)
	assert.False(t, eps[0].SSL())
	assert.Equal(t, "b", eps[1].Host)
	assert.True(t, eps[1].SSL())
}

func TestParseFailoverRandomize(t *testing.T) {
	g, err := Parse("failover://(tcp://a,tcp://b)?randomize=true")
	require.NoError(t, err)
	assert.True(t, g.Randomized())

	// Shuffled output is still a permutation of the configured endpoints.
	seen := map[string]int{}
	for i := 0; i < 20; i++ {
		eps := g.Endpoints()
		require.Len(t, eps, 2)
		seen[eps[0].Host]++
	}
	assert.Equal(t, 20, seen["a"]+seen["b"])
}

func TestParseErrors(t *testing.T) {
	for _, uri := range []string{
		"failover://tcp://a:61613",          // missing parens
		"failover://(tcp://a)?randomize=up", // bad boolean
		"://nohost",
		"noscheme",
		"tcp://host:notaport",
	} {
		_, err := Parse(uri)
		assert.Error(t, err, uri)
	}
}

func TestEndpointSSLSchemes(t *testing.T) {
	for scheme, want := range map[string]bool{
		"tcp": false, "stomp": false,
		"ssl": true, "tls": true, "stomp+ssl": true,
	} {
		assert.Equal(t, want, Endpoint{Scheme: scheme}.SSL(), scheme)
	}
}

func TestOrderedStrategy(t *testing.T) {
	g := NewGroup([]Endpoint{{Host: "a"}, {Host: "b"}, {Host: "c"}}, false)
	for i := 0; i < 3; i++ {
		eps := g.Endpoints()
		assert.Equal(t, "a", eps[0].Host)
		assert.Equal(t, "c", eps[2].Host)
	}
}

func TestRoundRobinStrategy(t *testing.T) {
	g := NewGroup([]Endpoint{{Host: "a"}, {Host: "b"}, {Host: "c"}}, false)
	g.SetStrategy(RoundRobin())

	assert.Equal(t, "a", g.Endpoints()[0].Host)
	assert.Equal(t, "b", g.Endpoints()[0].Host)
	assert.Equal(t, "c", g.Endpoints()[0].Host)
	assert.Equal(t, "a", g.Endpoints()[0].Host)

	// The full candidate list is preserved, just rotated.
	eps := g.Endpoints()
	require.Len(t, eps, 3)
	assert.ElementsMatch(t,
		[]string{"a", "b", "c"},
		[]string{eps[0].Host, eps[1].Host, eps[2].Host})
}

func TestGroupEndpointsIsolated(t *testing.T) {
	g := NewGroup([]Endpoint{{Host: "a"}, {Host: "b"}}, false)
	eps := g.Endpoints()
	eps[0].Host = "mutated"
	assert.Equal(t, "a", g.Endpoints()[0].Host)
}
