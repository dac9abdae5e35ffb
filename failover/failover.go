// Package failover parses broker URIs and selects connection endpoints.
//
// Two URI forms are accepted:
//
//	tcp://broker.example.org:61613
//	failover://(tcp://a:61613,ssl://b:61614)?randomize=true
//
// A Group holds the candidate endpoints; Endpoints returns them in dial
// order, shuffled when randomize is on. The dial loop itself lives in the
// transport package.
package failover

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPort is the IANA registered STOMP port.
const DefaultPort = 61613

// Endpoint is a single broker address. The scheme is preserved verbatim so
// the transport can pick plain TCP or TLS.
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
}

// Addr returns the host:port dial target.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s:%d", e.Scheme, e.Host, e.Port)
}

// SSL reports whether the endpoint requires a TLS transport.
func (e Endpoint) SSL() bool {
	return e.Scheme == "ssl" || e.Scheme == "tls" || e.Scheme == "stomp+ssl"
}

// Group is an ordered set of candidate endpoints for one logical broker.
type Group struct {
	endpoints []Endpoint
	randomize bool
	strategy  Strategy
}

// NewGroup builds a group from explicit endpoints, for callers that discover
// brokers outside of URI configuration (see the registry package).
func NewGroup(endpoints []Endpoint, randomize bool) *Group {
	eps := make([]Endpoint, len(endpoints))
	copy(eps, endpoints)
	return &Group{endpoints: eps, randomize: randomize}
}

// Parse builds a group from a broker URI, either a single endpoint or the
// failover form.
func Parse(uri string) (*Group, error) {
	if !strings.HasPrefix(uri, "failover:") {
		ep, err := parseEndpoint(uri)
		if err != nil {
			return nil, err
		}
		return &Group{endpoints: []Endpoint{ep}}, nil
	}

	rest := strings.TrimPrefix(uri, "failover:")
	rest = strings.TrimPrefix(rest, "//")
	open := strings.Index(rest, "(")
	closing := strings.LastIndex(rest, ")")
	if open != 0 || closing < 0 {
		return nil, fmt.Errorf("failover: malformed uri %q, expected failover://(url,...)", uri)
	}

	g := &Group{}
	for _, raw := range strings.Split(rest[open+1:closing], ",") {
		ep, err := parseEndpoint(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		g.endpoints = append(g.endpoints, ep)
	}
	if len(g.endpoints) == 0 {
		return nil, fmt.Errorf("failover: no endpoints in %q", uri)
	}

	query := strings.TrimPrefix(rest[closing+1:], "?")
	if query != "" {
		values, err := url.ParseQuery(query)
		if err != nil {
			return nil, fmt.Errorf("failover: bad query in %q: %w", uri, err)
		}
		if v := values.Get("randomize"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("failover: randomize must be a boolean, got %q", v)
			}
			g.randomize = b
		}
	}
	return g, nil
}

func parseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("failover: parsing endpoint %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return Endpoint{}, fmt.Errorf("failover: endpoint %q needs scheme://host[:port]", raw)
	}
	port := DefaultPort
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return Endpoint{}, fmt.Errorf("failover: bad port in %q: %w", raw, err)
		}
	}
	return Endpoint{Scheme: u.Scheme, Host: u.Hostname(), Port: port}, nil
}

// Randomized reports whether the group shuffles its endpoints.
func (g *Group) Randomized() bool {
	return g.randomize
}

// Len returns the number of candidate endpoints.
func (g *Group) Len() int {
	return len(g.endpoints)
}

// SetStrategy overrides how Endpoints orders the candidates. The default
// follows the randomize flag: Shuffled when set, Ordered otherwise.
func (g *Group) SetStrategy(s Strategy) {
	g.strategy = s
}

// Endpoints returns the endpoints in the order a connect attempt should try
// them, as decided by the active strategy.
func (g *Group) Endpoints() []Endpoint {
	out := make([]Endpoint, len(g.endpoints))
	copy(out, g.endpoints)
	s := g.strategy
	if s == nil {
		if g.randomize {
			s = Shuffled()
		} else {
			s = Ordered()
		}
	}
	return s.Order(out)
}
