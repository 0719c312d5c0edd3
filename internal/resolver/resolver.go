// Package resolver implements the upstream DoH ResolverManager: a
// fixed list of resolvers selected by an epsilon-greedy policy over
// each one's rolling round-trip average, and the DoH POST that
// actually forwards a query.
//
// Grounded on the teacher's internal/resolvers/forwarding_resolver.go
// for the general "own a list of upstreams, track health, pick one"
// shape, but the selection policy and the upstream transport are both
// replaced: DoH-over-HTTP/gzip-free POST instead of raw UDP/TCP forwarding,
// and epsilon-greedy-by-latency instead of ordered failover, per
// _examples/original_source/src/resolver_manager.rs.
package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"

	"github.com/asgrim/dohward/internal/dns"
)

// RandomFactor is the probability get_resolver ignores the current
// rolling minimum and picks uniformly at random instead, keeping the
// other endpoints probed even once one pulls ahead.
const RandomFactor = 0.05

// ErrNoResolvers is returned when the manager has no resolvers configured.
var ErrNoResolvers = errors.New("resolver: no resolvers configured")

// Header is an additional HTTP header sent with a resolver's DoH
// request — used when the resolver's URL host doesn't match the
// authority its TLS certificate expects (e.g. Google's public IP).
type Header struct {
	Name  string
	Value string
}

// Resolver is one upstream DoH endpoint and its current rolling
// average round-trip, in the same time unit the caller's instrumentation
// uses (this package never reads a clock itself).
type Resolver struct {
	URL     string
	Header  *Header
	AvgRTT  float64
}

// Manager holds the fixed, ordered resolver list and implements
// epsilon-greedy selection over their current average round-trips.
type Manager struct {
	mu        sync.Mutex
	resolvers []*Resolver
	rand      *rand.Rand
}

// DefaultResolvers returns the three well-known DoH endpoints this
// system ships with, each starting at a zero rolling average, per
// resolver_manager.rs's defaults.
func DefaultResolvers() []*Resolver {
	return []*Resolver{
		{URL: "https://8.8.8.8/dns-query", Header: &Header{Name: "Host", Value: "dns.google"}},
		{URL: "https://1.1.1.1/dns-query"},
		{URL: "https://9.9.9.9/dns-query"},
	}
}

// NewManager builds a Manager from resolvers, seeding its random
// source from seed (callers pass a time-derived seed; this package
// never calls time.Now() itself so it stays trivially testable).
func NewManager(resolvers []*Resolver, seed int64) *Manager {
	return &Manager{
		resolvers: resolvers,
		rand:      rand.New(rand.NewSource(seed)),
	}
}

// GetResolver picks a resolver: with probability RandomFactor, a
// uniform random one; otherwise the one with the minimum current
// average round-trip, ties broken by position (first one found).
func (m *Manager) GetResolver() (url string, header *Header, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.resolvers) == 0 {
		return "", nil, ErrNoResolvers
	}

	if m.rand.Float64() < RandomFactor {
		r := m.resolvers[m.rand.Intn(len(m.resolvers))]
		return r.URL, r.Header, nil
	}

	best := m.resolvers[0]
	for _, r := range m.resolvers[1:] {
		if r.AvgRTT < best.AvgRTT {
			best = r
		}
	}
	return best.URL, best.Header, nil
}

// UpdateResolver assigns avg to the resolver matching url, if present.
func (m *Manager) UpdateResolver(url string, avg float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.resolvers {
		if r.URL == url {
			r.AvgRTT = avg
			return
		}
	}
}

// Snapshot returns a copy of the current resolver list and their
// averages, for admin reads.
func (m *Manager) Snapshot() []Resolver {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Resolver, len(m.resolvers))
	for i, r := range m.resolvers {
		out[i] = *r
	}
	return out
}

// Client issues the DoH POST itself: body is the raw query wire bytes,
// content-type application/dns-message, with the resolver's optional
// header attached. It wraps a single shared *http.Client, built once
// per process for connection and TLS-session reuse.
type Client struct {
	http *http.Client
}

// NewClient builds a Client around hc. Passing nil uses http.DefaultClient.
func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{http: hc}
}

// Query POSTs query's raw wire bytes to url (plus header, if set) and
// parses the response body as a DNS message.
func (c *Client) Query(ctx context.Context, url string, header *Header, query *dns.Message) (*dns.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(query.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("building DoH request: %w", err)
	}
	req.Header.Set("Content-Type", "application/dns-message")
	if header != nil {
		if strings.EqualFold(header.Name, "Host") {
			// net/http writes the wire Host from req.Host, never from the
			// header map, so an authority override has to go here.
			req.Host = header.Value
		} else {
			req.Header.Set(header.Name, header.Value)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("DoH request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DoH request to %s: status %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading DoH response from %s: %w", url, err)
	}

	msg, err := dns.ParseMessage(body)
	if err != nil {
		return nil, fmt.Errorf("decoding DoH response from %s: %w", url, err)
	}
	return msg, nil
}
