package pipeline

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asgrim/dohward/internal/cache"
	"github.com/asgrim/dohward/internal/config"
	"github.com/asgrim/dohward/internal/dns"
	"github.com/asgrim/dohward/internal/filter"
	"github.com/asgrim/dohward/internal/resolver"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func buildQuery(t *testing.T, name string) *dns.Message {
	t.Helper()
	buf := make([]byte, 12)
	buf[4] = 0
	buf[5] = 1 // qdcount = 1
	q := dns.Question{Name: name, Type: 1, Class: 1}
	qb, err := q.Marshal()
	require.NoError(t, err)
	buf = append(buf, qb...)
	m, err := dns.ParseMessage(buf)
	require.NoError(t, err)
	return m
}

func newTestPipeline(t *testing.T, conn *net.UDPConn, doh *resolver.Client, mgr *resolver.Manager) *Pipeline {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/config.toml"
	require.NoError(t, writeEmptyConfig(path))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	c := cache.New(cache.Capacity)
	f, err := filter.LoadNames([]string{"blocked.example.com"}, filter.Hash)
	require.NoError(t, err)

	return New(conn, cfg, c, f, mgr, doh, filter.NewClient(0), filter.Blu, discardLogger())
}

func writeEmptyConfig(path string) error {
	return os.WriteFile(path, []byte(""), 0o600)
}

func TestHandleQueryOverrideShortCircuitsResolver(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mgr := resolver.NewManager([]*resolver.Resolver{{URL: srv.URL}}, 1)
	doh := resolver.NewClient(srv.Client())
	p := newTestPipeline(t, conn, doh, mgr)
	require.NoError(t, p.Config.SetOverride("router.lan", [4]byte{10, 0, 0, 1}))

	query := buildQuery(t, "router.lan")
	peer := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}
	p.handleQuery(context.Background(), query.Bytes(), peer)

	assert.False(t, called, "override should never reach the resolver")
}

func TestHandleQueryFilteredBlocksResolver(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mgr := resolver.NewManager([]*resolver.Resolver{{URL: srv.URL}}, 1)
	doh := resolver.NewClient(srv.Client())
	p := newTestPipeline(t, conn, doh, mgr)

	query := buildQuery(t, "blocked.example.com")
	peer := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}
	p.handleQuery(context.Background(), query.Bytes(), peer)

	assert.False(t, called, "filtered name should never reach the resolver")
}

func TestHandleQueryDropsMalformedPayload(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	mgr := resolver.NewManager(resolver.DefaultResolvers(), 1)
	doh := resolver.NewClient(nil)
	p := newTestPipeline(t, conn, doh, mgr)

	peer := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}
	assert.NotPanics(t, func() {
		p.handleQuery(context.Background(), []byte{0x01, 0x02}, peer)
	})
}

func TestRefreshFilterIsNonBlocking(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	mgr := resolver.NewManager(resolver.DefaultResolvers(), 1)
	doh := resolver.NewClient(nil)
	p := newTestPipeline(t, conn, doh, mgr)

	done := make(chan struct{})
	go func() {
		p.RefreshFilter()
		p.RefreshFilter()
		p.RefreshFilter()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RefreshFilter blocked")
	}
}

func TestRepresentationFollowsSmallFlag(t *testing.T) {
	assert.Equal(t, filter.Vector, Representation(true))
	assert.Equal(t, filter.Hash, Representation(false))
}
