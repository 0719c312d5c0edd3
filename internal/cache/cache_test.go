package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asgrim/dohward/internal/dns"
)

func buildQuery(t *testing.T, id uint16, name string) *dns.Message {
	t.Helper()
	qname, err := dns.EncodeName(name)
	require.NoError(t, err)
	buf := make([]byte, 12)
	buf[0], buf[1] = byte(id>>8), byte(id)
	buf[5] = 1 // qdcount
	buf = append(buf, qname...)
	buf = append(buf, 0, 1, 0, 1) // type A, class IN
	m, err := dns.ParseMessage(buf)
	require.NoError(t, err)
	return m
}

func buildResponseWithAnswer(t *testing.T, query *dns.Message, ttl uint32) *dns.Message {
	t.Helper()
	resp := query.Clone()
	resp.SetQR(true)
	require.NoError(t, resp.AddAnswer(dns.NewARecord("shops.myshopify.com", [4]byte{93, 184, 216, 34}, ttl)))
	return resp
}

func TestCachePutGetRewritesIDAndTTL(t *testing.T) {
	c := New(10)
	query := buildQuery(t, 999, "shops.myshopify.com")
	resp := buildResponseWithAnswer(t, query, 21568)
	require.NoError(t, c.Put(resp))

	time.Sleep(1100 * time.Millisecond)

	fresh := buildQuery(t, 12345, "shops.myshopify.com")
	got, remaining, found := c.Get(fresh)
	require.True(t, found)
	assert.Equal(t, uint16(12345), got.ID())
	assert.GreaterOrEqual(t, remaining, time.Duration(0))

	answers, err := got.Answers()
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Less(t, answers[0].TTL, uint32(21568))
}

func TestCacheMissOnExpiry(t *testing.T) {
	c := New(10)
	query := buildQuery(t, 1, "expired.example.com")
	resp := buildResponseWithAnswer(t, query, 0)
	require.NoError(t, c.Put(resp))

	time.Sleep(10 * time.Millisecond)
	_, _, found := c.Get(buildQuery(t, 2, "expired.example.com"))
	assert.False(t, found)
}

func TestCacheMissWhenAbsent(t *testing.T) {
	c := New(10)
	_, _, found := c.Get(buildQuery(t, 1, "never-put.example.com"))
	assert.False(t, found)
}

func TestCacheRemoveDeletesMatchingName(t *testing.T) {
	c := New(10)
	query := buildQuery(t, 1, "blocked.example.com")
	resp2 := query.Clone()
	resp2.SetQR(true)
	require.NoError(t, resp2.AddAnswer(dns.NewARecord("blocked.example.com", [4]byte{1, 1, 1, 1}, 300)))
	require.NoError(t, c.Put(resp2))

	removed := c.Remove("blocked.example.com")
	assert.Equal(t, 1, removed)
	_, _, found := c.Get(query)
	assert.False(t, found)
}

func TestCacheEvictsLRUOverCapacity(t *testing.T) {
	c := New(2)
	for i, name := range []string{"a.example.com", "b.example.com", "c.example.com"} {
		q := buildQuery(t, uint16(i), name)
		resp := buildResponseWithAnswer(t, q, 300)
		require.NoError(t, c.Put(resp))
	}
	assert.Equal(t, 2, c.Len())
	_, _, found := c.Get(buildQuery(t, 9, "a.example.com"))
	assert.False(t, found, "oldest entry should have been evicted")
}
