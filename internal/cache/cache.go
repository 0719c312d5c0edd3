// Package cache implements the TTL-keyed LRU response cache.
//
// Entries are keyed by the dotted name of the first answer's owner and
// the question's query type, never by the raw query bytes or id — so a
// single cached response serves any client asking the same question,
// regardless of transaction id. The stored message's own id is
// irrelevant; Get rewrites it to the querying client's id on every
// lookup. Capacity is bounded and LRU-evicted on both Get and Put,
// following the shape of the teacher's generic TTLCache
// (internal/resolvers/cache.go) but simplified to the single positive-TTL
// model this forwarder needs: no negative-caching entry types, since
// DoH failures are dropped rather than cached (spec §4.7).
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/asgrim/dohward/internal/dns"
	"github.com/asgrim/dohward/internal/helpers"
)

// Capacity is the fixed number of entries the cache holds.
const Capacity = 500

// Key identifies a cache entry: the owner name of the cached answer and
// the query type that produced it.
type Key struct {
	Name  string
	QType uint16
}

type entry struct {
	key    Key
	expiry time.Time
	msg    *dns.Message
	elem   *list.Element
}

// Cache is a thread-safe, TTL-aware LRU cache of DNS responses.
type Cache struct {
	mu       sync.Mutex
	capacity int
	lru      *list.List
	data     map[Key]*entry
}

// New creates a cache with the given capacity (Capacity is the spec'd
// default; callers outside tests should pass that).
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = Capacity
	}
	return &Cache{
		capacity: capacity,
		lru:      list.New(),
		data:     map[Key]*entry{},
	}
}

func keyFor(name string, qtype uint16) Key {
	return Key{Name: dns.NormalizeName(name), QType: qtype}
}

// Get derives the lookup key from query's first question. On a hit it
// clones the stored message, rewrites its id to match query, rewrites
// every answer's ttl to the whole seconds remaining until expiry, and
// returns that message plus the remaining duration. A miss — absent or
// expired — returns (nil, 0, false); an expired entry is evicted as a
// side effect (lazy eviction).
func (c *Cache) Get(query *dns.Message) (*dns.Message, time.Duration, bool) {
	q, err := query.Question()
	if err != nil {
		return nil, 0, false
	}
	key := keyFor(q.Name, q.Type)

	c.mu.Lock()
	e := c.data[key]
	if e == nil {
		c.mu.Unlock()
		return nil, 0, false
	}
	remaining := time.Until(e.expiry)
	if remaining <= 0 {
		c.lru.Remove(e.elem)
		delete(c.data, key)
		c.mu.Unlock()
		return nil, 0, false
	}
	c.lru.MoveToBack(e.elem)
	msg := e.msg
	c.mu.Unlock()

	resp := msg.Clone()
	resp.SetID(query.ID())
	wholeSeconds := helpers.ClampIntToUint32(int(remaining / time.Second))
	if err := resp.SetResponseTTL(wholeSeconds); err != nil {
		return nil, 0, false
	}
	return resp, remaining, true
}

// Put inserts message under the key (first answer's owner name,
// question's qtype), with expiry = now + answers[0].ttl seconds,
// saturating at now on overflow. Messages with no answers are not
// cached — this covers the "open question" in spec §9(a): a response
// with heterogeneous per-record TTLs is cached under the first answer's
// TTL alone.
func (c *Cache) Put(message *dns.Message) error {
	answers, err := message.Answers()
	if err != nil {
		return err
	}
	if len(answers) == 0 {
		return nil
	}
	q, err := message.Question()
	if err != nil {
		return err
	}

	now := time.Now()
	expiry := now.Add(time.Duration(answers[0].TTL) * time.Second)
	if expiry.Before(now) {
		expiry = now // saturate on overflow
	}
	key := keyFor(dns.JoinLabels(answers[0].Name), q.Type)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.data[key]; ok {
		existing.expiry = expiry
		existing.msg = message.Clone()
		c.lru.MoveToBack(existing.elem)
		return nil
	}

	e := &entry{key: key, expiry: expiry, msg: message.Clone()}
	e.elem = c.lru.PushBack(key)
	c.data[key] = e
	c.evictOldest()
	return nil
}

// Remove deletes every entry whose key name equals name (normalized).
// Used when an override or allowlist entry changes, invalidating any
// stale cached answer for that name. The scan is linear; callers invoke
// it infrequently enough (config edits) that a secondary index isn't
// worth the complexity (spec §9(c)).
func (c *Cache) Remove(name string) int {
	normalized := dns.NormalizeName(name)
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.data {
		if k.Name == normalized {
			c.lru.Remove(e.elem)
			delete(c.data, k)
			removed++
		}
	}
	return removed
}

// Len reports the current number of entries, for admin snapshots.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func (c *Cache) evictOldest() {
	for len(c.data) > c.capacity {
		front := c.lru.Front()
		if front == nil {
			break
		}
		k := front.Value.(Key)
		c.lru.Remove(front)
		delete(c.data, k)
	}
}
