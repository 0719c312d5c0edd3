// Package instrumentation tracks per-query timing and feeds a rolling
// per-resolver latency average back into a resolver.Manager, closing
// the loop that makes resolver selection converge onto whichever
// upstream is currently fastest.
//
// Grounded on _examples/original_source/src/ring_buffer.rs for the
// fixed-capacity, newest-first ring, generalized here into a package
// that also owns the per-query Record lifecycle and the feedback
// recomputation the original performs inline after each push.
package instrumentation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asgrim/dohward/internal/resolver"
)

// Capacity bounds how many records the ring retains at once.
const Capacity = 100

// Record is one query's timing lifecycle. Timestamps are zero until
// stamped; a record with no upstream dispatch (cache hit, override,
// deny) never gets RequestSent/RequestReceived set and is excluded
// from the latency feedback computation. CorrelationID ties a record
// back to the debug-level log lines for the same query; it plays no
// role in cache keying, selection, or the feedback computation.
type Record struct {
	CorrelationID   string
	Started         time.Time
	ResolverURL     string
	RequestSent     time.Time
	RequestReceived time.Time
}

// NewRecord starts a record's lifecycle, stamping Started and
// generating a fresh correlation id for debug-log cross-referencing.
func NewRecord() Record {
	return Record{CorrelationID: uuid.New().String(), Started: time.Now()}
}

// SetRequestSent stamps the upstream-dispatch moment and records which
// resolver was chosen.
func (r *Record) SetRequestSent(url string) {
	r.RequestSent = time.Now()
	r.ResolverURL = url
}

// SetRequestReceived stamps the upstream-reply moment.
func (r *Record) SetRequestReceived() {
	r.RequestReceived = time.Now()
}

// hasUpstreamTiming reports whether this record has both timestamps
// needed to contribute to the feedback average.
func (r *Record) hasUpstreamTiming() bool {
	return r.ResolverURL != "" && !r.RequestSent.IsZero() && !r.RequestReceived.IsZero()
}

func (r *Record) latency() time.Duration {
	return r.RequestReceived.Sub(r.RequestSent)
}

// Log is the shared, fixed-capacity, newest-first ring of recently
// completed records. After each Push it recomputes, per resolver, the
// arithmetic mean latency over every retained record naming that
// resolver, and reports each one (that has at least one sample) to mgr
// via UpdateResolver.
type Log struct {
	mu       sync.Mutex
	records  []Record // records[0] is newest
	capacity int
	mgr      *resolver.Manager
	logger   *slog.Logger
}

// NewLog builds an empty Log bound to mgr, which receives latency
// feedback after every Push.
func NewLog(mgr *resolver.Manager, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{capacity: Capacity, mgr: mgr, logger: logger}
}

// Push inserts record at the front of the ring, evicting the oldest
// entry past capacity, then recomputes and reports per-resolver means.
func (l *Log) Push(record Record) {
	l.mu.Lock()
	l.records = append([]Record{record}, l.records...)
	if len(l.records) > l.capacity {
		l.records = l.records[:l.capacity]
	}
	means := l.meansLocked()
	l.mu.Unlock()

	for url, avg := range means {
		l.mgr.UpdateResolver(url, avg)
	}
}

// meansLocked computes the arithmetic mean latency per resolver URL
// across every retained record that named it. Callers must hold mu.
func (l *Log) meansLocked() map[string]float64 {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, r := range l.records {
		if !r.hasUpstreamTiming() {
			continue
		}
		sums[r.ResolverURL] += float64(r.latency())
		counts[r.ResolverURL]++
	}
	means := make(map[string]float64, len(sums))
	for url, sum := range sums {
		means[url] = sum / float64(counts[url])
	}
	return means
}

// Snapshot returns a copy of the retained records, newest first, for
// admin reads.
func (l *Log) Snapshot() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len reports how many records are currently retained.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
