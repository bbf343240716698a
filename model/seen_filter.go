package model

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cespare/xxhash"
	"github.com/greatroar/blobloom"
)

// SeenFilter dedupes transactions re-delivered across the historical/live
// seam of a gateway subscription. It is probabilistic: a duplicate verdict
// can very rarely be wrong at the configured rate, which for dedupe means a
// fresh transaction gets dropped. Capacity and rate are sized in settings so
// that stays negligible for a session's lifetime.
type SeenFilter struct {
	filter       *blobloom.Filter
	stats        *BloomStats
	creationTime time.Time
	mu           sync.Mutex
}

// NewSeenFilter sizes a filter for the expected number of keys at the given
// false-positive rate.
func NewSeenFilter(capacity uint64, fpRate float64) *SeenFilter {
	initPrometheusMetrics()

	return &SeenFilter{
		filter: blobloom.NewOptimized(blobloom.Config{
			Capacity: capacity,
			FPRate:   fpRate,
		}),
		stats:        NewBloomStats(),
		creationTime: time.Now(),
	}
}

// Seen records the txid and reports whether it was already present.
func (s *SeenFilter) Seen(txid *chainhash.Hash) bool {
	return s.SeenBytes(txid[:])
}

// SeenBytes is Seen for callers that only hold raw key bytes.
func (s *SeenFilter) SeenBytes(key []byte) bool {
	h := xxhash.Sum64(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.mu.Lock()
	s.stats.QueryCounter++
	s.stats.mu.Unlock()

	if s.filter.Has(h) {
		s.stats.mu.Lock()
		s.stats.DuplicateCounter++
		s.stats.mu.Unlock()

		return true
	}

	s.filter.Add(h)

	s.stats.mu.Lock()
	s.stats.InsertCounter++
	s.stats.mu.Unlock()

	return false
}

// Stats returns the filter's counters.
func (s *SeenFilter) Stats() *BloomStats {
	return s.stats
}

// CreationTime returns when the filter was built.
func (s *SeenFilter) CreationTime() time.Time {
	return s.creationTime
}

// BloomStats tracks seen-filter activity for the metrics exporter.
type BloomStats struct {
	QueryCounter     uint64
	DuplicateCounter uint64
	InsertCounter    uint64
	mu               sync.Mutex
}

func NewBloomStats() *BloomStats {
	return &BloomStats{
		QueryCounter:     0,
		DuplicateCounter: 0,
		InsertCounter:    0,
	}
}

// Snapshot returns a consistent copy of the counters.
func (bs *BloomStats) Snapshot() (queries, duplicates, inserts uint64) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	return bs.QueryCounter, bs.DuplicateCounter, bs.InsertCounter
}

// BloomFilterStatsProcessor periodically pushes the counters to Prometheus
// until the context is cancelled.
func (bs *BloomStats) BloomFilterStatsProcessor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if prometheusSeenFilterQueries != nil {
					bs.mu.Lock()
					prometheusSeenFilterQueries.Set(float64(bs.QueryCounter))
					prometheusSeenFilterDuplicates.Set(float64(bs.DuplicateCounter))
					prometheusSeenFilterInserts.Set(float64(bs.InsertCounter))
					bs.mu.Unlock()
				}
			}
		}
	}()
}
