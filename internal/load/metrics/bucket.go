package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimeBucketStore keeps the most recent time buckets in a ring buffer.
// Interval counters are updated lock-free; bucket creation takes the lock.
type TimeBucketStore struct {
	buckets    []*TimeBucket
	head       int
	count      int
	maxBuckets int
	mu         sync.RWMutex

	lastBucketTime time.Time

	intervalRequests atomic.Int64
	intervalFailures atomic.Int64
}

// NewTimeBucketStore creates a store holding at most maxBuckets buckets.
func NewTimeBucketStore(maxBuckets int) *TimeBucketStore {
	if maxBuckets <= 0 {
		maxBuckets = 3600
	}

	return &TimeBucketStore{
		buckets:        make([]*TimeBucket, maxBuckets),
		maxBuckets:     maxBuckets,
		lastBucketTime: time.Now(),
	}
}

// RecordRequest adds one request to the current interval.
func (tbs *TimeBucketStore) RecordRequest(success bool) {
	tbs.intervalRequests.Add(1)
	if !success {
		tbs.intervalFailures.Add(1)
	}
}

// CreateBucket closes the current interval. The caller supplies the
// cumulative totals and the state at the time of the cut.
func (tbs *TimeBucketStore) CreateBucket(
	totalRequests, totalSuccesses, totalFailures, totalBytes int64,
	latencies LatencyPercentiles,
	activeUsers int,
	phase Phase,
	stage int,
) *TimeBucket {
	tbs.mu.Lock()
	defer tbs.mu.Unlock()

	now := time.Now()

	requests := tbs.intervalRequests.Swap(0)
	failures := tbs.intervalFailures.Swap(0)

	seconds := now.Sub(tbs.lastBucketTime).Seconds()
	if seconds <= 0 {
		seconds = 1.0
	}

	errorRate := 0.0
	if requests > 0 {
		errorRate = float64(failures) / float64(requests)
	}

	bucket := &TimeBucket{
		Timestamp:         now,
		TotalRequests:     totalRequests,
		TotalSuccesses:    totalSuccesses,
		TotalFailures:     totalFailures,
		TotalBytes:        totalBytes,
		IntervalRequests:  requests,
		IntervalRPS:       float64(requests) / seconds,
		IntervalErrorRate: errorRate,
		LatencyP50:        latencies.P50,
		LatencyP95:        latencies.P95,
		LatencyP99:        latencies.P99,
		ActiveUsers:       activeUsers,
		Phase:             phase,
		Stage:             stage,
	}

	tbs.buckets[tbs.head] = bucket
	tbs.head = (tbs.head + 1) % tbs.maxBuckets
	if tbs.count < tbs.maxBuckets {
		tbs.count++
	}
	tbs.lastBucketTime = now

	return bucket
}

// GetBuckets returns all buckets in chronological order.
func (tbs *TimeBucketStore) GetBuckets() []*TimeBucket {
	return tbs.GetRecentBuckets(tbs.maxBuckets)
}

// GetRecentBuckets returns up to n of the most recent buckets, oldest first.
func (tbs *TimeBucketStore) GetRecentBuckets(n int) []*TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if n > tbs.count {
		n = tbs.count
	}
	if n <= 0 {
		return nil
	}

	result := make([]*TimeBucket, n)
	for i := 0; i < n; i++ {
		idx := (tbs.head - 1 - i + tbs.maxBuckets) % tbs.maxBuckets
		result[n-1-i] = tbs.buckets[idx]
	}
	return result
}

// Count returns the number of stored buckets.
func (tbs *TimeBucketStore) Count() int {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()
	return tbs.count
}

// Reset clears all buckets and interval counters.
func (tbs *TimeBucketStore) Reset() {
	tbs.mu.Lock()
	defer tbs.mu.Unlock()

	tbs.buckets = make([]*TimeBucket, tbs.maxBuckets)
	tbs.head = 0
	tbs.count = 0
	tbs.lastBucketTime = time.Now()
	tbs.intervalRequests.Store(0)
	tbs.intervalFailures.Store(0)
}

// CalculateSteadyStateRPS averages the interval RPS over steady buckets.
// It returns the number of buckets used; zero means no steady data.
func (tbs *TimeBucketStore) CalculateSteadyStateRPS() (float64, int) {
	var (
		sum float64
		n   int
	)
	for _, b := range tbs.GetBuckets() {
		if b.Phase == PhaseSteady {
			sum += b.IntervalRPS
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
