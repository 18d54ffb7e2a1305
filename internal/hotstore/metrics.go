package hotstore

import (
	"fmt"
	"sync/atomic"
	"time"

	"kaya/internal/clock"
)

// MetricBucketTTL is the TTL applied to metrics:* sorted sets (§4.5).
const MetricBucketTTL = 30 * 24 * time.Hour

// MetricBucketKey builds the metrics:{metric}:{dimension}:{YYYY-MM-DD-HH}
// key (§3, §4.5). dimension is agent|model|feature|global.
func MetricBucketKey(metric, dimension string, hourBucket string) string {
	return fmt.Sprintf("metrics:%s:%s:%s", metric, dimension, hourBucket)
}

// metricSeq makes every RecordMetric member unique, so two identical
// tuples recorded at the same instant are both kept.
var metricSeq atomic.Uint64

// RecordMetric appends one pipe-delimited tuple to the hour bucket for
// (metric, dimension) at the bucket covering now, scored by epoch
// milliseconds so range queries can slice by time within the hour.
func (s *Store) RecordMetric(metric, dimension string, now time.Time, tuple string) {
	key := MetricBucketKey(metric, dimension, clock.HourBucket(now))
	member := fmt.Sprintf("%d-%d|%s", now.UnixNano(), metricSeq.Add(1), tuple)
	s.zAdd(key, member, float64(clock.EpochMillis(now)), MetricBucketTTL)
}

// QueryMetric returns every tuple recorded for (metric, dimension) in the
// named hour bucket, oldest first (ascending score).
func (s *Store) QueryMetric(metric, dimension, hourBucket string) []string {
	key := MetricBucketKey(metric, dimension, hourBucket)
	members := s.zRangeDesc(key, 0)
	out := make([]string, len(members))
	// zRangeDesc returns highest score (most recent) first; reverse for
	// chronological order.
	for i, m := range members {
		out[len(members)-1-i] = tupleOf(m.Member)
	}
	return out
}

func tupleOf(member string) string {
	for i := 0; i < len(member); i++ {
		if member[i] == '|' {
			return member[i+1:]
		}
	}
	return member
}
