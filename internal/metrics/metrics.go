// Package metrics implements the Metrics Aggregator (§4.12): windowed
// queries derived from the Hot Store's metrics:* sorted sets, fed by
// RecordXxx calls the orchestrator and workers make as the pipeline runs.
package metrics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"kaya/internal/clock"
	"kaya/internal/hotstore"
)

// Metric names, used as the first segment of the metrics:* bucket key.
const (
	MetricAgentUtilization = "agent_utilization"
	MetricCostPerFeature   = "cost_per_feature"
	MetricRetryCount       = "retry_count"
	MetricCriticDecision   = "critic_decision"
	MetricValidation       = "validation"
	MetricTimeToCompletion = "time_to_completion"
	MetricModelUsage       = "model_usage"
)

// DimensionGlobal is used for metrics with no per-entity breakdown.
const DimensionGlobal = "global"

// DefaultWindowHours is the default window for windowed queries (§4.12).
const DefaultWindowHours = 1

// Recorder writes metric tuples to the Hot Store as pipeline events occur
// and answers the windowed queries over them. It holds no state of its own
// beyond the store and clock it was built with — every RecordXxx method is
// a thin, append-only RecordMetric call.
type Recorder struct {
	store *hotstore.Store
	clock clock.Clock
}

// New creates a Recorder over the given store; it serves both the
// RecordXxx calls and the queries.
func New(store *hotstore.Store, c clock.Clock) *Recorder {
	return &Recorder{store: store, clock: c}
}

// RecordAgentDuration records one worker invocation's wall time against
// the agent_utilization metric, dimensioned by agent name.
func (r *Recorder) RecordAgentDuration(agent string, durationMS int64) {
	r.store.RecordMetric(MetricAgentUtilization, agent, r.clock.Now(), strconv.FormatInt(durationMS, 10))
}

// RecordFeatureCompletion records cost, attempt count, and elapsed time for
// a completed feature (success or terminal failure), dimensioned by
// feature. It feeds cost_per_feature, retry_count, and time_to_completion.
func (r *Recorder) RecordFeatureCompletion(feature string, costUSD float64, attempts int, durationMS int64) {
	now := r.clock.Now()
	r.store.RecordMetric(MetricCostPerFeature, feature, now, strconv.FormatFloat(costUSD, 'f', -1, 64))
	r.store.RecordMetric(MetricRetryCount, feature, now, strconv.Itoa(attempts))
	r.store.RecordMetric(MetricTimeToCompletion, feature, now, strconv.FormatInt(durationMS, 10))
}

// RecordCriticDecision records one Critic verdict ("approved"/"rejected").
func (r *Recorder) RecordCriticDecision(approved bool) {
	verdict := "approved"
	if !approved {
		verdict = "rejected"
	}
	r.store.RecordMetric(MetricCriticDecision, DimensionGlobal, r.clock.Now(), verdict)
}

// RecordValidation records one Gemini rubric outcome ("pass"/"fail").
func (r *Recorder) RecordValidation(passed bool) {
	verdict := "fail"
	if passed {
		verdict = "pass"
	}
	r.store.RecordMetric(MetricValidation, DimensionGlobal, r.clock.Now(), verdict)
}

// RecordModelUsage records one model call's duration and cost, dimensioned
// by model_id.
func (r *Recorder) RecordModelUsage(modelID string, durationMS int64, costUSD float64) {
	tuple := fmt.Sprintf("%d|%s", durationMS, strconv.FormatFloat(costUSD, 'f', -1, 64))
	r.store.RecordMetric(MetricModelUsage, modelID, r.clock.Now(), tuple)
}

// hourBuckets returns the hour-bucket keys covering [now-windowHours+1h, now].
func hourBuckets(now time.Time, windowHours int) []string {
	if windowHours <= 0 {
		windowHours = DefaultWindowHours
	}
	buckets := make([]string, 0, windowHours)
	for i := windowHours - 1; i >= 0; i-- {
		buckets = append(buckets, clock.HourBucket(now.Add(-time.Duration(i)*time.Hour)))
	}
	return buckets
}

func (r *Recorder) tuplesInWindow(metric, dimension string, windowHours int) []string {
	var all []string
	for _, bucket := range hourBuckets(r.clock.Now(), windowHours) {
		all = append(all, r.store.QueryMetric(metric, dimension, bucket)...)
	}
	return all
}

func meanFloat(tuples []string) float64 {
	if len(tuples) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tuples {
		v, _ := strconv.ParseFloat(t, 64)
		sum += v
	}
	return sum / float64(len(tuples))
}

// AgentUtilization is Σ duration_ms(agent) / window_duration_ms (§4.12).
func (r *Recorder) AgentUtilization(agent string, windowHours int) float64 {
	if windowHours <= 0 {
		windowHours = DefaultWindowHours
	}
	tuples := r.tuplesInWindow(MetricAgentUtilization, agent, windowHours)
	var sum float64
	for _, t := range tuples {
		v, _ := strconv.ParseFloat(t, 64)
		sum += v
	}
	windowMS := float64(windowHours) * float64(time.Hour/time.Millisecond)
	return sum / windowMS
}

// CostPerFeature is mean(cost_usd) over feature_completion events (§4.12).
func (r *Recorder) CostPerFeature(feature string, windowHours int) float64 {
	return meanFloat(r.tuplesInWindow(MetricCostPerFeature, feature, windowHours))
}

// AverageRetryCount is mean(attempts) over feature_completion events (§4.12).
func (r *Recorder) AverageRetryCount(feature string, windowHours int) float64 {
	return meanFloat(r.tuplesInWindow(MetricRetryCount, feature, windowHours))
}

// TimeToCompletion is mean(duration_ms) over feature_completion events (§4.12).
func (r *Recorder) TimeToCompletion(feature string, windowHours int) float64 {
	return meanFloat(r.tuplesInWindow(MetricTimeToCompletion, feature, windowHours))
}

// CriticRejectionRate is rejections / total_decisions (§4.12).
func (r *Recorder) CriticRejectionRate(windowHours int) float64 {
	tuples := r.tuplesInWindow(MetricCriticDecision, DimensionGlobal, windowHours)
	if len(tuples) == 0 {
		return 0
	}
	rejected := 0
	for _, t := range tuples {
		if t == "rejected" {
			rejected++
		}
	}
	return float64(rejected) / float64(len(tuples))
}

// ValidationPassRate is passes / total_validations (§4.12).
func (r *Recorder) ValidationPassRate(windowHours int) float64 {
	tuples := r.tuplesInWindow(MetricValidation, DimensionGlobal, windowHours)
	if len(tuples) == 0 {
		return 0
	}
	passed := 0
	for _, t := range tuples {
		if t == "pass" {
			passed++
		}
	}
	return float64(passed) / float64(len(tuples))
}

// ModelUsageSummary is the aggregated Σduration/Σcost/count for one model.
type ModelUsageSummary struct {
	ModelID        string
	TotalDurationMS int64
	TotalCostUSD   float64
	CallCount      int
}

// ModelUsage is Σ duration, Σ cost, count grouped by model_id (§4.12).
func (r *Recorder) ModelUsage(modelID string, windowHours int) ModelUsageSummary {
	summary := ModelUsageSummary{ModelID: modelID}
	for _, t := range r.tuplesInWindow(MetricModelUsage, modelID, windowHours) {
		parts := strings.SplitN(t, "|", 2)
		if len(parts) != 2 {
			continue
		}
		durationMS, _ := strconv.ParseInt(parts[0], 10, 64)
		costUSD, _ := strconv.ParseFloat(parts[1], 64)
		summary.TotalDurationMS += durationMS
		summary.TotalCostUSD += costUSD
		summary.CallCount++
	}
	return summary
}

// TrendPoint is one day's aggregate for a historical trend query.
type TrendPoint struct {
	Day   string
	Value float64
}

// Trend returns one data point per day over the last days days, aggregating
// the named metric/dimension over each day's 24 hour buckets with agg.
func (r *Recorder) Trend(metric, dimension string, days int, agg func(tuples []string) float64) []TrendPoint {
	if days <= 0 {
		days = 1
	}
	now := r.clock.Now().UTC()
	points := make([]TrendPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := now.Add(-time.Duration(i) * 24 * time.Hour)
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		var tuples []string
		for h := 0; h < 24; h++ {
			bucket := clock.HourBucket(dayStart.Add(time.Duration(h) * time.Hour))
			tuples = append(tuples, r.store.QueryMetric(metric, dimension, bucket)...)
		}
		points = append(points, TrendPoint{Day: clock.DayBucket(day), Value: agg(tuples)})
	}
	return points
}
