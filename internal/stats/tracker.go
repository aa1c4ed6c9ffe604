// Package stats accumulates request latency samples in constant space.
package stats

import (
	"math"
	"time"

	"github.com/bft-labs/infersock/pkg/log"
)

const (
	// DefaultAlpha is the smoothing factor of the EWMA p95 estimate.
	DefaultAlpha = 0.05

	// DefaultReportEvery is the sample cadence at which Record asks for a report.
	DefaultReportEvery = 100
)

// Tracker holds a streaming latency aggregate. It is not safe for concurrent
// use; the owner serializes Record and Snapshot.
type Tracker struct {
	count uint64
	sum   float64
	sumSq float64
	min   float64
	max   float64

	alpha   float64
	p95EWMA float64
	p95     *P2Quantile

	reportEvery uint64
}

// NewTracker returns an empty tracker that reports every reportEvery
// samples. A zero reportEvery disables reporting.
func NewTracker(reportEvery uint64) *Tracker {
	return &Tracker{
		alpha:       DefaultAlpha,
		p95:         NewP2Quantile(0.95),
		reportEvery: reportEvery,
	}
}

// Record adds one sample in milliseconds and reports whether this sample
// lands on the reporting cadence.
func (t *Tracker) Record(ms float64) bool {
	t.count++
	t.sum += ms
	t.sumSq += ms * ms
	if t.count == 1 || ms < t.min {
		t.min = ms
	}
	if ms > t.max {
		t.max = ms
	}

	// The else branch leaves the estimate unchanged.
	if ms > t.p95EWMA {
		t.p95EWMA = (1-t.alpha)*t.p95EWMA + t.alpha*ms
	} else {
		t.p95EWMA = (1-t.alpha)*t.p95EWMA + t.alpha*t.p95EWMA
	}
	t.p95.Add(ms)

	return t.ShouldReport()
}

// ShouldReport reports whether the latest sample lands on the reporting
// cadence.
func (t *Tracker) ShouldReport() bool {
	return t.reportEvery > 0 && t.count > 0 && t.count%t.reportEvery == 0
}

// RecordDuration records d as fractional milliseconds.
func (t *Tracker) RecordDuration(d time.Duration) bool {
	return t.Record(Milliseconds(d))
}

// Count returns the number of recorded samples.
func (t *Tracker) Count() uint64 { return t.count }

// Snapshot returns the current aggregate.
func (t *Tracker) Snapshot() Snapshot {
	if t.count == 0 {
		return Snapshot{}
	}
	n := float64(t.count)
	mean := t.sum / n
	variance := t.sumSq/n - mean*mean
	stddev := 0.0
	if variance > 0 {
		stddev = math.Sqrt(variance)
	}
	qps := 0.0
	if mean > 0 {
		qps = 1000.0 / mean
	}
	return Snapshot{
		Count:   t.count,
		Mean:    mean,
		Stddev:  stddev,
		Min:     t.min,
		Max:     t.max,
		P95EWMA: t.p95EWMA,
		P95:     t.p95.Value(),
		QPS:     qps,
	}
}

// Snapshot is a point-in-time view of a Tracker. Latencies are milliseconds.
type Snapshot struct {
	Count   uint64  `json:"count"`
	Mean    float64 `json:"mean_ms"`
	Stddev  float64 `json:"stddev_ms"`
	Min     float64 `json:"min_ms"`
	Max     float64 `json:"max_ms"`
	P95EWMA float64 `json:"p95_ewma_ms"`
	P95     float64 `json:"p95_ms"`
	QPS     float64 `json:"qps"`
}

// Fields renders the snapshot as structured log fields.
func (s Snapshot) Fields() []log.Field {
	return []log.Field{
		log.Uint64("n", s.Count),
		log.Float64("mean_ms", s.Mean),
		log.Float64("stddev_ms", s.Stddev),
		log.Float64("p95_ewma_ms", s.P95EWMA),
		log.Float64("p95_ms", s.P95),
		log.Float64("min_ms", s.Min),
		log.Float64("max_ms", s.Max),
		log.Float64("qps", s.QPS),
	}
}

// Milliseconds converts d to fractional milliseconds.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
