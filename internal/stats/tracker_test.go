package stats

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestTracker_Aggregate(t *testing.T) {
	tr := NewTracker(0)
	for _, ms := range []float64{10, 20, 30} {
		tr.Record(ms)
	}
	s := tr.Snapshot()

	if s.Count != 3 {
		t.Errorf("Count = %d, want 3", s.Count)
	}
	if s.Mean != 20 {
		t.Errorf("Mean = %v, want 20", s.Mean)
	}
	if s.Min != 10 || s.Max != 30 {
		t.Errorf("Min/Max = %v/%v, want 10/30", s.Min, s.Max)
	}
	// population formula: sqrt(mean(x²) - mean(x)²)
	want := math.Sqrt((100.0+400.0+900.0)/3.0 - 400.0)
	if !approxEqual(s.Stddev, want, 1e-9) {
		t.Errorf("Stddev = %v, want %v", s.Stddev, want)
	}
	if !approxEqual(s.QPS, 50, 1e-9) {
		t.Errorf("QPS = %v, want 50", s.QPS)
	}
}

func TestTracker_EmptySnapshot(t *testing.T) {
	s := NewTracker(DefaultReportEvery).Snapshot()
	if s != (Snapshot{}) {
		t.Errorf("empty Snapshot = %+v, want zero value", s)
	}
}

func TestTracker_StddevClampedAtZero(t *testing.T) {
	tr := NewTracker(0)
	for i := 0; i < 1000; i++ {
		tr.Record(0.1)
	}
	s := tr.Snapshot()
	if math.IsNaN(s.Stddev) || s.Stddev < 0 || s.Stddev > 1e-6 {
		t.Errorf("Stddev = %v, want ~0", s.Stddev)
	}
}

func TestTracker_EWMA(t *testing.T) {
	tr := NewTracker(0)

	tr.Record(100)
	if got := tr.Snapshot().P95EWMA; !approxEqual(got, 5, 1e-9) {
		t.Fatalf("P95EWMA after 100ms = %v, want 5", got)
	}

	// Samples at or below the estimate leave it where it is.
	tr.Record(1)
	tr.Record(5)
	if got := tr.Snapshot().P95EWMA; !approxEqual(got, 5, 1e-9) {
		t.Fatalf("P95EWMA after low samples = %v, want 5", got)
	}

	tr.Record(100)
	if got := tr.Snapshot().P95EWMA; !approxEqual(got, 9.75, 1e-9) {
		t.Errorf("P95EWMA = %v, want 9.75", got)
	}
}

func TestTracker_ReportCadence(t *testing.T) {
	tr := NewTracker(3)
	if tr.ShouldReport() {
		t.Error("empty tracker should not report")
	}
	var reports []uint64
	for i := 0; i < 7; i++ {
		if tr.Record(1) {
			reports = append(reports, tr.Count())
		}
	}
	if len(reports) != 2 || reports[0] != 3 || reports[1] != 6 {
		t.Errorf("reports at %v, want [3 6]", reports)
	}
	if tr.ShouldReport() {
		t.Error("ShouldReport true after 7 samples")
	}
	if NewTracker(0).Record(1) {
		t.Error("zero cadence should never report")
	}
}

func TestTracker_RecordDuration(t *testing.T) {
	tr := NewTracker(0)
	tr.RecordDuration(1500 * time.Microsecond)
	if got := tr.Snapshot().Mean; !approxEqual(got, 1.5, 1e-12) {
		t.Errorf("Mean = %v, want 1.5", got)
	}
}

func TestP2Quantile_Uniform(t *testing.T) {
	const n = 10000
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i + 1)
	}
	rng := rand.New(rand.NewSource(42))
	rng.Shuffle(n, func(i, j int) { vals[i], vals[j] = vals[j], vals[i] })

	e := NewP2Quantile(0.95)
	for _, v := range vals {
		e.Add(v)
	}
	if got := e.Value(); !approxEqual(got, 9500, 0.02*n) {
		t.Errorf("p95 estimate = %v, want ~9500", got)
	}
}

func TestP2Quantile_FewSamples(t *testing.T) {
	e := NewP2Quantile(0.95)
	if e.Value() != 0 {
		t.Errorf("Value() with no samples = %v, want 0", e.Value())
	}
	for _, v := range []float64{30, 10, 20} {
		e.Add(v)
	}
	if e.Value() != 30 {
		t.Errorf("Value() = %v, want 30", e.Value())
	}
}

func TestSnapshot_Fields(t *testing.T) {
	tr := NewTracker(0)
	tr.Record(2)
	fields := tr.Snapshot().Fields()
	if len(fields) != 8 || fields[0].Key != "n" {
		t.Errorf("Fields() = %+v", fields)
	}
}
