package metrics

import (
	"testing"
	"time"
)

func TestDisabledMetricsAreNoOps(t *testing.T) {
	m := New(Config{})
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricValidateLatency, time.Millisecond)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if s := m.Snapshot(); len(s.Counters) != 0 || len(s.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", s)
	}
}

func TestCountersAndHistogram(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatency: true})
	m.Inc(MetricRefreshSuccess)
	m.Add(MetricRevokeAll, 3)
	m.Inc(MetricIDCount)

	m.Observe(MetricValidateLatency, 2*time.Millisecond)
	m.Observe(MetricValidateLatency, 300*time.Millisecond)
	m.Observe(MetricValidateLatency, 2*time.Second)
	m.Observe(MetricLoginSuccess, time.Millisecond)

	s := m.Snapshot()
	if s.Counters[MetricRefreshSuccess] != 1 || s.Counters[MetricRevokeAll] != 3 {
		t.Fatalf("unexpected counters %+v", s.Counters)
	}
	h := s.Histograms[MetricValidateLatency]
	if len(h) != HistogramBucketCount {
		t.Fatalf("expected %d buckets, got %d", HistogramBucketCount, len(h))
	}
	if h[0] != 1 || h[6] != 1 || h[7] != 1 {
		t.Fatalf("unexpected buckets %v", h)
	}
	if _, ok := s.Histograms[MetricLoginSuccess]; ok {
		t.Fatal("only validate latency carries a histogram")
	}
}
