package internaldefs

import (
	"testing"

	"github.com/MrEthical07/sessionguard/dispatch"
)

func TestCumulativeBucketsRunningTotal(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestDefinitionsAreUniqueAndAligned(t *testing.T) {
	if len(HistogramBounds) != len(HistogramBoundSuffix) || len(HistogramBounds) != 8 {
		t.Fatalf("bucket bounds and suffixes must have 8 entries, got %d and %d", len(HistogramBounds), len(HistogramBoundSuffix))
	}

	seen := map[string]bool{AuditDroppedName: true, BreakerStateName: true, DispatchTokensName: true}
	for _, def := range CounterDefs {
		if seen[def.Name] {
			t.Fatalf("duplicate metric name %s", def.Name)
		}
		seen[def.Name] = true
	}
	for _, def := range HistogramDefs {
		if seen[def.Name] {
			t.Fatalf("duplicate metric name %s", def.Name)
		}
		seen[def.Name] = true
	}
}

func TestBreakerStateValue(t *testing.T) {
	cases := map[dispatch.State]int64{
		dispatch.StateClosed:   0,
		dispatch.StateOpen:     1,
		dispatch.StateHalfOpen: 2,
	}
	for state, want := range cases {
		if got := BreakerStateValue(state); got != want {
			t.Fatalf("state %v: expected %d, got %d", state, want, got)
		}
	}
}
