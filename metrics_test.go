package tdma

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"testing"
	"time"
)

func TestMacMetricsCounts(t *testing.T) {
	tk := newTestKernel()
	a, b, _ := macPair(tk, 1100*time.Microsecond)
	reg := prometheus.NewRegistry()
	mm, err := CreateMacMetrics(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a.AddObserver(mm)
	b.AddObserver(mm)
	a.Scheduler().AddGrantObserver(mm)

	a.Enqueue(CreatePacketOfSize(100), StationAddress(2))
	a.Enqueue(CreatePacketOfSize(100), StationAddress(2))
	// grants at 0 (station 1) and 1200us (station 2)
	tk.RunUntil(1300 * time.Microsecond)

	if got := testutil.ToFloat64(mm.Events.WithLabelValues("1", "MacTx")); got != 2 {
		t.Fatalf("expected 2 MacTx, got %g", got)
	}
	if got := testutil.ToFloat64(mm.Events.WithLabelValues("2", "MacRx")); got != 2 {
		t.Fatalf("expected 2 MacRx, got %g", got)
	}
	if got := testutil.ToFloat64(mm.Grants.WithLabelValues("1")); got != 1 {
		t.Fatalf("expected 1 grant to station 1, got %g", got)
	}
	if got := testutil.ToFloat64(mm.GrantTime.WithLabelValues("2")); got != 0.0011 {
		t.Fatalf("expected 1.1ms granted to station 2, got %g", got)
	}
	if got := testutil.ToFloat64(mm.QueueLength.WithLabelValues("1")); got != 0 {
		t.Fatalf("expected an empty queue, got %g", got)
	}
}

func TestMacMetricsReRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := CreateMacMetrics(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := CreateMacMetrics(reg)
	if err != nil {
		t.Fatalf("second registration failed: %v", err)
	}
	if first.Events != second.Events || first.QueueLength != second.QueueLength {
		t.Fatalf("second registration did not reuse the collectors")
	}
	if n := testutil.CollectAndCount(first.Grants); n != 0 {
		t.Fatalf("expected no grant series yet, got %d", n)
	}
}
