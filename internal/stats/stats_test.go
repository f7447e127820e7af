package stats

import (
	"errors"
	"testing"
	"time"
)

func TestWindowSnapshotPercentiles(t *testing.T) {
	w := NewWindow(time.Hour)
	for _, ms := range []int64{100, 200, 300, 400, 500} {
		w.Record(ms, false)
	}

	snap := w.Snapshot()
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.MinMs != 100 || snap.MaxMs != 500 {
		t.Fatalf("expected min=100 max=500, got %d %d", snap.MinMs, snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Ms)
	}
	if snap.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Ms)
	}
	if snap.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Ms)
	}
}

func TestWindowPrunesExpiredSamples(t *testing.T) {
	w := NewWindow(10 * time.Millisecond)
	w.Record(100, false)
	time.Sleep(25 * time.Millisecond)

	if snap := w.Snapshot(); snap.Count != 0 {
		t.Fatalf("expected count=0 after prune, got %d", snap.Count)
	}

	w.Record(200, true)
	snap := w.Snapshot()
	if snap.Count != 1 || snap.Failures != 1 {
		t.Fatalf("expected one failed sample, got count=%d failures=%d", snap.Count, snap.Failures)
	}
}

func TestWindowClampsNegativeDuration(t *testing.T) {
	w := NewWindow(time.Hour)
	w.Record(-5, false)
	if snap := w.Snapshot(); snap.MinMs != 0 {
		t.Fatalf("expected min=0, got %d", snap.MinMs)
	}
}

func TestEnginesRecord(t *testing.T) {
	e := NewEngines(time.Hour)
	e.Record("pymupdf", 20*time.Millisecond, nil)
	e.Record("pymupdf", 40*time.Millisecond, errors.New("boom"))
	e.Record("builtin-text", time.Millisecond, nil)
	e.Record("", time.Second, nil)

	snap := e.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 engines, got %d", len(snap))
	}
	if got := snap["pymupdf"]; got.Count != 2 || got.Failures != 1 || got.AvgMs != 30 {
		t.Errorf("pymupdf snapshot = %+v", got)
	}
	if got := snap["builtin-text"]; got.Count != 1 {
		t.Errorf("builtin-text snapshot = %+v", got)
	}
}

func TestEnginesNilReceiver(t *testing.T) {
	var e *Engines
	e.Record("pymupdf", time.Millisecond, nil)
	if snap := e.Snapshot(); len(snap) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap)
	}
}
