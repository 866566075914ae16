package performance

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestProfiler(t *testing.T) {
	profiler := NewProfiler(true)

	op := profiler.Start("generator.worker")
	time.Sleep(10 * time.Millisecond)
	op.End()

	metric := profiler.GetMetric("generator.worker")
	if metric == nil {
		t.Fatal("Metric not found")
	}
	if metric.Count != 1 {
		t.Errorf("Expected count 1, got %d", metric.Count)
	}
	if metric.MinTime < 10*time.Millisecond {
		t.Errorf("Expected min time >= 10ms, got %v", metric.MinTime)
	}
}

func TestProfilerDisabled(t *testing.T) {
	profiler := NewProfiler(false)

	op := profiler.Start("test_operation")
	if op != nil {
		t.Error("Expected nil operation when profiler disabled")
	}
	op.End()

	profiler.Record("test", 10*time.Millisecond)
	profiler.Incr("fallbacks")
	if profiler.GetMetric("test") != nil {
		t.Error("Expected nil metric when profiler disabled")
	}
	if profiler.Counter("fallbacks") != 0 {
		t.Error("Expected counter to stay at zero when profiler disabled")
	}
}

func TestNilProfilerIsSafe(t *testing.T) {
	var profiler *Profiler
	profiler.Track("anything")()
	profiler.Record("x", time.Millisecond)
	profiler.Incr("y")
	if profiler.GetMetric("x") != nil || profiler.Counter("y") != 0 {
		t.Fatal("nil profiler recorded data")
	}
	if len(profiler.Snapshot().Metrics) != 0 {
		t.Fatal("nil profiler snapshot should be empty")
	}
}

func TestProfilerTrackAndCounters(t *testing.T) {
	profiler := NewProfiler(true)
	for i := 0; i < 10; i++ {
		func() {
			defer profiler.Track("processor.batch")()
		}()
		profiler.Incr("processor.chunks")
	}
	profiler.Add("processor.chunks", 5)

	metric := profiler.GetMetric("processor.batch")
	if metric == nil || metric.Count != 10 {
		t.Fatalf("Expected 10 tracked batches, got %+v", metric)
	}
	if got := profiler.Counter("processor.chunks"); got != 15 {
		t.Fatalf("Expected counter 15, got %d", got)
	}
}

func TestProfilerReport(t *testing.T) {
	profiler := NewProfiler(true)
	profiler.Record("op1", 10*time.Millisecond)
	profiler.Record("op2", 20*time.Millisecond)
	profiler.Incr("fallbacks")

	report := profiler.Report()
	for _, want := range []string{"op1", "op2", "fallbacks"} {
		if !strings.Contains(report, want) {
			t.Errorf("Report missing %q:\n%s", want, report)
		}
	}
}

func TestProfilerJSONReport(t *testing.T) {
	profiler := NewProfiler(true)
	profiler.Record("json_test", 15*time.Millisecond)

	jsonData, err := profiler.JSONReport()
	if err != nil {
		t.Fatalf("Failed to generate JSON report: %v", err)
	}

	var report ReportJSON
	if err := json.Unmarshal(jsonData, &report); err != nil {
		t.Fatalf("Failed to decode JSON report: %v", err)
	}
	metric := report.Metrics["json_test"]
	if metric == nil || metric.Count != 1 || metric.AvgMs != 15 {
		t.Fatalf("Unexpected metric in report: %+v", metric)
	}
}
