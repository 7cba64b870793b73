package core

import (
	"testing"
)

func TestToolKeyString(t *testing.T) {
	key := ToolKey{ToolID: "summarize", Version: "1.2.0"}
	if got := key.String(); got != "summarize@1.2.0" {
		t.Fatalf("String() = %q, want summarize@1.2.0", got)
	}
}

func TestExecutionRecordMetricValue(t *testing.T) {
	rec := ExecutionRecord{
		Metrics: map[string]any{
			"latency_ms": 120.5,
			"retries":    int64(2),
			"note":       "cold start",
		},
	}

	if v, ok := rec.MetricValue("latency_ms"); !ok || v != 120.5 {
		t.Fatalf("MetricValue(latency_ms) = %v, %t, want 120.5, true", v, ok)
	}
	if v, ok := rec.MetricValue("retries"); !ok || v != 2 {
		t.Fatalf("MetricValue(retries) = %v, %t, want 2, true", v, ok)
	}
	if _, ok := rec.MetricValue("note"); ok {
		t.Fatal("MetricValue(note) ok = true, want false for non-numeric value")
	}
	if _, ok := rec.MetricValue("absent"); ok {
		t.Fatal("MetricValue(absent) ok = true, want false")
	}
}

func TestValidationResultStage(t *testing.T) {
	var nilResult *ValidationResult
	if _, ok := nilResult.Stage("security_static"); ok {
		t.Fatal("Stage() on nil result ok = true, want false")
	}

	result := &ValidationResult{
		Stages: []StageResult{
			{Name: "unit_tests", Score: 1.0},
			{Name: "security_static", Score: 0.7},
		},
	}
	stage, ok := result.Stage("security_static")
	if !ok {
		t.Fatal("Stage(security_static) ok = false, want true")
	}
	if stage.Score != 0.7 {
		t.Fatalf("Stage(security_static).Score = %v, want 0.7", stage.Score)
	}
	if _, ok := result.Stage("fuzzing"); ok {
		t.Fatal("Stage(fuzzing) ok = true, want false")
	}
}

func TestMultiEventHandlerFansOut(t *testing.T) {
	var first, second []EventKind
	h := MultiEventHandler(
		func(e Event) { first = append(first, e.Kind) },
		nil,
		func(e Event) { second = append(second, e.Kind) },
	)

	h(Event{Kind: EventScoreComputed})
	h(Event{Kind: EventVariantRetired})

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("handler call counts = %d, %d, want 2, 2", len(first), len(second))
	}
	if first[1] != EventVariantRetired || second[0] != EventScoreComputed {
		t.Fatalf("unexpected event order: %v / %v", first, second)
	}
}
