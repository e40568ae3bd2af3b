package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	ctx := context.Background()
	rec.Observe(ctx, "commit_round", true, 50*time.Millisecond)
	rec.Observe(ctx, "commit_round", false, 10*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
		if mf.GetName() == "evocore_service_operation_results_total" {
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			if total != 2 {
				t.Fatalf("result counter total = %v, want 2", total)
			}
		}
	}
	if !found["evocore_service_operation_duration_seconds"] || !found["evocore_service_operation_results_total"] {
		t.Fatalf("metric families = %v", found)
	}

	// Duplicate registration on the same registry must be rejected.
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestPrometheusRecorderDrivesService(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	svc := NewInMemoryService(nil, WithMetricsRecorder(rec))
	if _, _, err := svc.CreateRootVariant(context.Background(), "MKVL", ""); err != nil {
		t.Fatalf("create root: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("no metrics recorded through the service")
	}
}
