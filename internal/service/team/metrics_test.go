package team

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	f := newFixture(t, user("u1"))
	f.svc.metrics = metrics
	ctx := context.Background()

	f.createTeam(t, "Alpha", "u1")
	if _, err := f.svc.CreateTeam(ctx, CreateInput{Name: "Alpha", CreatorID: "u1"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := f.svc.GetMembers(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if got := testutil.ToFloat64(metrics.operations.WithLabelValues(opCreateTeam, "ok")); got != 1 {
		t.Fatalf("create ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.operations.WithLabelValues(opCreateTeam, "conflict")); got != 1 {
		t.Fatalf("create conflict = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.operations.WithLabelValues(opGetMembers, "not_found")); got != 1 {
		t.Fatalf("get members not_found = %v, want 1", got)
	}

	again, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if again.operations != metrics.operations {
		t.Fatalf("expected the registered collector to be reused")
	}
}

func TestOutcomeClassification(t *testing.T) {
	cases := map[error]string{
		nil:                    "ok",
		&PartialFailureError{}: "partial_failure",
		invalid("x"):           "invalid",
		ErrNotFoundOrForbidden: "denied",
		ErrForbidden:           "denied",
		ErrNonEmptyTeam:        "non_empty",
		errors.New("boom"):     "error",
	}
	for err, want := range cases {
		if got := outcome(err); got != want {
			t.Fatalf("outcome(%v) = %q, want %q", err, got, want)
		}
	}
	var m *Metrics
	m.observe(opCreateTeam, nil)
}
