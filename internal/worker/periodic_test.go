package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/observability"
)

func TestPeriodicRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	metrics := observability.NewMetrics()

	var runs atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		Periodic(ctx, "sweep", 5*time.Millisecond, func(context.Context) error {
			if runs.Add(1) == 2 {
				return errors.New("transient")
			}
			return nil
		}, metrics, zap.NewNop())
	}()

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	assert.GreaterOrEqual(t, workerRuns(t, metrics.Registry(), "sweep", "ok"), 2.0)
	assert.Equal(t, 1.0, workerRuns(t, metrics.Registry(), "sweep", "error"))
}

func workerRuns(t *testing.T, reg *prometheus.Registry, worker, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "booking_worker_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["worker"] == worker && labels["result"] == result {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestPeriodicDisabled(t *testing.T) {
	called := false
	Periodic(context.Background(), "off", 0, func(context.Context) error {
		called = true
		return nil
	}, nil, nil)
	assert.False(t, called)
}
