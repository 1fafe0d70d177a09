package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/observability"
	"github.com/spec-kit/booking-service/internal/service"
)

const runTimeout = 20 * time.Second

// Job is one unit of periodic maintenance.
type Job func(ctx context.Context) error

// Periodic runs job once at startup and then every interval until ctx is cancelled.
// A non-positive interval disables the job.
func Periodic(ctx context.Context, name string, interval time.Duration, job Job, metrics *observability.Metrics, logger *zap.Logger) {
	if interval <= 0 || job == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("worker", name))

	runOnce(ctx, name, job, metrics, logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return
		case <-ticker.C:
			runOnce(ctx, name, job, metrics, logger)
		}
	}
}

func runOnce(ctx context.Context, name string, job Job, metrics *observability.Metrics, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	start := time.Now()
	err := job(runCtx)
	metrics.RecordWorkerRun(name, err)
	if err != nil {
		logger.Error("worker run failed", zap.Error(err))
		return
	}
	logger.Debug("worker run complete", zap.Duration("took", time.Since(start)))
}

// NotificationSweep trims every notification log to the retention cap.
func NotificationSweep(sink *service.NotificationSink, logger *zap.Logger) Job {
	return func(ctx context.Context) error {
		evicted, err := sink.Sweep(ctx)
		if err != nil {
			return err
		}
		if evicted > 0 && logger != nil {
			logger.Info("notifications evicted", zap.Int64("count", evicted))
		}
		return nil
	}
}

// RoleReconcile repairs identity roles that drifted from onboarding status.
func RoleReconcile(onboarding *service.OnboardingService) Job {
	return func(ctx context.Context) error {
		_, err := onboarding.ReconcileRoles(ctx)
		return err
	}
}
