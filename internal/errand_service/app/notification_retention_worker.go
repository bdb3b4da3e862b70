package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/municipio/support-management/internal/errand_service/domain"
)

const retentionWorkerName = "notification_retention"

// NotificationRetentionWorker purges acknowledged notifications whose expiry
// has passed. Unacknowledged notifications are retained indefinitely.
type NotificationRetentionWorker struct {
	notifications domain.NotificationRepository
	health        *WorkerHealth
	logger        *slog.Logger
	now           func() time.Time
}

func NewNotificationRetentionWorker(
	notifications domain.NotificationRepository,
	health *WorkerHealth,
	logger *slog.Logger,
) *NotificationRetentionWorker {
	return &NotificationRetentionWorker{
		notifications: notifications,
		health:        health,
		logger:        logger.With("worker", retentionWorkerName),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one scheduled purge.
func (w *NotificationRetentionWorker) Run(ctx context.Context) error {
	w.health.Reset()
	timer := prometheus.NewTimer(workerRunDurationHist.WithLabelValues(retentionWorkerName))
	defer timer.ObserveDuration()

	deleted, err := w.notifications.DeleteExpired(ctx, w.now())
	if err != nil {
		w.health.SetDegraded()
		workerRunsCounter.WithLabelValues(retentionWorkerName, "error_fetch_batch").Inc()
		return fmt.Errorf("failed to delete expired notifications: %w", err)
	}

	if deleted > 0 {
		w.logger.InfoContext(ctx, "Expired notifications purged", "deleted", deleted)
	}
	workerRunsCounter.WithLabelValues(retentionWorkerName, "success").Inc()
	return nil
}
