package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/municipio/support-management/internal/errand_service/domain"
)

const suspensionWorkerName = "suspension_expiry"

// SuspensionExpiryWorker restores errands whose suspension window has
// elapsed and notifies the assigned administrator. Candidates are listed
// outside any transaction; each restoration runs in its own transaction with
// the state re-checked inside it.
type SuspensionExpiryWorker struct {
	namespace      string
	municipalityID string

	errands   domain.ErrandRepository
	employees EmployeeDirectoryClient
	ledger    *domain.StateLedger
	tx        domain.TxRunner
	publisher EventPublisher
	health    *WorkerHealth
	logger    *slog.Logger
	now       func() time.Time
}

func NewSuspensionExpiryWorker(
	namespace, municipalityID string,
	errands domain.ErrandRepository,
	employees EmployeeDirectoryClient,
	ledger *domain.StateLedger,
	tx domain.TxRunner,
	publisher EventPublisher,
	health *WorkerHealth,
	logger *slog.Logger,
) *SuspensionExpiryWorker {
	return &SuspensionExpiryWorker{
		namespace:      namespace,
		municipalityID: municipalityID,
		errands:        errands,
		employees:      employees,
		ledger:         ledger,
		tx:             tx,
		publisher:      publisher,
		health:         health,
		logger:         logger.With("worker", suspensionWorkerName),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one scheduled sweep over expired suspensions.
func (w *SuspensionExpiryWorker) Run(ctx context.Context) error {
	w.health.Reset()
	timer := prometheus.NewTimer(workerRunDurationHist.WithLabelValues(suspensionWorkerName))
	defer timer.ObserveDuration()

	now := w.now()
	expired, err := w.errands.FindExpiredSuspensions(ctx, w.namespace, w.municipalityID, now)
	if err != nil {
		w.health.SetDegraded()
		workerRunsCounter.WithLabelValues(suspensionWorkerName, "error_fetch_batch").Inc()
		return fmt.Errorf("failed to list expired suspensions: %w", err)
	}

	for _, candidate := range expired {
		status, err := w.restore(ctx, candidate.ID, now)
		if err != nil {
			w.health.SetDegraded()
			itemsProcessedCounter.WithLabelValues(suspensionWorkerName, "error").Inc()
			w.logger.ErrorContext(ctx, "Failed to restore suspended errand",
				"error", err, "errand_id", candidate.ID, "errand_number", candidate.ErrandNumber)
			continue
		}
		itemsProcessedCounter.WithLabelValues(suspensionWorkerName, status).Inc()
	}

	workerRunsCounter.WithLabelValues(suspensionWorkerName, "success").Inc()
	return nil
}

func (w *SuspensionExpiryWorker) restore(ctx context.Context, errandID uuid.UUID, now time.Time) (string, error) {
	var (
		restored     *domain.Errand
		notification *domain.Notification
	)

	err := w.tx.Within(ctx, func(ctx context.Context, stores domain.Stores) error {
		errand, err := stores.Errands.GetByID(ctx, errandID)
		if err != nil {
			return err
		}
		// Someone may have restored or re-suspended it between listing and
		// now. Only restore what is still suspended.
		if errand.Status != domain.StatusSuspended {
			return nil
		}

		// Resume clears the suspension window; the dedup check below keys on
		// when the window started, so capture it first.
		suspendedFrom := errand.CreatedAt
		if errand.SuspendedFrom.Valid {
			suspendedFrom = errand.SuspendedFrom.Time
		}

		w.ledger.Resume(ctx, errand, errand.AssignedUserID, now)
		if err := stores.Errands.Update(ctx, errand); err != nil {
			return err
		}

		duplicate, err := stores.Notifications.ExistsUnacknowledged(
			ctx, errand.AssignedUserID, errand.ID, domain.SuspensionLiftedDescription, suspendedFrom)
		if err != nil {
			return err
		}
		if !duplicate {
			displayName := w.displayName(ctx, errand.AssignedUserID)
			n := domain.NewSuspensionLiftedNotification(errand.AssignedUserID, displayName, errand.ID, now)
			if err := stores.Notifications.Create(ctx, n); err != nil {
				return err
			}
			notification = n
		}

		restored = errand
		return nil
	})
	if err != nil {
		return "", err
	}
	if restored == nil {
		return "skipped", nil
	}

	w.logger.InfoContext(ctx, "Suspension expired, errand restored",
		"errand_id", restored.ID, "errand_number", restored.ErrandNumber,
		"status", restored.Status)
	publishEvent(ctx, w.logger, w.publisher, SubjectErrandStatusChanged, statusChangedEvent(restored, now))
	if notification != nil {
		publishEvent(ctx, w.logger, w.publisher, SubjectNotificationCreated, NotificationCreatedEvent{
			NotificationID: notification.ID,
			OwnerID:        notification.OwnerID,
			ErrandID:       notification.ErrandID,
			Description:    notification.Description,
			OccurredAt:     now,
		})
	}
	return "success", nil
}

// displayName resolves the administrator's display name, falling back to a
// placeholder when the directory cannot identify them.
func (w *SuspensionExpiryWorker) displayName(ctx context.Context, loginName string) string {
	if loginName == "" {
		return domain.UnknownDisplayName
	}
	name, err := w.employees.GetDisplayName(ctx, w.municipalityID, loginName)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			w.logger.WarnContext(ctx, "Failed to resolve administrator display name",
				"error", err, "login_name", loginName)
		}
		return domain.UnknownDisplayName
	}
	return name
}
