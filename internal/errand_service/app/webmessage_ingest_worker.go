package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/municipio/support-management/internal/errand_service/adapters/webmessagecollector"
	"github.com/municipio/support-management/internal/errand_service/domain"
)

const webMessageWorkerName = "webmessage_ingest"

// WebMessageIngestWorker polls the web message collector per configured
// family/instance, correlates messages to errands by external case tag and
// ingests them. Unmatched case ids are skipped; messages targeting errands
// solved beyond the grace window are discarded. Attachment binaries are not
// fetched during the sweep, only shadow metadata is stored.
type WebMessageIngestWorker struct {
	namespace      string
	municipalityID string
	familyIDs      []string
	instance       string
	graceWindow    time.Duration

	collector WebMessageCollectorClient
	matcher   *Matcher
	ledger    *domain.StateLedger
	tx        domain.TxRunner
	publisher EventPublisher
	health    *WorkerHealth
	logger    *slog.Logger
}

func NewWebMessageIngestWorker(
	namespace, municipalityID string,
	familyIDs []string,
	instance string,
	graceWindow time.Duration,
	collector WebMessageCollectorClient,
	matcher *Matcher,
	ledger *domain.StateLedger,
	tx domain.TxRunner,
	publisher EventPublisher,
	health *WorkerHealth,
	logger *slog.Logger,
) *WebMessageIngestWorker {
	return &WebMessageIngestWorker{
		namespace:      namespace,
		municipalityID: municipalityID,
		familyIDs:      familyIDs,
		instance:       instance,
		graceWindow:    graceWindow,
		collector:      collector,
		matcher:        matcher,
		ledger:         ledger,
		tx:             tx,
		publisher:      publisher,
		health:         health,
		logger:         logger.With("worker", webMessageWorkerName),
	}
}

// Run executes one scheduled sweep over every configured family.
func (w *WebMessageIngestWorker) Run(ctx context.Context) error {
	w.health.Reset()
	timer := prometheus.NewTimer(workerRunDurationHist.WithLabelValues(webMessageWorkerName))
	defer timer.ObserveDuration()

	for _, familyID := range w.familyIDs {
		messages, err := w.collector.GetWebMessages(ctx, w.municipalityID, familyID, w.instance)
		if err != nil {
			w.health.SetDegraded()
			workerRunsCounter.WithLabelValues(webMessageWorkerName, "error_fetch_batch").Inc()
			return fmt.Errorf("failed to fetch web messages for family %s: %w", familyID, err)
		}
		w.logger.InfoContext(ctx, "Fetched web messages", "family_id", familyID, "count", len(messages))

		for _, message := range messages {
			status, err := w.processMessage(ctx, message)
			if err != nil {
				w.health.SetDegraded()
				itemsProcessedCounter.WithLabelValues(webMessageWorkerName, "error").Inc()
				w.logger.ErrorContext(ctx, "Failed to process web message", "error", err, "message_id", message.ID)
				continue
			}
			itemsProcessedCounter.WithLabelValues(webMessageWorkerName, status).Inc()
		}
	}

	workerRunsCounter.WithLabelValues(webMessageWorkerName, "success").Inc()
	return nil
}

func (w *WebMessageIngestWorker) processMessage(ctx context.Context, message webmessagecollector.WebMessage) (string, error) {
	now := time.Now().UTC()

	var (
		reactivated *domain.Errand
		status      = "success"
	)

	err := w.tx.Within(ctx, func(ctx context.Context, stores domain.Stores) error {
		exists, err := stores.Communications.ExistsByExternalID(ctx, domain.ChannelWebMessage, message.ID)
		if err != nil {
			return err
		}
		if exists {
			status = "duplicate"
			return nil
		}

		errand, err := w.matcher.MatchWebMessage(ctx, stores.Errands, message.ExternalCaseID)
		if err != nil {
			return err
		}
		if errand == nil {
			// Unknown external case id, silent skip.
			status = "skipped"
			return nil
		}

		if errand.Status == domain.StatusSolved {
			if errand.TouchedBefore(now.Add(-w.graceWindow)) {
				// Stale-closed: message is discarded, no reactivation, no
				// ingestion.
				status = "skipped"
				w.logger.InfoContext(ctx, "Web message targets stale solved errand, discarding",
					"errand_number", errand.ErrandNumber, "message_id", message.ID)
				return nil
			}
			w.ledger.ApplyTransition(ctx, errand, domain.StatusOngoing, errand.AssignedUserID, now)
			if err := stores.Errands.Update(ctx, errand); err != nil {
				return err
			}
			reactivated = errand
			w.logger.InfoContext(ctx, "Solved errand reactivated by inbound web message",
				"errand_number", errand.ErrandNumber, "message_id", message.ID)
		}

		record := domain.NewInboundCommunication(
			errand.ErrandNumber, domain.ChannelWebMessage, message.ID,
			message.Email, "", message.Message, message.Sent,
		)
		record.Attachments = shadowAttachments(message.Attachments)
		return stores.Communications.Create(ctx, record)
	})
	if err != nil {
		return "", err
	}

	if reactivated != nil {
		errandsReactivatedCounter.WithLabelValues(string(domain.ChannelWebMessage)).Inc()
		publishEvent(ctx, w.logger, w.publisher, SubjectErrandStatusChanged, statusChangedEvent(reactivated, now))
	}
	return status, nil
}

// FetchAttachmentContent pulls one attachment binary on demand, keyed by its
// external attachment id, and fills in the stored shadow record. Already
// fetched content is not refetched.
func (w *WebMessageIngestWorker) FetchAttachmentContent(ctx context.Context, externalAttachmentID string) error {
	return w.tx.Within(ctx, func(ctx context.Context, stores domain.Stores) error {
		fetched, err := stores.Communications.AttachmentContentExists(ctx, externalAttachmentID)
		if err != nil {
			return err
		}
		if fetched {
			return nil
		}

		content, contentType, err := w.collector.GetAttachment(ctx, w.municipalityID, externalAttachmentID)
		if err != nil {
			return err
		}
		return stores.Communications.SetAttachmentContent(ctx, externalAttachmentID, contentType, content)
	})
}

func shadowAttachments(attachments []webmessagecollector.AttachmentMeta) []domain.Attachment {
	if len(attachments) == 0 {
		return nil
	}
	shadows := make([]domain.Attachment, 0, len(attachments))
	for _, meta := range attachments {
		shadows = append(shadows, domain.Attachment{
			ID:                   uuid.New(),
			FileName:             meta.Name,
			ContentType:          meta.MimeType,
			ExternalAttachmentID: meta.ID,
		})
	}
	return shadows
}
