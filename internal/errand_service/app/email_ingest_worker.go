package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/municipio/support-management/internal/errand_service/adapters/emailreader"
	"github.com/municipio/support-management/internal/errand_service/domain"
)

const emailWorkerName = "email_ingest"

const (
	closingNoticeSubject = "Ärendet är avslutat"
	closingNoticeBody    = "Ditt ärende är avslutat sedan mer än fem dagar och kan inte längre återöppnas via e-post. Vänligen registrera ett nytt ärende."
)

// EmailIngestWorker polls the external mailbox service, correlates each
// email to an existing or new errand, applies status side effects and
// persists the email as a communication record. The upstream email is
// deleted only after local persistence succeeded, so delivery is
// at-least-once and ingestion is idempotent on the email id.
type EmailIngestWorker struct {
	namespace      string
	municipalityID string
	shortcode      string
	graceWindow    time.Duration

	emailClient EmailReaderClient
	messaging   MessagingClient
	matcher     *Matcher
	ledger      *domain.StateLedger
	numbers     domain.ErrandNumberGenerator
	tx          domain.TxRunner
	publisher   EventPublisher
	health      *WorkerHealth
	logger      *slog.Logger
}

func NewEmailIngestWorker(
	namespace, municipalityID, shortcode string,
	graceWindow time.Duration,
	emailClient EmailReaderClient,
	messaging MessagingClient,
	matcher *Matcher,
	ledger *domain.StateLedger,
	numbers domain.ErrandNumberGenerator,
	tx domain.TxRunner,
	publisher EventPublisher,
	health *WorkerHealth,
	logger *slog.Logger,
) *EmailIngestWorker {
	return &EmailIngestWorker{
		namespace:      namespace,
		municipalityID: municipalityID,
		shortcode:      shortcode,
		graceWindow:    graceWindow,
		emailClient:    emailClient,
		messaging:      messaging,
		matcher:        matcher,
		ledger:         ledger,
		numbers:        numbers,
		tx:             tx,
		publisher:      publisher,
		health:         health,
		logger:         logger.With("worker", emailWorkerName),
	}
}

// Run executes one scheduled sweep over the mailbox. A batch fetch failure
// aborts the run; a single email's failure only skips that email.
func (w *EmailIngestWorker) Run(ctx context.Context) error {
	w.health.Reset()
	timer := prometheus.NewTimer(workerRunDurationHist.WithLabelValues(emailWorkerName))
	defer timer.ObserveDuration()

	emails, err := w.emailClient.GetEmails(ctx, w.municipalityID, w.namespace)
	if err != nil {
		w.health.SetDegraded()
		workerRunsCounter.WithLabelValues(emailWorkerName, "error_fetch_batch").Inc()
		return fmt.Errorf("failed to fetch pending emails: %w", err)
	}
	w.logger.InfoContext(ctx, "Fetched pending emails", "count", len(emails))

	for _, email := range emails {
		if err := w.processEmail(ctx, email); err != nil {
			w.health.SetDegraded()
			itemsProcessedCounter.WithLabelValues(emailWorkerName, "error").Inc()
			w.logger.ErrorContext(ctx, "Failed to process email", "error", err, "email_id", email.ID)
			continue
		}
		itemsProcessedCounter.WithLabelValues(emailWorkerName, "success").Inc()
	}

	workerRunsCounter.WithLabelValues(emailWorkerName, "success").Inc()
	return nil
}

func (w *EmailIngestWorker) processEmail(ctx context.Context, email emailreader.Email) error {
	now := time.Now().UTC()

	var (
		alreadyIngested bool
		reactivated     *domain.Errand
		staleRecipient  string
	)

	err := w.tx.Within(ctx, func(ctx context.Context, stores domain.Stores) error {
		exists, err := stores.Communications.ExistsByExternalID(ctx, domain.ChannelEmail, email.ID)
		if err != nil {
			return err
		}
		if exists {
			// Already persisted in an earlier attempt; only the upstream
			// delete is outstanding.
			alreadyIngested = true
			return nil
		}

		errand, err := w.matcher.MatchEmail(ctx, stores.Errands, email.Subject)
		if err != nil {
			return err
		}

		if errand == nil {
			errand, err = w.createErrandFromEmail(ctx, stores, email, now)
			if err != nil {
				return err
			}
		} else if errand.Status == domain.StatusSolved {
			if errand.TouchedBefore(now.Add(-w.graceWindow)) {
				// Stale-closed: notify the sender, do not reopen.
				staleRecipient = email.Sender
				w.logger.InfoContext(ctx, "Email targets stale solved errand, sending closing notice",
					"errand_number", errand.ErrandNumber, "email_id", email.ID)
			} else {
				w.ledger.ApplyTransition(ctx, errand, domain.StatusOngoing, errand.AssignedUserID, now)
				if err := stores.Errands.Update(ctx, errand); err != nil {
					return err
				}
				reactivated = errand
				w.logger.InfoContext(ctx, "Solved errand reactivated by inbound email",
					"errand_number", errand.ErrandNumber, "email_id", email.ID)
			}
		}

		record := domain.NewInboundCommunication(
			errand.ErrandNumber, domain.ChannelEmail, email.ID,
			email.Sender, email.Subject, email.Message, email.ReceivedAt,
		)
		record.Attachments, err = decodeAttachments(email.Attachments)
		if err != nil {
			return err
		}
		return stores.Communications.Create(ctx, record)
	})
	if err != nil {
		return err
	}

	if reactivated != nil {
		errandsReactivatedCounter.WithLabelValues(string(domain.ChannelEmail)).Inc()
		publishEvent(ctx, w.logger, w.publisher, SubjectErrandStatusChanged, statusChangedEvent(reactivated, now))
	}
	if staleRecipient != "" {
		// Best effort: the communication is committed either way, and the
		// upstream email must still be cleared to stop re-delivery.
		if err := w.messaging.SendEmail(ctx, w.municipalityID, staleRecipient, closingNoticeSubject, closingNoticeBody); err != nil {
			w.health.SetDegraded()
			w.logger.ErrorContext(ctx, "Failed to send closing notice", "error", err, "recipient", staleRecipient)
		} else {
			closingNoticesCounter.Inc()
		}
	}
	if alreadyIngested {
		w.logger.InfoContext(ctx, "Email already ingested, clearing upstream copy", "email_id", email.ID)
	}

	return w.emailClient.DeleteEmail(ctx, w.municipalityID, email.ID)
}

func (w *EmailIngestWorker) createErrandFromEmail(ctx context.Context, stores domain.Stores, email emailreader.Email, now time.Time) (*domain.Errand, error) {
	errandNumber, err := w.numbers.Next(ctx, w.namespace, w.municipalityID, w.shortcode, now)
	if err != nil {
		return nil, err
	}

	errand := domain.NewErrand(w.namespace, w.municipalityID, errandNumber, email.Subject, email.Message)
	errand.StakeholderContact = email.Sender
	w.ledger.OpenInitial(errand, "", now)

	if err := stores.Errands.Create(ctx, errand); err != nil {
		return nil, err
	}
	w.logger.InfoContext(ctx, "Created errand from unmatched email",
		"errand_number", errand.ErrandNumber, "email_id", email.ID, "sender", email.Sender)
	return errand, nil
}

func decodeAttachments(attachments []emailreader.Attachment) ([]domain.Attachment, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	decoded := make([]domain.Attachment, 0, len(attachments))
	for _, attachment := range attachments {
		content, err := base64.StdEncoding.DecodeString(attachment.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode attachment %q: %w", attachment.Name, err)
		}
		decoded = append(decoded, domain.Attachment{
			ID:          uuid.New(),
			FileName:    attachment.Name,
			ContentType: attachment.ContentType,
			Content:     content,
		})
	}
	return decoded, nil
}
