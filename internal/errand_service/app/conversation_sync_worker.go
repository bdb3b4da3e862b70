package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/municipio/support-management/internal/errand_service/adapters/conversationexchange"
	"github.com/municipio/support-management/internal/errand_service/domain"
)

const conversationWorkerName = "conversation_sync"

// ConversationSyncWorker paginates the conversation exchange above the
// per-tenant sequence watermark, creates missing conversation shadows for
// relations targeting local errands and hands each shadow to the exchange's
// message merge. The cursor is advanced once per run, only upward, and only
// over conversations that were fully processed.
type ConversationSyncWorker struct {
	pageSize int

	exchange ConversationExchangeClient
	matcher  *Matcher
	cursors  domain.SyncCursorRepository
	tx       domain.TxRunner
	health   *WorkerHealth
	logger   *slog.Logger
}

func NewConversationSyncWorker(
	pageSize int,
	exchange ConversationExchangeClient,
	matcher *Matcher,
	cursors domain.SyncCursorRepository,
	tx domain.TxRunner,
	health *WorkerHealth,
	logger *slog.Logger,
) *ConversationSyncWorker {
	return &ConversationSyncWorker{
		pageSize: pageSize,
		exchange: exchange,
		matcher:  matcher,
		cursors:  cursors,
		tx:       tx,
		health:   health,
		logger:   logger.With("worker", conversationWorkerName),
	}
}

// Run executes one scheduled sweep over every active sync cursor.
func (w *ConversationSyncWorker) Run(ctx context.Context) error {
	w.health.Reset()
	timer := prometheus.NewTimer(workerRunDurationHist.WithLabelValues(conversationWorkerName))
	defer timer.ObserveDuration()

	cursors, err := w.cursors.ListActive(ctx)
	if err != nil {
		w.health.SetDegraded()
		workerRunsCounter.WithLabelValues(conversationWorkerName, "error_fetch_batch").Inc()
		return fmt.Errorf("failed to list active sync cursors: %w", err)
	}

	for _, cursor := range cursors {
		if err := w.syncCursor(ctx, cursor); err != nil {
			w.health.SetDegraded()
			workerRunsCounter.WithLabelValues(conversationWorkerName, "error_fetch_batch").Inc()
			return err
		}
	}

	workerRunsCounter.WithLabelValues(conversationWorkerName, "success").Inc()
	return nil
}

func (w *ConversationSyncWorker) syncCursor(ctx context.Context, cursor *domain.SyncCursor) error {
	filter := conversationexchange.SequenceFilter(cursor.LatestSyncedSequenceNumber)
	highestSynced := cursor.LatestSyncedSequenceNumber

	for page := 0; ; page++ {
		result, err := w.exchange.GetConversations(ctx, cursor.MunicipalityID, cursor.Namespace, filter, page, w.pageSize)
		if err != nil {
			return fmt.Errorf("failed to fetch conversation page %d: %w", page, err)
		}

		for _, conversation := range result.Conversations {
			if err := w.processConversation(ctx, cursor, conversation); err != nil {
				// One conversation's failure is isolated; the watermark is
				// not advanced past it so it is retried next run.
				w.health.SetDegraded()
				itemsProcessedCounter.WithLabelValues(conversationWorkerName, "error").Inc()
				w.logger.ErrorContext(ctx, "Failed to process conversation",
					"error", err, "external_conversation_id", conversation.ID)
				continue
			}
			itemsProcessedCounter.WithLabelValues(conversationWorkerName, "success").Inc()
			if conversation.LatestSequenceNumber > highestSynced {
				highestSynced = conversation.LatestSequenceNumber
			}
		}

		if !result.HasNext() {
			break
		}
	}

	if highestSynced > cursor.LatestSyncedSequenceNumber {
		if err := w.cursors.Advance(ctx, cursor.Namespace, cursor.MunicipalityID, highestSynced); err != nil {
			return fmt.Errorf("failed to advance sync cursor: %w", err)
		}
		w.logger.InfoContext(ctx, "Sync cursor advanced",
			"namespace", cursor.Namespace, "municipality_id", cursor.MunicipalityID,
			"from", cursor.LatestSyncedSequenceNumber, "to", highestSynced)
	}
	return nil
}

func (w *ConversationSyncWorker) processConversation(ctx context.Context, cursor *domain.SyncCursor, conversation conversationexchange.Conversation) error {
	return w.tx.Within(ctx, func(ctx context.Context, stores domain.Stores) error {
		accepted, err := w.matcher.ResolveConversationRelations(
			ctx, stores.Errands, stores.Shadows, conversation.ID, conversation.RelationIDs())
		if err != nil {
			return err
		}

		for _, relation := range accepted {
			shadow := domain.NewConversationShadow(
				conversation.ID, relation.ErrandID,
				cursor.Namespace, cursor.MunicipalityID,
				relation.RelationID, conversation.Topic,
			)
			if err := stores.Shadows.Create(ctx, shadow); err != nil {
				return err
			}
			// Merge inside the item transaction: a merge failure rolls the
			// shadow back so the relation is retried next run.
			if err := w.exchange.MergeMessages(ctx, cursor.MunicipalityID, cursor.Namespace, conversation.ID, shadow.ID.String()); err != nil {
				return err
			}
		}
		return nil
	})
}
