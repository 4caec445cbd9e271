package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/everyplants/batchmaker/internal/labels"
	"github.com/everyplants/batchmaker/internal/store"
)

// ProcessBatch drives every non-terminal label of a batch to a terminal
// state, then combines the completed labels into one document and settles
// the batch status. Safe to re-invoke at any time: completed and errored
// labels are skipped, and a batch that is already terminal is a no-op.
func (p *Pipeline) ProcessBatch(ctx context.Context, batchID string) (*store.Progress, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.ProcessBatch")
	defer span.End()

	batch, err := p.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != store.BatchProcessing {
		p.logger.Info("Batch already settled, nothing to do",
			zap.String("batch_id", batchID),
			zap.String("status", string(batch.Status)),
		)
		return p.store.BatchProgress(ctx, batchID)
	}

	// The budget bounds label work only. Bookkeeping writes run on the
	// caller's context so an expired budget cannot corrupt the record.
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.BatchTimeout)
	defer cancel()

	lbls, err := p.store.LabelsByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	// Labels run sequentially within a batch; batches are independent and
	// may run concurrently.
	for i := range lbls {
		lbl := &lbls[i]
		if lbl.Status.Terminal() {
			continue
		}
		if runCtx.Err() != nil {
			p.logger.Warn("Batch run budget expired, remaining labels resume on the next run",
				zap.String("batch_id", batchID),
			)
			break
		}
		p.runLabel(runCtx, batch, lbl)
		if err := p.updateCounters(ctx, batchID); err != nil {
			return nil, &FatalBatchError{BatchID: batchID, Cause: err}
		}
	}

	if err := p.finalizeBatch(ctx, batch); err != nil {
		return nil, err
	}
	return p.store.BatchProgress(ctx, batchID)
}

// updateCounters recomputes the aggregate counters from label statuses after
// each label reaches a terminal state, so polling shows live progress.
func (p *Pipeline) updateCounters(ctx context.Context, batchID string) error {
	counts, err := p.store.CountLabels(ctx, batchID)
	if err != nil {
		return err
	}
	return p.store.UpdateBatch(ctx, batchID, map[string]any{
		"successful_shipments": counts[store.LabelCompleted],
		"failed_shipments":     counts[store.LabelError],
	})
}

// finalizeBatch combines the completed labels, settles the batch status, and
// fires the webhook. Runs only once all labels are terminal.
func (p *Pipeline) finalizeBatch(ctx context.Context, batch *store.SingleOrderBatch) error {
	batchID := batch.BatchID
	counts, err := p.store.CountLabels(ctx, batchID)
	if err != nil {
		return err
	}
	succeeded := counts[store.LabelCompleted]
	failed := counts[store.LabelError]
	if succeeded+failed < batch.TotalOrders {
		// Not all labels terminal; the run was cut short and will resume.
		p.logger.Warn("Batch run ended with labels outstanding",
			zap.String("batch_id", batchID),
			zap.Int("terminal", succeeded+failed),
			zap.Int("total", batch.TotalOrders),
		)
		return nil
	}

	var combinedPath *string
	if succeeded > 0 {
		path, err := p.combineLabels(ctx, batchID)
		if err != nil {
			p.logger.Error("Combining labels failed",
				zap.String("batch_id", batchID),
				zap.Error(err),
			)
		} else {
			combinedPath = &path
		}
	}

	status := ComputeBatchStatus(succeeded, failed, batch.TotalOrders)
	updates := map[string]any{"status": status}
	if combinedPath != nil {
		updates["combined_pdf_path"] = *combinedPath
	}
	if err := p.store.UpdateBatch(ctx, batchID, updates); err != nil {
		return &FatalBatchError{BatchID: batchID, Cause: err}
	}
	p.metrics.BatchesFinished.WithLabelValues(string(status)).Inc()

	p.logger.Info("Batch settled",
		zap.String("batch_id", batchID),
		zap.String("status", string(status)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
	)

	p.notifyBatchFinished(ctx, batchID, status, succeeded, failed, combinedPath)
	return nil
}

// combineLabels merges every completed label's uploaded document into one
// combined object. Sources that cannot be retrieved are skipped.
func (p *Pipeline) combineLabels(ctx context.Context, batchID string) (string, error) {
	lbls, err := p.store.LabelsByBatch(ctx, batchID)
	if err != nil {
		return "", err
	}

	var docs [][]byte
	for i := range lbls {
		lbl := &lbls[i]
		if lbl.Status != store.LabelCompleted || lbl.EditedLabelPath == nil {
			continue
		}
		doc, err := p.blob.Download(ctx, *lbl.EditedLabelPath)
		if err != nil {
			p.logger.Warn("Skipping unreadable label document",
				zap.String("label_id", lbl.ID),
				zap.String("path", *lbl.EditedLabelPath),
				zap.Error(err),
			)
			continue
		}
		docs = append(docs, doc)
	}

	combined, err := labels.Combine(docs)
	if err != nil {
		if errors.Is(err, labels.ErrNothingToCombine) {
			return "", fmt.Errorf("no label documents could be retrieved for batch %s: %w", batchID, err)
		}
		return "", err
	}

	path := combinedObjectPath(batchID)
	if _, err := p.blob.Upload(ctx, path, combined); err != nil {
		return "", fmt.Errorf("uploading combined document: %w", err)
	}
	return path, nil
}

// notifyBatchFinished sends the webhook once, when configured and at least
// one label succeeded. Delivery failure only leaves webhook_triggered false.
func (p *Pipeline) notifyBatchFinished(ctx context.Context, batchID string, status store.BatchStatus, succeeded, failed int, combinedPath *string) {
	if !p.notifier.Enabled() || succeeded == 0 {
		return
	}
	batch, err := p.store.GetBatch(ctx, batchID)
	if err != nil || batch.WebhookTriggered {
		return
	}

	var combinedURL *string
	if combinedPath != nil {
		u := p.blob.PublicURL(*combinedPath)
		combinedURL = &u
	}
	payload := &WebhookPayload{
		BatchID:             batchID,
		Status:              string(status),
		TotalOrders:         batch.TotalOrders,
		SuccessfulShipments: succeeded,
		FailedShipments:     failed,
		CombinedPDFURL:      combinedURL,
		ExternalBatchIDs:    batch.ExternalBatchIDs,
	}

	if err := p.notifier.Notify(ctx, payload); err != nil {
		p.logger.Warn("Webhook delivery failed",
			zap.String("batch_id", batchID),
			zap.Error(err),
		)
		p.metrics.WebhookDelivered.WithLabelValues("error").Inc()
		return
	}
	p.metrics.WebhookDelivered.WithLabelValues("delivered").Inc()
	if err := p.store.UpdateBatch(ctx, batchID, map[string]any{"webhook_triggered": true}); err != nil {
		p.logger.Error("Recording webhook delivery", zap.String("batch_id", batchID), zap.Error(err))
	}
}

// ComputeBatchStatus derives the terminal batch status from terminal label
// counts: completed when nothing failed, failed when nothing succeeded,
// partial in between.
func ComputeBatchStatus(succeeded, failed, total int) store.BatchStatus {
	switch {
	case failed == 0 && succeeded == total:
		return store.BatchCompleted
	case succeeded == 0:
		return store.BatchFailed
	default:
		return store.BatchPartial
	}
}

// combinedObjectPath is the blob location of a batch's combined document.
func combinedObjectPath(batchID string) string {
	return batchID + "/combined_labels.pdf"
}
