package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/everyplants/batchmaker/internal/labels"
	"github.com/everyplants/batchmaker/internal/store"
	"github.com/everyplants/batchmaker/pkg/fulfill"
)

// labelRun carries the in-flight state of one label through its transitions.
// Document bytes live only here; a resumed run re-fetches them from the
// original label URL.
type labelRun struct {
	batch *store.SingleOrderBatch
	label *store.ShipmentLabel
	doc   []byte
}

// runLabel drives one label to a terminal state. Every transition is guarded
// by the persisted status, so re-running a label that another process
// already advanced observes the stored state and skips forward instead of
// repeating side effects.
func (p *Pipeline) runLabel(ctx context.Context, batch *store.SingleOrderBatch, lbl *store.ShipmentLabel) store.LabelStatus {
	run := &labelRun{batch: batch, label: lbl}

	for !run.label.Status.Terminal() {
		// A cancelled or expired run is transient: the label keeps its
		// persisted status so the next run resumes it.
		if ctx.Err() != nil {
			break
		}

		var err error
		switch run.label.Status {
		case store.LabelQueued:
			err = p.stepStart(ctx, run)
		case store.LabelPending:
			err = p.stepCreateShipment(ctx, run)
		case store.LabelShipmentCreated:
			err = p.stepFetchLabel(ctx, run)
		case store.LabelFetched:
			err = p.stepEditLabel(ctx, run)
		case store.LabelEdited:
			err = p.stepUpload(ctx, run)
		default:
			err = fmt.Errorf("label %s in unexpected status %q", run.label.ID, run.label.Status)
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.failLabel(ctx, run, err)
			break
		}
	}

	if run.label.Status == store.LabelCompleted {
		p.metrics.RecordLabelOutcome("completed")
	}
	return run.label.Status
}

// advance moves the label forward under the expected-status guard. When the
// guard misses, another process advanced the label; the stored state is
// reloaded and the loop continues from there.
func (p *Pipeline) advance(ctx context.Context, run *labelRun, from, to store.LabelStatus, updates map[string]any) error {
	if _, err := p.store.AdvanceLabel(ctx, run.label.ID, from, to, updates); err != nil {
		return fmt.Errorf("advancing label to %s: %w", to, err)
	}
	stored, err := p.store.GetLabel(ctx, run.label.ID)
	if err != nil {
		return err
	}
	run.label = stored
	return nil
}

func (p *Pipeline) stepStart(ctx context.Context, run *labelRun) error {
	return p.advance(ctx, run, store.LabelQueued, store.LabelPending, nil)
}

func (p *Pipeline) stepCreateShipment(ctx context.Context, run *labelRun) error {
	profileID := 0
	if run.batch.ShippingProviderID != nil {
		profileID = *run.batch.ShippingProviderID
	}

	var shipment *fulfill.Shipment
	err := p.callFulfill(ctx, "create_shipment", func(ctx context.Context) error {
		var err error
		shipment, err = p.fulfill.CreateShipment(ctx, run.label.PicklistID, profileID, run.batch.PackagingID, 0)
		return err
	})
	if err != nil {
		return fmt.Errorf("creating shipment: %w", err)
	}

	carrier := labels.DetectCarrier(labels.CarrierHints{
		CarrierKey:   shipment.CarrierKey,
		ProfileName:  shipment.ProfileName,
		ProviderName: shipment.ProviderName,
		Provider:     shipment.Provider,
	})
	labelURL := shipment.BestLabelURL()

	p.logger.Info("Shipment created",
		zap.String("label_id", run.label.ID),
		zap.Int("shipment_id", shipment.ID),
		zap.String("carrier", string(carrier)),
	)

	return p.advance(ctx, run, store.LabelPending, store.LabelShipmentCreated, map[string]any{
		"shipment_id":        shipment.ID,
		"tracking_code":      shipment.TrackingCode,
		"original_label_url": labelURL,
		"carrier":            string(carrier),
	})
}

func (p *Pipeline) stepFetchLabel(ctx context.Context, run *labelRun) error {
	doc, err := p.fetchLabelDoc(ctx, run)
	if err != nil {
		return err
	}
	run.doc = doc
	return p.advance(ctx, run, store.LabelShipmentCreated, store.LabelFetched, nil)
}

func (p *Pipeline) stepEditLabel(ctx context.Context, run *labelRun) error {
	if run.doc == nil {
		// Resumed run: the fetched bytes were never persisted.
		doc, err := p.fetchLabelDoc(ctx, run)
		if err != nil {
			return err
		}
		run.doc = doc
	}

	if run.label.PlantName != "" {
		edited, err := labels.Overlay(run.doc, run.label.PlantName, labels.Carrier(run.label.Carrier), run.label.Country)
		if err != nil {
			return fmt.Errorf("editing label: %w", err)
		}
		run.doc = edited
	}
	return p.advance(ctx, run, store.LabelFetched, store.LabelEdited, nil)
}

func (p *Pipeline) stepUpload(ctx context.Context, run *labelRun) error {
	if run.doc == nil {
		doc, err := p.fetchLabelDoc(ctx, run)
		if err != nil {
			return err
		}
		if run.label.PlantName != "" {
			doc, err = labels.Overlay(doc, run.label.PlantName, labels.Carrier(run.label.Carrier), run.label.Country)
			if err != nil {
				return fmt.Errorf("editing label: %w", err)
			}
		}
		run.doc = doc
	}

	path := labelObjectPath(run.batch.BatchID, run.label)
	if _, err := p.blob.Upload(ctx, path, run.doc); err != nil {
		return fmt.Errorf("uploading label: %w", err)
	}
	return p.advance(ctx, run, store.LabelEdited, store.LabelCompleted, map[string]any{
		"edited_label_path": path,
	})
}

func (p *Pipeline) fetchLabelDoc(ctx context.Context, run *labelRun) ([]byte, error) {
	if run.label.ShipmentID == nil {
		return nil, fmt.Errorf("label %s has no shipment", run.label.ID)
	}
	labelURL := ""
	if run.label.OriginalLabelURL != nil {
		labelURL = *run.label.OriginalLabelURL
	}

	var doc []byte
	err := p.callFulfill(ctx, "get_label", func(ctx context.Context) error {
		var err error
		doc, err = p.fulfill.GetShipmentLabel(ctx, *run.label.ShipmentID, labelURL)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching label: %w", err)
	}
	return doc, nil
}

// failLabel records the failure and stops this label. Siblings in the batch
// are unaffected.
func (p *Pipeline) failLabel(ctx context.Context, run *labelRun, cause error) {
	p.logger.Warn("Label failed",
		zap.String("batch_id", run.batch.BatchID),
		zap.String("label_id", run.label.ID),
		zap.Int("picklist_id", run.label.PicklistID),
		zap.Error(cause),
	)
	if err := p.store.MarkLabelError(ctx, run.label.ID, cause.Error()); err != nil {
		p.logger.Error("Recording label failure", zap.String("label_id", run.label.ID), zap.Error(err))
	}
	run.label.Status = store.LabelError
	p.metrics.RecordLabelOutcome("error")
}

// labelObjectPath is the blob location of one label's edited document.
func labelObjectPath(batchID string, lbl *store.ShipmentLabel) string {
	name := lbl.OrderReference
	if name == "" {
		name = fmt.Sprintf("%d", lbl.PicklistID)
	}
	return fmt.Sprintf("%s/%s_label.pdf", batchID, name)
}
