// Package pipeline drives batches of pick orders through shipment creation,
// label mutation, and document combination, checkpointing every step so a
// crashed or abandoned run can resume without duplicating work.
package pipeline

import (
	"context"
	"crypto/rand"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/everyplants/batchmaker/internal/blob"
	"github.com/everyplants/batchmaker/internal/store"
	"github.com/everyplants/batchmaker/internal/telemetry"
	"github.com/everyplants/batchmaker/pkg/fulfill"
)

// Config holds pipeline tuning.
type Config struct {
	// BatchTimeout bounds one orchestrator run over a batch.
	BatchTimeout time.Duration

	// WebhookURL receives the batch-finished notification. Empty disables it.
	WebhookURL string

	// SessionTagName is the platform tag attached to pick orders completed
	// through a packing session. SessionTagging turns the behavior off.
	SessionTagName string
	SessionTagging bool

	// Retry overrides the external-call retry policy. Zero value uses the
	// default.
	Retry RetryPolicy
}

// Pipeline owns the batch orchestrator and the multicollo consolidator.
type Pipeline struct {
	cfg      Config
	store    *store.Store
	blob     blob.Store
	fulfill  *fulfill.Client
	notifier *Notifier
	tags     *TagCache
	metrics  *telemetry.Metrics
	logger   *otelzap.Logger
	tracer   trace.Tracer
	retry    RetryPolicy
}

// New wires a pipeline.
func New(cfg Config, st *store.Store, bl blob.Store, client *fulfill.Client, metrics *telemetry.Metrics, logger *otelzap.Logger, tracer trace.Tracer) *Pipeline {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Minute
	}
	retry := cfg.Retry
	if retry.Attempts <= 0 {
		retry = defaultRetryPolicy
	}
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		blob:     bl,
		fulfill:  client,
		notifier: NewNotifier(cfg.WebhookURL),
		tags:     NewTagCache(client, cfg.SessionTagName),
		metrics:  metrics,
		logger:   logger,
		tracer:   tracer,
		retry:    retry,
	}
}

// SubmitResult is the synchronous outcome of a batch submission. The run is
// best-effort: Success stays true as long as at least one label shipped.
type SubmitResult struct {
	BatchID             string  `json:"batchId"`
	Success             bool    `json:"success"`
	Status              string  `json:"status"`
	TotalOrders         int     `json:"totalOrders"`
	SuccessfulShipments int     `json:"successCount"`
	FailedShipments     int     `json:"failCount"`
	CombinedPDFURL      *string `json:"combinedPdfUrl,omitempty"`
}

// SubmitBatch validates, persists, and synchronously processes one batch
// submission.
func (p *Pipeline) SubmitBatch(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.SubmitBatch")
	defer span.End()

	valid, err := p.validateOrders(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(valid) == 0 {
		return nil, &ValidationError{Violations: []OrderViolation{
			{Reason: "submission contains no orders"},
		}}
	}

	batchID := newBatchID()
	batch := &store.SingleOrderBatch{
		BatchID:            batchID,
		Name:               req.Name,
		TotalOrders:        len(valid),
		Status:             store.BatchProcessing,
		ShippingProviderID: req.ShippingProviderID,
		PackagingID:        req.PackagingID,
	}
	if err := p.store.CreateBatch(ctx, batch); err != nil {
		return nil, &FatalBatchError{BatchID: batchID, Cause: err}
	}

	p.logger.Info("Batch submitted",
		zap.String("batch_id", batchID),
		zap.Int("orders", len(valid)),
	)

	externalIDs, batchNumber, err := p.createPlatformBatches(ctx, batchID, valid)
	if err != nil {
		// Already-created partitions are not rolled back. Documented
		// limitation: the platform keeps them, the batch is marked failed.
		if uerr := p.store.UpdateBatch(ctx, batchID, map[string]any{
			"status": store.BatchFailed,
		}); uerr != nil {
			p.logger.Error("Marking batch failed", zap.String("batch_id", batchID), zap.Error(uerr))
		}
		p.metrics.BatchesFinished.WithLabelValues(string(store.BatchFailed)).Inc()
		return &SubmitResult{
			BatchID:     batchID,
			Success:     false,
			Status:      string(store.BatchFailed),
			TotalOrders: len(valid),
		}, nil
	}

	lbls := make([]*store.ShipmentLabel, 0, len(valid))
	for _, v := range valid {
		lbls = append(lbls, &store.ShipmentLabel{
			BatchID:          batchID,
			PicklistID:       v.picklist.ID,
			OrderID:          intPtr(v.picklist.OrderID),
			OrderReference:   orderReference(v),
			Retailer:         v.group.Retailer,
			PlantName:        v.group.PlantName,
			PlantProductCode: v.group.PlantProductCode,
			Country:          v.picklist.DeliveryCountry,
			Status:           store.LabelQueued,
		})
	}
	if err := p.store.CreateLabels(ctx, lbls); err != nil {
		return nil, &FatalBatchError{BatchID: batchID, Cause: err}
	}
	if err := p.store.SetExternalBatchIDs(ctx, batchID, externalIDs, batchNumber); err != nil {
		return nil, &FatalBatchError{BatchID: batchID, Cause: err}
	}

	progress, err := p.ProcessBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return submitResultFrom(progress), nil
}

// createPlatformBatches creates one platform batch per warehouse partition.
// Returns the created batch ids and the first partition's batch number.
func (p *Pipeline) createPlatformBatches(ctx context.Context, batchID string, valid []validatedOrder) ([]int, *string, error) {
	warehouses, partitions := partitionByWarehouse(valid)

	var externalIDs []int
	var batchNumber *string
	for _, wh := range warehouses {
		ids := make([]int, 0, len(partitions[wh]))
		for _, v := range partitions[wh] {
			ids = append(ids, v.picklist.ID)
		}

		var created *fulfill.PicklistBatch
		err := p.callFulfill(ctx, "create_batch", func(ctx context.Context) error {
			var err error
			created, err = p.fulfill.CreateBatch(ctx, ids)
			return err
		})
		if err != nil {
			p.logger.Error("Platform batch creation failed",
				zap.String("batch_id", batchID),
				zap.Int("warehouse_id", wh),
				zap.Error(err),
			)
			return nil, nil, err
		}
		externalIDs = append(externalIDs, created.ID)
		if batchNumber == nil && created.BatchID != "" {
			number := created.BatchID
			batchNumber = &number
		}
	}
	return externalIDs, batchNumber, nil
}

// RetryBatch resets a batch's errored labels to queued and re-runs the
// orchestrator.
func (p *Pipeline) RetryBatch(ctx context.Context, batchID string) (*store.Progress, error) {
	reset, err := p.store.ResetErroredLabels(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if reset > 0 {
		if err := p.store.UpdateBatch(ctx, batchID, map[string]any{
			"status":            store.BatchProcessing,
			"failed_shipments":  0,
			"webhook_triggered": false,
		}); err != nil {
			return nil, err
		}
		p.logger.Info("Retrying errored labels",
			zap.String("batch_id", batchID),
			zap.Int64("reset", reset),
		)
	}
	return p.ProcessBatch(ctx, batchID)
}

// Progress returns the live progress view of a batch.
func (p *Pipeline) Progress(ctx context.Context, batchID string) (*store.Progress, error) {
	return p.store.BatchProgress(ctx, batchID)
}

func submitResultFrom(progress *store.Progress) *SubmitResult {
	return &SubmitResult{
		BatchID:             progress.BatchID,
		Success:             progress.Completed > 0,
		Status:              string(progress.Status),
		TotalOrders:         progress.Total,
		SuccessfulShipments: progress.Completed,
		FailedShipments:     progress.Failed,
		CombinedPDFURL:      progress.CombinedPDFPath,
	}
}

// newBatchID generates an SO- prefixed token: millisecond timestamp in base
// 36 and 4 random characters, uppercased and hyphen separated.
func newBatchID() string {
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
	return "SO-" + ts + "-" + string(buf)
}

func orderReference(v validatedOrder) string {
	if v.order.Reference != "" {
		return v.order.Reference
	}
	return v.picklist.Reference
}

func intPtr(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
