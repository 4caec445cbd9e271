// Package store persists shipment labels, batches, and packing-session boxes
// in a schema-qualified relational database.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the data access layer. It carries no business rules beyond
// uniqueness and the conditional updates the pipeline's idempotence and the
// box claim depend on.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the pipeline tables into the given
// schema.
func Open(dsn, dbSchema string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: dbSchema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := db.Exec("CREATE SCHEMA IF NOT EXISTS " + dbSchema).Error; err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an existing gorm connection. Used by tests.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the pipeline tables.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&SingleOrderBatch{},
		&ShipmentLabel{},
		&PackingSession{},
		&PackingSessionBox{},
	)
}

// CreateBatch inserts a new batch record.
func (s *Store) CreateBatch(ctx context.Context, batch *SingleOrderBatch) error {
	return s.db.WithContext(ctx).Create(batch).Error
}

// GetBatch fetches a batch by id.
func (s *Store) GetBatch(ctx context.Context, batchID string) (*SingleOrderBatch, error) {
	var batch SingleOrderBatch
	err := s.db.WithContext(ctx).First(&batch, "batch_id = ?", batchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: batch %s", ErrNotFound, batchID)
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// UpdateBatch applies a partial update to a batch record.
func (s *Store) UpdateBatch(ctx context.Context, batchID string, updates map[string]any) error {
	result := s.db.WithContext(ctx).Model(&SingleOrderBatch{}).
		Where("batch_id = ?", batchID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: batch %s", ErrNotFound, batchID)
	}
	return nil
}

// SetExternalBatchIDs records the platform batch ids created for this
// batch's warehouse partitions. Struct-based update so the json serializer
// on the slice field applies.
func (s *Store) SetExternalBatchIDs(ctx context.Context, batchID string, ids []int, number *string) error {
	result := s.db.WithContext(ctx).Model(&SingleOrderBatch{}).
		Where("batch_id = ?", batchID).
		Updates(SingleOrderBatch{ExternalBatchIDs: ids, ExternalBatchNumber: number})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: batch %s", ErrNotFound, batchID)
	}
	return nil
}

// CreateLabels inserts label records in one statement.
func (s *Store) CreateLabels(ctx context.Context, lbls []*ShipmentLabel) error {
	for _, l := range lbls {
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
	}
	return s.db.WithContext(ctx).Create(lbls).Error
}

// LabelsByBatch returns all labels of a batch ordered by creation.
func (s *Store) LabelsByBatch(ctx context.Context, batchID string) ([]ShipmentLabel, error) {
	var lbls []ShipmentLabel
	err := s.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at, id").
		Find(&lbls).Error
	return lbls, err
}

// GetLabel fetches one label by id.
func (s *Store) GetLabel(ctx context.Context, id string) (*ShipmentLabel, error) {
	var lbl ShipmentLabel
	err := s.db.WithContext(ctx).First(&lbl, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: label %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &lbl, nil
}

// AdvanceLabel moves a label from one status to the next, applying extra
// field updates in the same statement. The update only fires while the label
// still holds the expected prior status, which makes re-running a step a
// no-op. Returns false when the guard did not match.
func (s *Store) AdvanceLabel(ctx context.Context, id string, from, to LabelStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to

	result := s.db.WithContext(ctx).Model(&ShipmentLabel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkLabelError moves a label to error from any non-terminal status,
// recording the failure reason. Terminal labels are left untouched.
func (s *Store) MarkLabelError(ctx context.Context, id string, reason string) error {
	return s.db.WithContext(ctx).Model(&ShipmentLabel{}).
		Where("id = ? AND status NOT IN ?", id, []LabelStatus{LabelCompleted, LabelError}).
		Updates(map[string]any{
			"status":        LabelError,
			"error_message": reason,
		}).Error
}

// ResetErroredLabels flips all errored labels of a batch back to queued for
// an operator-triggered retry. Returns the number of labels reset.
func (s *Store) ResetErroredLabels(ctx context.Context, batchID string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&ShipmentLabel{}).
		Where("batch_id = ? AND status = ?", batchID, LabelError).
		Updates(map[string]any{
			"status":        LabelQueued,
			"error_message": nil,
		})
	return result.RowsAffected, result.Error
}

// CountLabels returns the number of labels per status for a batch.
func (s *Store) CountLabels(ctx context.Context, batchID string) (map[LabelStatus]int, error) {
	var rows []struct {
		Status LabelStatus
		N      int
	}
	err := s.db.WithContext(ctx).Model(&ShipmentLabel{}).
		Select("status, count(*) as n").
		Where("batch_id = ?", batchID).
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[LabelStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.N
	}
	return counts, nil
}

// BatchProgress assembles the live progress view of a batch.
func (s *Store) BatchProgress(ctx context.Context, batchID string) (*Progress, error) {
	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	counts, err := s.CountLabels(ctx, batchID)
	if err != nil {
		return nil, err
	}

	processing := counts[LabelPending] + counts[LabelShipmentCreated] +
		counts[LabelFetched] + counts[LabelEdited]

	return &Progress{
		BatchID:         batch.BatchID,
		Status:          batch.Status,
		Total:           batch.TotalOrders,
		Queued:          counts[LabelQueued],
		Processing:      processing,
		Completed:       counts[LabelCompleted],
		Failed:          counts[LabelError],
		CombinedPDFPath: batch.CombinedPDFPath,
	}, nil
}

// CreateSession inserts a packing session record.
func (s *Store) CreateSession(ctx context.Context, session *PackingSession) error {
	return s.db.WithContext(ctx).Create(session).Error
}

// GetSession fetches a packing session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*PackingSession, error) {
	var session PackingSession
	err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateSession applies a partial update to a session record.
func (s *Store) UpdateSession(ctx context.Context, sessionID string, updates map[string]any) error {
	return s.db.WithContext(ctx).Model(&PackingSession{}).
		Where("id = ?", sessionID).
		Updates(updates).Error
}

// CreateBox inserts a box record.
func (s *Store) CreateBox(ctx context.Context, box *PackingSessionBox) error {
	if box.ID == "" {
		box.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(box).Error
}

// BoxesBySession returns all boxes of a session ordered by box number.
func (s *Store) BoxesBySession(ctx context.Context, sessionID string) ([]PackingSessionBox, error) {
	var boxes []PackingSessionBox
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("box_number").
		Find(&boxes).Error
	return boxes, err
}

// ClaimBox atomically claims a box for shipping: the claim marker is set
// only when no other process holds it. Returns false on a contested claim.
func (s *Store) ClaimBox(ctx context.Context, boxID string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&PackingSessionBox{}).
		Where("id = ? AND claimed = ?", boxID, false).
		Update("claimed", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateBox applies a partial update to a box record.
func (s *Store) UpdateBox(ctx context.Context, boxID string, updates map[string]any) error {
	result := s.db.WithContext(ctx).Model(&PackingSessionBox{}).
		Where("id = ?", boxID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: box %s", ErrNotFound, boxID)
	}
	return nil
}
