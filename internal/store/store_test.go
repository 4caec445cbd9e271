package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/everyplants/batchmaker/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	s := store.New(db)
	require.NoError(t, s.Migrate())
	return s
}

func seedBatch(t *testing.T, s *store.Store, batchID string, statuses ...store.LabelStatus) []*store.ShipmentLabel {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.CreateBatch(ctx, &store.SingleOrderBatch{
		BatchID:     batchID,
		TotalOrders: len(statuses),
		Status:      store.BatchProcessing,
	}))

	lbls := make([]*store.ShipmentLabel, 0, len(statuses))
	for i, status := range statuses {
		lbls = append(lbls, &store.ShipmentLabel{
			BatchID:    batchID,
			PicklistID: 1000 + i,
			PlantName:  "Monstera Deliciosa",
			Country:    "NL",
			Status:     status,
		})
	}
	require.NoError(t, s.CreateLabels(ctx, lbls))
	return lbls
}

func TestAdvanceLabelGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lbls := seedBatch(t, s, "SO-ADV", store.LabelQueued)
	id := lbls[0].ID

	ok, err := s.AdvanceLabel(ctx, id, store.LabelQueued, store.LabelPending, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	// Re-running the same step finds the guard status gone.
	ok, err = s.AdvanceLabel(ctx, id, store.LabelQueued, store.LabelPending, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	shipmentID := 555
	ok, err = s.AdvanceLabel(ctx, id, store.LabelPending, store.LabelShipmentCreated, map[string]any{
		"shipment_id": shipmentID,
		"carrier":     "postnl",
	})
	require.NoError(t, err)
	assert.True(t, ok)

	lbl, err := s.GetLabel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.LabelShipmentCreated, lbl.Status)
	require.NotNil(t, lbl.ShipmentID)
	assert.Equal(t, shipmentID, *lbl.ShipmentID)
	assert.Equal(t, "postnl", lbl.Carrier)
}

func TestMarkLabelErrorSkipsTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lbls := seedBatch(t, s, "SO-ERR", store.LabelPending, store.LabelCompleted)

	require.NoError(t, s.MarkLabelError(ctx, lbls[0].ID, "shipment rejected"))
	require.NoError(t, s.MarkLabelError(ctx, lbls[1].ID, "late failure"))

	lbl, err := s.GetLabel(ctx, lbls[0].ID)
	require.NoError(t, err)
	assert.Equal(t, store.LabelError, lbl.Status)
	require.NotNil(t, lbl.ErrorMessage)
	assert.Equal(t, "shipment rejected", *lbl.ErrorMessage)

	// A completed label stays completed.
	lbl, err = s.GetLabel(ctx, lbls[1].ID)
	require.NoError(t, err)
	assert.Equal(t, store.LabelCompleted, lbl.Status)
	assert.Nil(t, lbl.ErrorMessage)
}

func TestResetErroredLabels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lbls := seedBatch(t, s, "SO-RESET",
		store.LabelError, store.LabelError, store.LabelCompleted, store.LabelQueued)
	require.NoError(t, s.MarkLabelError(ctx, lbls[3].ID, "carrier outage"))

	n, err := s.ResetErroredLabels(ctx, "SO-RESET")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	counts, err := s.CountLabels(ctx, "SO-RESET")
	require.NoError(t, err)
	assert.Equal(t, 3, counts[store.LabelQueued])
	assert.Equal(t, 1, counts[store.LabelCompleted])
	assert.Zero(t, counts[store.LabelError])

	for _, id := range []string{lbls[0].ID, lbls[1].ID, lbls[3].ID} {
		lbl, err := s.GetLabel(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, lbl.ErrorMessage)
	}
}

func TestBatchProgressCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedBatch(t, s, "SO-PROG",
		store.LabelQueued, store.LabelPending, store.LabelShipmentCreated,
		store.LabelFetched, store.LabelEdited, store.LabelCompleted, store.LabelError)

	progress, err := s.BatchProgress(ctx, "SO-PROG")
	require.NoError(t, err)
	assert.Equal(t, "SO-PROG", progress.BatchID)
	assert.Equal(t, store.BatchProcessing, progress.Status)
	assert.Equal(t, 7, progress.Total)
	assert.Equal(t, 1, progress.Queued)
	assert.Equal(t, 4, progress.Processing)
	assert.Equal(t, 1, progress.Completed)
	assert.Equal(t, 1, progress.Failed)

	// Every label is in exactly one bucket.
	sum := progress.Queued + progress.Processing + progress.Completed + progress.Failed
	assert.Equal(t, progress.Total, sum)
}

func TestBatchProgressUnknownBatch(t *testing.T) {
	s := newTestStore(t)

	_, err := s.BatchProgress(context.Background(), "SO-NOPE")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateBatchNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateBatch(context.Background(), "SO-NOPE", map[string]any{
		"status": store.BatchFailed,
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClaimBoxExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &store.PackingSession{ID: "sess-1", PicklistID: 42}))
	box := &store.PackingSessionBox{SessionID: "sess-1", BoxNumber: 1, Status: store.BoxClosed}
	require.NoError(t, s.CreateBox(ctx, box))

	ok, err := s.ClaimBox(ctx, box.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimBox(ctx, box.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaimBoxConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &store.PackingSession{ID: "sess-2", PicklistID: 43}))
	box := &store.PackingSessionBox{SessionID: "sess-2", BoxNumber: 1, Status: store.BoxClosed}
	require.NoError(t, s.CreateBox(ctx, box))

	const contenders = 8
	var wg sync.WaitGroup
	wins := make(chan bool, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimBox(ctx, box.ID)
			assert.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won)
}

func TestBoxesBySessionOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &store.PackingSession{ID: "sess-3", PicklistID: 44}))
	for _, n := range []int{3, 1, 2} {
		require.NoError(t, s.CreateBox(ctx, &store.PackingSessionBox{
			SessionID: "sess-3",
			BoxNumber: n,
			Status:    store.BoxClosed,
		}))
	}

	boxes, err := s.BoxesBySession(ctx, "sess-3")
	require.NoError(t, err)
	require.Len(t, boxes, 3)
	for i, box := range boxes {
		assert.Equal(t, i+1, box.BoxNumber)
	}
}
