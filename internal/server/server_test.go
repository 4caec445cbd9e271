package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/everyplants/batchmaker/internal/blob"
	"github.com/everyplants/batchmaker/internal/pipeline"
	"github.com/everyplants/batchmaker/internal/server"
	"github.com/everyplants/batchmaker/internal/store"
	"github.com/everyplants/batchmaker/internal/telemetry"
	"github.com/everyplants/batchmaker/pkg/fulfill"
)

type testServer struct {
	handler http.Handler
	store   *store.Store
	api     *fulfill.MockAPIClient
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	st := store.New(db)
	require.NoError(t, st.Migrate())

	api := fulfill.NewMockAPIClient()
	client := fulfill.NewWithAPIClient(fulfill.Config{}, api, telemetry.NewNopLogger(), nil)
	metrics := telemetry.NewMetricsWith(prometheus.NewRegistry())
	tracer := noop.NewTracerProvider().Tracer("test")

	p := pipeline.New(pipeline.Config{Retry: pipeline.RetryPolicy{Attempts: 1}},
		st, blob.NewMemStore(), client, metrics, telemetry.NewNopLogger(), tracer)

	srv := server.New(server.Config{Port: 8080}, p, telemetry.NewNopLogger())
	return &testServer{handler: srv.Handler(), store: st, api: api}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func seedNewPicklists(api *fulfill.MockAPIClient, ids ...int) {
	for _, id := range ids {
		api.SeedPicklist(&fulfill.Picklist{
			ID:              id,
			Reference:       fmt.Sprintf("ORD-%d", id),
			Status:          fulfill.PicklistStatusNew,
			WarehouseID:     1,
			Weight:          1200,
			DeliveryCountry: "NL",
		})
	}
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_SubmitBatch(t *testing.T) {
	ts := newTestServer(t)
	seedNewPicklists(ts.api, 2001, 2002)

	// No plant name: label mutation is skipped, shipping still runs.
	body := `{"productGroups":[{"plantName":"","orders":[{"picklistId":2001},{"picklistId":2002}]}]}`
	rec := ts.do(t, http.MethodPost, "/api/batches", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result pipeline.SubmitResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Success)
	assert.True(t, strings.HasPrefix(result.BatchID, "SO-"))
	assert.Equal(t, string(store.BatchCompleted), result.Status)
	assert.Equal(t, 2, result.SuccessfulShipments)
}

func TestServer_SubmitBatch_ValidationFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.api.SeedPicklist(&fulfill.Picklist{ID: 2001, Status: fulfill.PicklistStatusClosed})

	body := `{"productGroups":[{"plantName":"Monstera","orders":[{"picklistId":2001}]}]}`
	rec := ts.do(t, http.MethodPost, "/api/batches", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Success    bool                      `json:"success"`
		Violations []pipeline.OrderViolation `json:"violations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Success)
	require.Len(t, resp.Violations, 1)
	assert.Equal(t, 2001, resp.Violations[0].PicklistID)
}

func TestServer_SubmitBatch_InvalidBody(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/batches", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_BatchStatus(t *testing.T) {
	ts := newTestServer(t)
	seedNewPicklists(ts.api, 2001)

	body := `{"productGroups":[{"plantName":"","orders":[{"picklistId":2001}]}]}`
	rec := ts.do(t, http.MethodPost, "/api/batches", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var result pipeline.SubmitResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))

	rec = ts.do(t, http.MethodGet, "/api/batches/"+result.BatchID+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var progress store.Progress
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&progress))
	assert.Equal(t, result.BatchID, progress.BatchID)
	assert.Equal(t, 1, progress.Total)
	assert.Equal(t, 1, progress.Completed)
}

func TestServer_BatchStatus_NotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/batches/SO-NOPE/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ShipAll(t *testing.T) {
	ts := newTestServer(t)
	seedNewPicklists(ts.api, 42)
	ctx := context.Background()

	require.NoError(t, ts.store.CreateSession(ctx, &store.PackingSession{ID: "sess-1", PicklistID: 42, Status: "packing"}))
	packaging := 7
	box1 := &store.PackingSessionBox{SessionID: "sess-1", PackagingID: &packaging, BoxNumber: 1, Status: store.BoxClosed}
	box2 := &store.PackingSessionBox{SessionID: "sess-1", PackagingID: &packaging, BoxNumber: 2, Status: store.BoxClosed}
	require.NoError(t, ts.store.CreateBox(ctx, box1))
	require.NoError(t, ts.store.CreateBox(ctx, box2))

	body := fmt.Sprintf(`{"boxWeights":{"%s":1000,"%s":1000}}`, box1.ID, box2.ID)
	rec := ts.do(t, http.MethodPost, "/api/sessions/sess-1/ship-all", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result pipeline.ShipAllResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Multicollo)
	require.Len(t, result.Boxes, 2)
	for _, b := range result.Boxes {
		assert.Equal(t, pipeline.BoxShipped, b.Status)
	}
}

func TestServer_ShipAll_UnknownSession(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/sessions/missing/ship-all", `{"boxWeights":{}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RetryUnknownBatch(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/batches/SO-NOPE/retry", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
