package blob_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everyplants/batchmaker/internal/blob"
)

func TestHTTPStoreUpload(t *testing.T) {
	var gotPath, gotAuth, gotUpsert string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotUpsert = r.Header.Get("x-upsert")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := blob.NewHTTPStore(srv.URL, "shipment-labels", "secret-key")
	url, err := s.Upload(context.Background(), "SO-1/combined_labels.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	assert.Equal(t, "/storage/v1/object/shipment-labels/SO-1/combined_labels.pdf", gotPath)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "true", gotUpsert)
	assert.Equal(t, []byte("%PDF-1.4"), gotBody)
	assert.Equal(t, srv.URL+"/storage/v1/object/public/shipment-labels/SO-1/combined_labels.pdf", url)
}

func TestHTTPStoreUploadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"payload too large"}`, http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	s := blob.NewHTTPStore(srv.URL, "shipment-labels", "secret-key")
	_, err := s.Upload(context.Background(), "SO-1/x.pdf", []byte("data"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "413")
}

func TestHTTPStoreDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/storage/v1/object/shipment-labels/SO-1/1001_label.pdf":
			_, _ = w.Write([]byte("pdf-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := blob.NewHTTPStore(srv.URL, "shipment-labels", "secret-key")

	data, err := s.Download(context.Background(), "SO-1/1001_label.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-bytes"), data)

	_, err = s.Download(context.Background(), "SO-1/missing.pdf")
	assert.ErrorIs(t, err, blob.ErrObjectNotFound)
}

func TestMemStoreRoundTrip(t *testing.T) {
	s := blob.NewMemStore()
	ctx := context.Background()

	url, err := s.Upload(ctx, "SO-2/a.pdf", []byte("one"))
	require.NoError(t, err)
	assert.Equal(t, "mem://SO-2/a.pdf", url)

	// Upsert semantics.
	_, err = s.Upload(ctx, "SO-2/a.pdf", []byte("two"))
	require.NoError(t, err)

	data, err := s.Download(ctx, "SO-2/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), data)
	assert.Equal(t, 1, s.Len())

	_, err = s.Download(ctx, "SO-2/missing.pdf")
	assert.ErrorIs(t, err, blob.ErrObjectNotFound)
}
