package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everyplants/batchmaker/internal/pipeline"
	"github.com/everyplants/batchmaker/internal/telemetry"
	"github.com/everyplants/batchmaker/pkg/fulfill"
)

func TestTagCache_ResolvesOnceAndInvalidates(t *testing.T) {
	api := fulfill.NewMockAPIClient()
	client := fulfill.NewWithAPIClient(fulfill.Config{}, api, telemetry.NewNopLogger(), nil)
	cache := pipeline.NewTagCache(client, "Batchmaker")
	ctx := context.Background()

	id, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, id)

	// The platform tag changed; the cached id is served until invalidated.
	api.SeedTags(fulfill.Tag{ID: 9, Title: "Batchmaker"})
	id, err = cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, id)

	cache.Invalidate()
	id, err = cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, id)
}

func TestTagCache_UnknownTag(t *testing.T) {
	api := fulfill.NewMockAPIClient()
	client := fulfill.NewWithAPIClient(fulfill.Config{}, api, telemetry.NewNopLogger(), nil)
	cache := pipeline.NewTagCache(client, "Verpakking")

	_, err := cache.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not defined")
}
