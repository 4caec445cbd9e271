package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/everyplants/batchmaker/pkg/fulfill"
)

// TagCache resolves a platform tag by title once and caches the id for the
// lifetime of the cache. Owned by the pipeline rather than living in a
// package-level variable so its lifetime is explicit.
type TagCache struct {
	mu     sync.Mutex
	client *fulfill.Client
	title  string

	id       int
	resolved bool
}

// NewTagCache builds a cache for the tag with the given title.
func NewTagCache(client *fulfill.Client, title string) *TagCache {
	return &TagCache{client: client, title: title}
}

// Get returns the tag id, resolving it through the platform on first use.
func (c *TagCache) Get(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved {
		return c.id, nil
	}

	tags, err := c.client.Tags(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolving tag %q: %w", c.title, err)
	}
	for _, tag := range tags {
		if strings.EqualFold(tag.Title, c.title) {
			c.id = tag.ID
			c.resolved = true
			return c.id, nil
		}
	}
	return 0, fmt.Errorf("tag %q not defined on platform", c.title)
}

// Invalidate drops the cached id so the next Get resolves again.
func (c *TagCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved = false
	c.id = 0
}
