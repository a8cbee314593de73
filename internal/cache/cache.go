// Package cache keeps recently served template metadata in memory so the
// admin detail endpoint does not hit Postgres on every click. Entries
// expire on a short TTL and are evicted LRU; a forced refresh bypasses the
// cache entirely.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/rbarbosa/peticionador/internal/model"
)

// TemplateCache is a TTL+LRU cache of template metadata keyed by ID.
type TemplateCache struct {
	lru *expirable.LRU[string, *model.Template]
}

// New creates a cache holding up to size templates for at most ttl each.
func New(size int, ttl time.Duration) *TemplateCache {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TemplateCache{lru: expirable.NewLRU[string, *model.Template](size, nil, ttl)}
}

// Get returns the cached template, or nil when absent or expired.
func (c *TemplateCache) Get(id string) *model.Template {
	t, ok := c.lru.Get(id)
	if !ok {
		return nil
	}
	return t
}

// Put stores a template.
func (c *TemplateCache) Put(t *model.Template) {
	if t == nil {
		return
	}
	c.lru.Add(t.ID, t)
}

// Invalidate drops a template, if present. Called after every write so a
// stale entry can only survive until its TTL, never past an update.
func (c *TemplateCache) Invalidate(id string) {
	c.lru.Remove(id)
}
