// Package entity caches int-identified entities read from a repository.
//
// It is a thin layer over package cache: the repository supplies the single
// and batch loaders, and every entity is told when the cache lets go of it
// (explicit removal, expiry, or a reference-count sweep) through Removed.
// NewReferenceCounting builds the same cache on top of package refcount.
package entity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/flightcache/cache"
	"github.com/IvanBrykalov/flightcache/policy"
	"github.com/IvanBrykalov/flightcache/refcount"
)

// Entity is a cacheable record with a stable integer id.
type Entity interface {
	ID() int
	// Removed is called once when the cache drops the entity.
	Removed()
}

// Repository is the backing data store.
type Repository[E Entity] interface {
	// Fetch returns the entity with id, or an error wrapping
	// cache.ErrNotFound if there is none.
	Fetch(ctx context.Context, id int) (E, error)
	// FetchMany returns the entities that exist among ids.
	FetchMany(ctx context.Context, ids []int) (map[int]E, error)
}

// Options configures an entity cache. Zero values are safe.
type Options struct {
	// Expiration defaults to policy.Never(); entities then leave only by
	// Remove or, for reference-counting caches, by the sweep.
	Expiration policy.Policy

	// Retention is the sweep period of a reference-counting cache.
	Retention time.Duration

	Metrics cache.Metrics
	Logger  *zap.Logger
}

// Cache serves entities by id.
type Cache[E Entity] struct {
	core cache.Cache[int, E]
	rc   *refcount.Cache[int, E] // nil unless reference counting
}

// New builds an entity cache backed by repo.
func New[E Entity](repo Repository[E], opt Options) *Cache[E] {
	return &Cache[E]{core: newCore(repo, opt)}
}

// NewReferenceCounting builds an entity cache whose entries stay resident
// while referenced; see package refcount.
func NewReferenceCounting[E Entity](repo Repository[E], opt Options) *Cache[E] {
	core := newCore(repo, opt)
	return &Cache[E]{
		core: core,
		rc:   refcount.New[int, E](core, refcount.Options{Retention: opt.Retention, Logger: opt.Logger}),
	}
}

func newCore[E Entity](repo Repository[E], opt Options) cache.Cache[int, E] {
	if opt.Expiration == nil {
		opt.Expiration = policy.Never()
	}
	return cache.New[int, E](cache.Options[int, E]{
		Policy: &cache.ItemPolicy[int, E]{
			Expiration: opt.Expiration,
			OnEvict:    func(e cache.Entry[int, E], _ cache.EvictReason) { e.Value.Removed() },
		},
		Loader:      repo.Fetch,
		BatchLoader: repo.FetchMany,
		Metrics:     opt.Metrics,
		Logger:      opt.Logger,
	})
}

// Retrieve returns the entity with id, loading it from the repository on a
// miss. A reference-counting cache takes a reference.
func (c *Cache[E]) Retrieve(ctx context.Context, id int) (E, error) {
	if c.rc != nil {
		return c.rc.Get(ctx, id)
	}
	return c.core.Get(ctx, id)
}

// RetrieveMany returns the entities among ids that exist, in the order of
// ids, loading the missing ones with a single repository call.
func (c *Cache[E]) RetrieveMany(ctx context.Context, ids []int) ([]E, error) {
	var (
		res map[int]E
		err error
	)
	if c.rc != nil {
		res, err = c.rc.BatchGet(ctx, ids)
	} else {
		res, err = c.core.BatchGet(ctx, ids)
	}
	if err != nil {
		return nil, err
	}

	out := make([]E, 0, len(res))
	for _, id := range ids {
		if e, ok := res[id]; ok {
			out = append(out, e)
			delete(res, id)
		}
	}
	return out, nil
}

// EntryNoLongerUsed releases one reference on id. It is a no-op for caches
// built with New.
func (c *Cache[E]) EntryNoLongerUsed(id int) {
	if c.rc != nil {
		c.rc.EntryNoLongerUsed(id)
	}
}

// ContainsKey reports whether id is cached.
func (c *Cache[E]) ContainsKey(ctx context.Context, id int) (bool, error) {
	return c.core.ContainsKey(ctx, id)
}

// Remove drops id from the cache.
func (c *Cache[E]) Remove(ctx context.Context, id int) (bool, error) {
	if c.rc != nil {
		return c.rc.Remove(ctx, id)
	}
	return c.core.Remove(ctx, id)
}

// ItemsInCache returns the number of cached entities.
func (c *Cache[E]) ItemsInCache() int { return c.core.Len() }

// Stats returns cache statistics; sweep fields stay zero without reference counting.
func (c *Cache[E]) Stats() refcount.Stats {
	if c.rc != nil {
		return c.rc.Stats()
	}
	return refcount.Stats{Stats: c.core.Stats()}
}

// Close releases background resources.
func (c *Cache[E]) Close() error {
	if c.rc != nil {
		return c.rc.Close()
	}
	return c.core.Close()
}
