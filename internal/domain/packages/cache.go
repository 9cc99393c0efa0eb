// Package packages memoizes what the package collaborator knows about an
// application: whether it is managed at all, whether it is the exempt
// launcher, and its metadata.
package packages

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/keepalive/internal/shared/types"
	"github.com/GriffinCanCode/keepalive/internal/shared/utils"
)

// Resolver answers package queries on behalf of the platform
type Resolver interface {
	IsExemptLauncherPackage(pkg string) bool
	// ResolvePackageMetadata returns nil metadata for unknown packages
	ResolvePackageMetadata(ctx context.Context, userID int, pkg string) (*types.PackageMetadata, error)
}

// FindAppResult is the memoized answer for one identity
type FindAppResult struct {
	Managed bool
	Exempt  bool
	Meta    *types.PackageMetadata
}

// Cache holds FindAppResults until they are invalidated. Entries never
// expire on their own.
type Cache struct {
	resolver Resolver
	logger   *zap.Logger

	group singleflight.Group

	mu          sync.RWMutex
	entries     map[string]FindAppResult // Protected by mu
	generations map[string]uint64        // Protected by mu

	lookups atomic.Int64
	misses  atomic.Int64
}

// NewCache creates an empty cache over resolver
func NewCache(resolver Resolver, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		resolver:    resolver,
		logger:      logger.Named("packages"),
		entries:     make(map[string]FindAppResult),
		generations: make(map[string]uint64),
	}
}

// Find returns the cached result for id, resolving it at most once across
// concurrent callers
func (c *Cache) Find(ctx context.Context, id types.Identity) (FindAppResult, error) {
	if err := utils.ValidateIdentity(id); err != nil {
		return FindAppResult{}, err
	}
	key := id.Key()
	c.lookups.Add(1)

	c.mu.RLock()
	cached, ok := c.entries[key]
	gen := c.generations[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	v, err, _ := c.group.Do(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		c.misses.Add(1)
		return c.resolve(ctx, id)
	})
	if err != nil {
		return FindAppResult{}, err
	}
	result := v.(FindAppResult)

	c.mu.Lock()
	// An invalidation that raced the resolve wins; the next Find resolves again
	if c.generations[key] == gen {
		c.entries[key] = result
	}
	c.mu.Unlock()
	return result, nil
}

func (c *Cache) resolve(ctx context.Context, id types.Identity) (FindAppResult, error) {
	meta, err := c.resolver.ResolvePackageMetadata(ctx, id.UserID, id.Package)
	if err != nil {
		return FindAppResult{}, fmt.Errorf("failed to resolve package %s: %w", id, err)
	}
	result := FindAppResult{
		Managed: meta != nil,
		Exempt:  c.resolver.IsExemptLauncherPackage(id.Package),
		Meta:    meta,
	}
	c.logger.Debug("Package resolved",
		zap.String("app", id.Key()),
		zap.Bool("managed", result.Managed),
		zap.Bool("exempt", result.Exempt),
	)
	return result, nil
}

// Invalidate evicts the entry for id
func (c *Cache) Invalidate(id types.Identity) {
	key := id.Key()
	c.mu.Lock()
	delete(c.entries, key)
	c.generations[key]++
	c.mu.Unlock()
	c.logger.Debug("Package invalidated", zap.String("app", key))
}

// IsExempt reports whether id is the exempt launcher; unresolvable packages
// are not exempt
func (c *Cache) IsExempt(ctx context.Context, id types.Identity) bool {
	result, err := c.Find(ctx, id)
	if err != nil {
		c.logger.Warn("Package lookup failed", zap.String("app", id.Key()), zap.Error(err))
		return false
	}
	return result.Exempt
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns lookup and miss counters
func (c *Cache) Stats() (lookups, misses int64) {
	return c.lookups.Load(), c.misses.Load()
}
