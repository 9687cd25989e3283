package flags

import (
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/clangcomplete/internal/completer"
)

// DefaultCacheSize is the number of files whose flags are remembered.
const DefaultCacheSize = 512

// Cache memoises a Resolver per filename. Concurrent misses for the same
// file share one resolution. Answers that are empty or marked not
// cacheable are never stored.
type Cache struct {
	resolver Resolver
	entries  *lru.Cache[string, []string]
	group    singleflight.Group
	logger   *zap.Logger

	// epoch counts purges. A resolution started before a purge neither
	// fills the cache nor is shared with callers arriving after it.
	mu    sync.Mutex
	epoch uint64
}

var _ completer.FlagsSource = (*Cache)(nil)

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheLogger sets the logger.
func WithCacheLogger(logger *zap.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCache creates a cache holding up to size entries.
func NewCache(resolver Resolver, size int, opts ...CacheOption) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, []string](size)

	c := &Cache{
		resolver: resolver,
		entries:  entries,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FlagsForFile implements completer.FlagsSource.
func (c *Cache) FlagsForFile(filename string) ([]string, error) {
	if f, ok := c.entries.Get(filename); ok {
		return append([]string(nil), f...), nil
	}

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	key := strconv.FormatUint(epoch, 10) + "\x00" + filename
	v, err, shared := c.group.Do(key, func() (any, error) {
		res, err := c.resolver.Resolve(filename)
		if err != nil {
			return nil, err
		}
		if res.Cache && len(res.Flags) > 0 {
			c.mu.Lock()
			if c.epoch == epoch {
				c.entries.Add(filename, res.Flags)
			}
			c.mu.Unlock()
		}
		return res.Flags, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("flags resolution shared", zap.String("file", filename))
	}

	f, _ := v.([]string)
	return append([]string(nil), f...), nil
}

// Purge drops every cached entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.epoch++
	c.entries.Purge()
	c.mu.Unlock()
	c.logger.Debug("flags cache purged")
}

// Len returns the number of cached files.
func (c *Cache) Len() int {
	return c.entries.Len()
}
