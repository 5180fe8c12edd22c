// Package catalog resolves recognizer labels to catalog tools.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
	"github.com/joseph-ayodele/tools-tracker/internal/metrics"
	"github.com/joseph-ayodele/tools-tracker/internal/repository"
)

// ErrToolNotFound is returned by Resolve when no catalog entry matches a label.
var ErrToolNotFound = common.NewAppError("TOOL_NOT_FOUND", "no catalog tool matches label", common.ErrNotFound)

const (
	indexKey      = "index"
	reloadTimeout = 30 * time.Second
)

// Resolver maps a free-text label to a tool identity.
type Resolver interface {
	Resolve(ctx context.Context, label string) (entity.ToolID, error)
}

// Catalog serves lookups from an in-memory index of compacted tool names. The index is loaded
// from the tool repository on first use and again after it expires or is invalidated.
type Catalog struct {
	tools   repository.ToolRepository
	cache   *cache.Cache
	loads   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu  sync.Mutex
	gen uint64 // bumped by Invalidate; a reload only stores its index if gen is unchanged
}

// New creates a catalog. A ttl of zero or less keeps the index until Invalidate is called.
func New(tools repository.ToolRepository, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Catalog{
		tools:   tools,
		cache:   cache.New(ttl, 0), // single key, expired on read
		metrics: m,
		logger:  logger,
	}
}

// Compact removes every whitespace rune from s.
func Compact(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func (c *Catalog) Resolve(ctx context.Context, label string) (entity.ToolID, error) {
	index, err := c.index(ctx)
	if err != nil {
		return 0, err
	}
	id, ok := index[Compact(label)]
	c.metrics.RecordCatalogLookup(ok)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrToolNotFound, label)
	}
	return id, nil
}

// Invalidate drops the cached index so the next lookup reloads it.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Delete(indexKey)
}

func (c *Catalog) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// store caches index unless the catalog was invalidated after the load for gen began.
func (c *Catalog) store(gen uint64, index map[string]entity.ToolID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.cache.Set(indexKey, index, cache.DefaultExpiration)
	return true
}

// Add creates a catalog entry and invalidates the index.
func (c *Catalog) Add(ctx context.Context, tool entity.Tool) (*entity.Tool, error) {
	v := common.NewValidator().
		Field("id", int64(tool.ID), common.Positive).
		Field("name", tool.Name, common.Required)
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	created, err := c.tools.Create(ctx, tool)
	if err != nil {
		return nil, err
	}
	c.Invalidate()
	return created, nil
}

func (c *Catalog) List(ctx context.Context) ([]entity.Tool, error) {
	return c.tools.List(ctx)
}

func (c *Catalog) index(ctx context.Context) (map[string]entity.ToolID, error) {
	if cached, found := c.cache.Get(indexKey); found {
		if index, ok := cached.(map[string]entity.ToolID); ok {
			return index, nil
		}
	}

	// Loads are shared per generation, so a lookup after Invalidate never joins a load that
	// read the tool list before the change. The load outlives a cancelled first caller.
	gen := c.generation()
	ch := c.loads.DoChan(indexKey+"-"+strconv.FormatUint(gen, 10), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reloadTimeout)
		defer cancel()
		return c.load(loadCtx, gen)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]entity.ToolID), nil
	}
}

func (c *Catalog) load(ctx context.Context, gen uint64) (map[string]entity.ToolID, error) {
	tools, err := c.tools.List(ctx)
	c.metrics.RecordCatalogReload(err)
	if err != nil {
		c.logger.Error("catalog.reload.failed", "error", err)
		return nil, err
	}
	index := make(map[string]entity.ToolID, len(tools))
	for _, t := range tools {
		key := Compact(t.Name)
		if prev, dup := index[key]; dup {
			// tools are listed by id, so the smallest id keeps the name
			c.logger.Warn("catalog.duplicate_name", "name", t.Name, "kept_tool_id", prev, "ignored_tool_id", t.ID)
			continue
		}
		index[key] = t.ID
	}
	stored := c.store(gen, index)
	c.logger.Debug("catalog.reload.done", "tools", len(index), "stored", stored)
	return index, nil
}
