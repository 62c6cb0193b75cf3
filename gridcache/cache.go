package gridcache

import (
	"container/list"
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"terminus-realm/zoneserver/models"
)

// TileStorage is the raw per-tile storage the cache sits in front of.
type TileStorage interface {
	GetTileRaw(x, y int) int
	SetTileRaw(x, y, value int)
}

// Stats reports cache effectiveness. Counters are only maintained when
// Config.EnableStats is set.
type Stats struct {
	Enabled   bool    `json:"enabled"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
}

type entry struct {
	point models.Point
	value int
}

// Option configures a Cache
type Option func(*Cache)

// WithLogger sets the logger used when debug logging is enabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMeter records hits, misses and evictions as OpenTelemetry counters.
func WithMeter(meter metric.Meter) Option {
	return func(c *Cache) {
		c.meter = meter
	}
}

// Cache is a FIFO-bounded tile cache. It is not safe for concurrent use; the
// owner serialises access.
type Cache struct {
	storage TileStorage
	cfg     Config
	entries map[models.Point]*list.Element
	order   *list.List // front is the oldest insertion
	stats   Stats
	logger  *slog.Logger
	meter   metric.Meter
	metrics *cacheMetrics
}

// New wraps storage with a cache configured by cfg.
func New(storage TileStorage, cfg Config, opts ...Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Cache{
		storage: storage,
		cfg:     cfg,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if !cfg.Enabled {
		return c, nil
	}

	c.entries = make(map[models.Point]*list.Element, cfg.MaxCacheSize)
	c.order = list.New()
	if c.meter != nil {
		m, err := newCacheMetrics(c.meter)
		if err != nil {
			return nil, err
		}
		c.metrics = m
	}
	return c, nil
}

// Enabled reports whether the cache does any bookkeeping.
func (c *Cache) Enabled() bool {
	return c.cfg.Enabled
}

// GetTile returns the tile at (x, y), reading storage only on a miss.
func (c *Cache) GetTile(x, y int) int {
	if !c.cfg.Enabled {
		return c.storage.GetTileRaw(x, y)
	}

	p := models.Point{X: x, Y: y}
	if el, ok := c.entries[p]; ok {
		c.recordHit()
		return el.Value.(*entry).value
	}

	c.recordMiss(p)
	value := c.storage.GetTileRaw(x, y)
	c.insert(p, value)
	return value
}

// SetTile writes through to storage and drops any cached value for (x, y).
func (c *Cache) SetTile(x, y, value int) {
	c.storage.SetTileRaw(x, y, value)
	if !c.cfg.Enabled {
		return
	}
	c.remove(models.Point{X: x, Y: y})
}

// PreloadRegion warms the cache for the w x h rectangle at (x, y).
func (c *Cache) PreloadRegion(x, y, w, h int) {
	if !c.cfg.Enabled {
		return
	}
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			c.preload(models.Point{X: x + dx, Y: y + dy})
		}
	}
}

// PreloadPositions warms the cache for each point.
func (c *Cache) PreloadPositions(points []models.Point) {
	if !c.cfg.Enabled {
		return
	}
	for _, p := range points {
		c.preload(p)
	}
}

// InvalidateRegion drops cached entries inside the rectangle without
// touching storage.
func (c *Cache) InvalidateRegion(x, y, w, h int) {
	if !c.cfg.Enabled {
		return
	}
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			c.remove(models.Point{X: x + dx, Y: y + dy})
		}
	}
}

func (c *Cache) InvalidatePositions(points []models.Point) {
	if !c.cfg.Enabled {
		return
	}
	for _, p := range points {
		c.remove(p)
	}
}

// ClearCache empties the cache and zeroes its statistics.
func (c *Cache) ClearCache() {
	if !c.cfg.Enabled {
		return
	}
	c.entries = make(map[models.Point]*list.Element, c.cfg.MaxCacheSize)
	c.order.Init()
	c.ResetStats()
	c.debug("grid cache cleared")
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	s := c.stats
	s.Enabled = c.cfg.Enabled && c.cfg.EnableStats
	s.Size = c.Len()
	s.MaxSize = c.cfg.MaxCacheSize
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func (c *Cache) ResetStats() {
	c.stats = Stats{}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if !c.cfg.Enabled {
		return 0
	}
	return c.order.Len()
}

func (c *Cache) preload(p models.Point) {
	if _, ok := c.entries[p]; ok {
		return
	}
	c.insert(p, c.storage.GetTileRaw(p.X, p.Y))
}

// insert adds a fresh entry, evicting the oldest first if the cache is full.
func (c *Cache) insert(p models.Point, value int) {
	if c.order.Len() >= c.cfg.MaxCacheSize {
		c.evictOldest()
	}
	c.entries[p] = c.order.PushBack(&entry{point: p, value: value})
}

func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	e := c.order.Remove(front).(*entry)
	delete(c.entries, e.point)

	if c.cfg.EnableStats {
		c.stats.Evictions++
	}
	if c.metrics != nil {
		c.metrics.evictions.Add(context.Background(), 1)
	}
	c.debug("grid cache evict", "x", e.point.X, "y", e.point.Y)
}

func (c *Cache) remove(p models.Point) {
	el, ok := c.entries[p]
	if !ok {
		return
	}
	c.order.Remove(el)
	delete(c.entries, p)
	c.debug("grid cache invalidate", "x", p.X, "y", p.Y)
}

func (c *Cache) recordHit() {
	if c.cfg.EnableStats {
		c.stats.Hits++
	}
	if c.metrics != nil {
		c.metrics.hits.Add(context.Background(), 1)
	}
}

func (c *Cache) recordMiss(p models.Point) {
	if c.cfg.EnableStats {
		c.stats.Misses++
	}
	if c.metrics != nil {
		c.metrics.misses.Add(context.Background(), 1)
	}
	c.debug("grid cache miss", "x", p.X, "y", p.Y)
}

func (c *Cache) debug(msg string, args ...any) {
	if c.cfg.EnableDebugLogging {
		c.logger.Debug(msg, args...)
	}
}
