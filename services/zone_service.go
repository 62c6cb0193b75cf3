package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"terminus-realm/zoneserver/gridcache"
	"terminus-realm/zoneserver/models"
	"terminus-realm/zoneserver/persistence"
)

var ErrInvalidTile = errors.New("invalid tile")

// ZoneServiceOption configures a ZoneService
type ZoneServiceOption func(*ZoneService)

// WithWorldSeed makes connections and procedural content reproducible.
func WithWorldSeed(seed int64) ZoneServiceOption {
	return func(s *ZoneService) {
		s.seed = seed
		s.seeded = true
	}
}

func WithCurve(curve ConnectionCurve) ZoneServiceOption {
	return func(s *ZoneService) { s.curve = curve }
}

// WithGridCache sets the configuration of the per-zone tile caches.
func WithGridCache(cfg gridcache.Config) ZoneServiceOption {
	return func(s *ZoneService) { s.cacheCfg = cfg }
}

// WithPersistence saves resolved zones to store and reloads them on revisit.
// Players and boards may still use store when persist is false.
func WithPersistence(store persistence.Storage, persist bool) ZoneServiceOption {
	return func(s *ZoneService) {
		s.store = store
		s.persist = persist
	}
}

func WithBoardRegistry(boards *BoardRegistry) ZoneServiceOption {
	return func(s *ZoneService) { s.boards = boards }
}

func WithAssets(assets *models.AssetPool) ZoneServiceOption {
	return func(s *ZoneService) { s.assets = assets }
}

func WithLogger(logger *slog.Logger) ZoneServiceOption {
	return func(s *ZoneService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMeter(meter metric.Meter) ZoneServiceOption {
	return func(s *ZoneService) { s.meter = meter }
}

// ZoneServiceStats summarises session state
type ZoneServiceStats struct {
	Zones          int             `json:"zones"`
	DirtyZones     int             `json:"dirty_zones"`
	TileCaches     int             `json:"tile_caches"`
	NarrativeUsed  int             `json:"narrative_used"`
	Boards         int             `json:"boards"`
	Connections    ConnectionStats `json:"connections"`
	GridCacheOn    bool            `json:"grid_cache_enabled"`
	PersistEnabled bool            `json:"persist_enabled"`
}

// ZoneService is the session coordinator. It owns the connection manager,
// the zone generator and every piece of session state they share, and
// serialises access to them so that concurrent clients never generate the
// same zone twice.
type ZoneService struct {
	connections *ConnectionManager
	generator   *ZoneGenerator
	zones       *models.MapZoneCache
	boards      *BoardRegistry
	assets      *models.AssetPool
	narrative   *models.NarrativeState
	tiles       map[models.ZoneKey]*gridcache.Cache
	dirty       map[models.ZoneKey]struct{}

	cacheCfg gridcache.Config
	store    persistence.Storage
	persist  bool
	seed     int64
	seeded   bool
	curve    ConnectionCurve

	logger  *slog.Logger
	meter   metric.Meter
	metrics *zoneMetrics

	group singleflight.Group
	mutex sync.Mutex
}

// NewZoneService creates a zone service
func NewZoneService(opts ...ZoneServiceOption) (*ZoneService, error) {
	s := &ZoneService{
		zones:     models.NewMapZoneCache(),
		narrative: models.NewNarrativeState(),
		tiles:     make(map[models.ZoneKey]*gridcache.Cache),
		dirty:     make(map[models.ZoneKey]struct{}),
		cacheCfg:  gridcache.DefaultConfig(),
		curve:     DefaultConnectionCurve(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cacheCfg.Validate(); err != nil {
		return nil, err
	}
	if s.assets == nil {
		s.assets = models.DefaultAssetPool()
	}
	if s.boards == nil {
		s.boards = NewBoardRegistry()
	}

	connOpts := []ConnectionOption{WithConnectionCurve(s.curve)}
	genOpts := []GeneratorOption{WithBoards(s.boards), WithGeneratorLogger(s.logger)}
	if s.seeded {
		connOpts = append(connOpts, WithSeed(s.seed))
		genOpts = append(genOpts, WithGeneratorSeed(s.seed))
	}

	cm, err := NewConnectionManager(connOpts...)
	if err != nil {
		return nil, err
	}
	s.connections = cm
	s.generator = NewZoneGenerator(genOpts...)

	if s.meter != nil {
		m, err := newZoneMetrics(s.meter)
		if err != nil {
			return nil, fmt.Errorf("zone metrics: %w", err)
		}
		s.metrics = m
	}
	return s, nil
}

// Boards returns the registry consulted by the override stage.
func (s *ZoneService) Boards() *BoardRegistry {
	return s.boards
}

// Connections returns the session's connection manager.
func (s *ZoneService) Connections() *ConnectionManager {
	return s.connections
}

// EnterZone resolves the zone at key and returns a snapshot of it. The zone
// is generated on first entry and reused afterwards.
func (s *ZoneService) EnterZone(ctx context.Context, key models.ZoneKey) (*models.ZoneData, error) {
	zone, err := s.lockLive(ctx, key)
	if err != nil {
		return nil, err
	}
	defer s.mutex.Unlock()
	return zone.Clone(), nil
}

// GetTile reads a tile through the zone's grid cache.
func (s *ZoneService) GetTile(ctx context.Context, key models.ZoneKey, x, y int) (int, error) {
	zone, err := s.lockLive(ctx, key)
	if err != nil {
		return 0, err
	}
	defer s.mutex.Unlock()

	if !zone.Grid.InBounds(x, y) {
		return 0, fmt.Errorf("%w: tile (%d,%d) in %s", models.ErrCoordinateOutOfRange, x, y, key)
	}
	c, _ := s.tileCache(key)
	return c.GetTile(x, y), nil
}

// SetTile writes a tile through the zone's grid cache and marks the zone for
// the next Flush.
func (s *ZoneService) SetTile(ctx context.Context, key models.ZoneKey, x, y, tile int) error {
	if tile < models.TileFloor || tile > models.TileVoid {
		return fmt.Errorf("%w: %d", ErrInvalidTile, tile)
	}
	zone, err := s.lockLive(ctx, key)
	if err != nil {
		return err
	}
	defer s.mutex.Unlock()

	if !zone.Grid.InBounds(x, y) {
		return fmt.Errorf("%w: tile (%d,%d) in %s", models.ErrCoordinateOutOfRange, x, y, key)
	}
	c, _ := s.tileCache(key)
	c.SetTile(x, y, tile)
	s.dirty[key] = struct{}{}
	s.metrics.recordTileWrite(ctx, key.Dimension.String())
	return nil
}

// IsWalkable reports whether the tile at (x, y) can be entered. Tiles
// outside the zone are never walkable.
func (s *ZoneService) IsWalkable(ctx context.Context, key models.ZoneKey, x, y int) (bool, error) {
	tile, err := s.GetTile(ctx, key, x, y)
	if errors.Is(err, models.ErrCoordinateOutOfRange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return models.IsWalkable(tile), nil
}

// CacheStats returns the grid cache statistics of a zone already entered.
func (s *ZoneService) CacheStats(key models.ZoneKey) (gridcache.Stats, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, ok := s.tiles[key]
	if !ok {
		return gridcache.Stats{}, false
	}
	return c.Stats(), true
}

func (s *ZoneService) Stats() ZoneServiceStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return ZoneServiceStats{
		Zones:          s.zones.Len(),
		DirtyZones:     len(s.dirty),
		TileCaches:     len(s.tiles),
		NarrativeUsed:  s.narrative.Len(),
		Boards:         s.boards.Len(),
		Connections:    s.connections.Stats(),
		GridCacheOn:    s.cacheCfg.Enabled,
		PersistEnabled: s.persist && s.store != nil,
	}
}

// Reset discards every generated zone, connection and narrative mark.
// Unflushed tile edits are lost.
func (s *ZoneService) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.connections.Clear()
	s.zones.Clear()
	s.narrative.Reset()
	s.tiles = make(map[models.ZoneKey]*gridcache.Cache)
	s.dirty = make(map[models.ZoneKey]struct{})
	s.logger.Info("zone session reset")
}

// Flush saves every zone modified since the last flush.
func (s *ZoneService) Flush(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.persist || s.store == nil {
		return nil
	}

	var errs []error
	for key := range s.dirty {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		zone, ok := s.zones.Get(key)
		if !ok {
			delete(s.dirty, key)
			continue
		}
		if err := s.store.SaveZone(zone); err != nil {
			s.metrics.recordSaveError(ctx)
			errs = append(errs, fmt.Errorf("save zone %s: %w", key, err))
			continue
		}
		delete(s.dirty, key)
	}
	return errors.Join(errs...)
}

// resolve returns the live zone for key. Concurrent callers for the same key
// share one resolution.
func (s *ZoneService) resolve(ctx context.Context, key models.ZoneKey) (*models.ZoneData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	v, err, _ := s.group.Do(key.String(), func() (any, error) {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		return s.resolveLocked(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.ZoneData), nil
}

func (s *ZoneService) resolveLocked(ctx context.Context, key models.ZoneKey) (*models.ZoneData, error) {
	dim := key.Dimension.String()

	if zone, ok := s.zones.Get(key); ok {
		s.metrics.recordResolved(ctx, sourceCache, dim)
		return zone, nil
	}

	if zone := s.loadStored(key); zone != nil {
		s.connections.Restore(key.X, key.Y, zone.Connections)
		s.zones.Put(key, zone)
		s.metrics.recordResolved(ctx, sourceStorage, dim)
		s.logger.Debug("zone loaded from storage", "zone", key.String())
		return zone, nil
	}

	s.connections.GenerateChunkConnections(key.X, key.Y)
	zone, err := s.generator.GenerateZone(ZoneRequest{
		X:           key.X,
		Y:           key.Y,
		Dimension:   key.Dimension,
		Cache:       s.zones,
		Connections: s.connections,
		Assets:      s.assets,
		Narrative:   s.narrative,
	})
	if err != nil {
		return nil, err
	}

	source := sourceGenerated
	if zone.FromOverride {
		source = sourceOverride
	}
	s.metrics.recordResolved(ctx, source, dim)
	s.logger.Info("zone generated",
		"zone", key.String(),
		"level", zone.Level,
		"source", source,
		"exits", zone.Connections.ExitCount(),
	)

	if s.persist && s.store != nil {
		if err := s.store.SaveZone(zone); err != nil {
			s.metrics.recordSaveError(ctx)
			s.logger.Warn("failed to persist zone", "zone", key.String(), "error", err)
		}
	}
	return zone, nil
}

func (s *ZoneService) loadStored(key models.ZoneKey) *models.ZoneData {
	if !s.persist || s.store == nil {
		return nil
	}
	zone, err := s.store.LoadZone(key)
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			s.logger.Warn("failed to load stored zone, regenerating", "zone", key.String(), "error", err)
		}
		return nil
	}
	if zone.Grid.Height() != models.ZoneHeight || zone.Grid.Width() != models.ZoneWidth {
		s.logger.Warn("stored zone has wrong dimensions, regenerating", "zone", key.String())
		return nil
	}
	return zone
}

// lockLive resolves key and returns with the mutex held and the zone still
// current for key. A Reset between resolving and locking discards the
// resolved zone, so resolution is retried.
func (s *ZoneService) lockLive(ctx context.Context, key models.ZoneKey) (*models.ZoneData, error) {
	for {
		zone, err := s.resolve(ctx, key)
		if err != nil {
			return nil, err
		}
		s.mutex.Lock()
		if live, ok := s.zones.Get(key); ok && live == zone {
			return zone, nil
		}
		s.mutex.Unlock()
	}
}

// tileCache returns the grid cache over the zone currently held for key,
// creating it on first use. It reports false when no zone is held, so a
// cache is never built over a zone discarded by Reset. The caller holds the
// mutex.
func (s *ZoneService) tileCache(key models.ZoneKey) (*gridcache.Cache, bool) {
	zone, ok := s.zones.Get(key)
	if !ok {
		return nil, false
	}
	if c, ok := s.tiles[key]; ok {
		return c, true
	}
	opts := []gridcache.Option{gridcache.WithLogger(s.logger.With("zone", key.String()))}
	if s.meter != nil {
		opts = append(opts, gridcache.WithMeter(s.meter))
	}
	c, err := gridcache.New(zone, s.cacheCfg, opts...)
	if err != nil {
		// cacheCfg was validated in NewZoneService; only metric registration can fail.
		s.logger.Warn("grid cache metrics unavailable", "zone", key.String(), "error", err)
		c, _ = gridcache.New(zone, s.cacheCfg, gridcache.WithLogger(s.logger))
	}
	s.tiles[key] = c
	return c, true
}
