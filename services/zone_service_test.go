package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"terminus-realm/zoneserver/gridcache"
	"terminus-realm/zoneserver/models"
	"terminus-realm/zoneserver/persistence"
)

func mustZoneService(t *testing.T, opts ...ZoneServiceOption) *ZoneService {
	t.Helper()
	s, err := NewZoneService(opts...)
	if err != nil {
		t.Fatalf("NewZoneService: %v", err)
	}
	return s
}

func newJSONStore(t *testing.T) *persistence.JSONStore {
	t.Helper()
	store, err := persistence.NewJSONStore(filepath.Join(t.TempDir(), "world.json"))
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	return store
}

func cacheOn() gridcache.Config {
	return gridcache.Config{Enabled: true, MaxCacheSize: 64, EnableStats: true}
}

// sumCounter adds every data point of an Int64 sum with the given attribute value.
func sumCounter(rm metricdata.ResourceMetrics, name, attrKey, attrValue string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if attrKey != "" {
					v, ok := dp.Attributes.Value(attribute.Key(attrKey))
					if !ok || v.AsString() != attrValue {
						continue
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

func TestEnterZoneReturnsSnapshot(t *testing.T) {
	ctx := context.Background()
	s := mustZoneService(t, WithWorldSeed(5))
	key := models.ZoneKey{X: 1, Y: 1, Dimension: models.Surface}

	zone, err := s.EnterZone(ctx, key)
	if err != nil {
		t.Fatalf("EnterZone: %v", err)
	}
	original := zone.GetTileRaw(20, 12)
	zone.SetTileRaw(20, 12, models.TileLava)

	got, err := s.GetTile(ctx, key, 20, 12)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if got != original {
		t.Fatalf("snapshot edit leaked into the session: tile = %d, want %d", got, original)
	}
}

func TestConcurrentEntryGeneratesOnce(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	s := mustZoneService(t, WithMeter(provider.Meter("test")))
	key := models.ZoneKey{X: -2, Y: 3, Dimension: models.Underground}

	var wg sync.WaitGroup
	zones := make([]*models.ZoneData, 16)
	errs := make([]error, 16)
	for i := range zones {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			zones[i], errs[i] = s.EnterZone(ctx, key)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("EnterZone %d: %v", i, err)
		}
		if diff := cmp.Diff(zones[0].Grid, zones[i].Grid); diff != "" {
			t.Fatalf("client %d saw a different zone:\n%s", i, diff)
		}
	}
	if n := s.Stats().Zones; n != 1 {
		t.Fatalf("zones = %d, want 1", n)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if n := sumCounter(rm, "zones.resolved", "zone.source", sourceGenerated); n != 1 {
		t.Fatalf("procedural resolutions = %d, want 1", n)
	}
}

func TestNeighbourZonesShareBorders(t *testing.T) {
	ctx := context.Background()
	s := mustZoneService(t, WithWorldSeed(12))

	home, err := s.EnterZone(ctx, models.ZoneKey{Dimension: models.Surface})
	if err != nil {
		t.Fatalf("EnterZone: %v", err)
	}
	for _, d := range models.Directions {
		dx, dy := d.Delta()
		next, err := s.EnterZone(ctx, models.ZoneKey{X: dx, Y: dy, Dimension: models.Surface})
		if err != nil {
			t.Fatalf("EnterZone %s: %v", d, err)
		}
		if home.Connections.Get(d) != next.Connections.Get(d.Opposite()) {
			t.Fatalf("%s border: home=%d neighbour=%d", d, home.Connections.Get(d), next.Connections.Get(d.Opposite()))
		}
	}
}

func TestSetTileThroughGridCache(t *testing.T) {
	ctx := context.Background()
	s := mustZoneService(t, WithGridCache(cacheOn()))
	key := models.ZoneKey{X: 0, Y: 2, Dimension: models.Interior}

	if err := s.SetTile(ctx, key, 5, 5, models.TileWater); err != nil {
		t.Fatalf("SetTile: %v", err)
	}
	for i := 0; i < 3; i++ {
		got, err := s.GetTile(ctx, key, 5, 5)
		if err != nil {
			t.Fatalf("GetTile: %v", err)
		}
		if got != models.TileWater {
			t.Fatalf("tile = %d, want water", got)
		}
	}

	stats, ok := s.CacheStats(key)
	if !ok {
		t.Fatal("expected cache stats for an entered zone")
	}
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Fatalf("stats = %+v, want 2 hits and 1 miss", stats)
	}
	if s.Stats().DirtyZones != 1 {
		t.Fatalf("dirty zones = %d, want 1", s.Stats().DirtyZones)
	}
}

func TestSetTileRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s := mustZoneService(t)
	key := models.ZoneKey{Dimension: models.Surface}

	if err := s.SetTile(ctx, key, 1, 1, 999); !errors.Is(err, ErrInvalidTile) {
		t.Fatalf("expected ErrInvalidTile, got %v", err)
	}
	if err := s.SetTile(ctx, key, models.ZoneWidth, 0, models.TileFloor); !errors.Is(err, models.ErrCoordinateOutOfRange) {
		t.Fatalf("expected ErrCoordinateOutOfRange, got %v", err)
	}
	if _, err := s.GetTile(ctx, key, -1, 3); !errors.Is(err, models.ErrCoordinateOutOfRange) {
		t.Fatalf("expected ErrCoordinateOutOfRange, got %v", err)
	}
	if _, err := s.EnterZone(ctx, models.ZoneKey{Dimension: models.Dimension(7)}); !errors.Is(err, models.ErrUnknownDimension) {
		t.Fatalf("expected ErrUnknownDimension, got %v", err)
	}
}

func TestIsWalkable(t *testing.T) {
	ctx := context.Background()
	s := mustZoneService(t)
	key := models.ZoneKey{Dimension: models.Surface}

	ok, err := s.IsWalkable(ctx, key, models.ZoneWidth/2, models.ZoneHeight/2)
	if err != nil || !ok {
		t.Fatalf("hub should be walkable: ok=%v err=%v", ok, err)
	}
	ok, err = s.IsWalkable(ctx, key, -1, 0)
	if err != nil || ok {
		t.Fatalf("outside the zone should not be walkable: ok=%v err=%v", ok, err)
	}
}

func TestEnterZoneHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := mustZoneService(t)

	if _, err := s.EnterZone(ctx, models.ZoneKey{Dimension: models.Surface}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPersistedZonesSurviveRestart(t *testing.T) {
	ctx := context.Background()
	store := newJSONStore(t)
	key := models.ZoneKey{X: 2, Y: -1, Dimension: models.Surface}

	first := mustZoneService(t, WithPersistence(store, true))
	original, err := first.EnterZone(ctx, key)
	if err != nil {
		t.Fatalf("EnterZone: %v", err)
	}
	if err := first.SetTile(ctx, key, 3, 3, models.TileSnow); err != nil {
		t.Fatalf("SetTile: %v", err)
	}
	if err := first.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if first.Stats().DirtyZones != 0 {
		t.Fatal("Flush left dirty zones")
	}

	second := mustZoneService(t, WithPersistence(store, true))
	reloaded, err := second.EnterZone(ctx, key)
	if err != nil {
		t.Fatalf("EnterZone after restart: %v", err)
	}
	if got := reloaded.GetTileRaw(3, 3); got != models.TileSnow {
		t.Fatalf("tile = %d, want snow", got)
	}
	if diff := cmp.Diff(original.Connections, reloaded.Connections); diff != "" {
		t.Fatalf("connections changed across restart:\n%s", diff)
	}
	restored, _ := second.Connections().GetConnections(key.X, key.Y)
	if diff := cmp.Diff(original.Connections, restored); diff != "" {
		t.Fatalf("connection manager did not adopt the stored record:\n%s", diff)
	}
}

func TestOverrideBoardThroughService(t *testing.T) {
	ctx := context.Background()
	key := models.ZoneKey{X: 5, Y: 5, Dimension: models.Surface}
	boards := NewBoardRegistry()
	boards.Register(testBoard(key))
	s := mustZoneService(t, WithBoardRegistry(boards))

	zone, err := s.EnterZone(ctx, key)
	if err != nil {
		t.Fatalf("EnterZone: %v", err)
	}
	if !zone.FromOverride {
		t.Fatal("expected the authored board")
	}
	if s.Stats().Boards != 1 {
		t.Fatalf("boards = %d, want 1", s.Stats().Boards)
	}
}

func TestResetDiscardsSession(t *testing.T) {
	ctx := context.Background()
	s := mustZoneService(t, WithGridCache(cacheOn()))
	key := models.ZoneKey{Dimension: models.Surface}
	if _, err := s.GetTile(ctx, key, 1, 1); err != nil {
		t.Fatalf("GetTile: %v", err)
	}

	s.Reset()

	stats := s.Stats()
	if stats.Zones != 0 || stats.TileCaches != 0 || stats.Connections.Records != 0 || stats.NarrativeUsed != 0 {
		t.Fatalf("stats after Reset = %+v", stats)
	}
	if _, ok := s.CacheStats(key); ok {
		t.Fatal("cache stats survived Reset")
	}
}

func TestTileAccessAfterResetUsesLiveZone(t *testing.T) {
	ctx := context.Background()
	s := mustZoneService(t, WithWorldSeed(5), WithGridCache(cacheOn()))
	key := models.ZoneKey{X: 1, Y: 1, Dimension: models.Surface}

	discarded, err := s.resolve(ctx, key)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	s.Reset()

	s.mutex.Lock()
	_, ok := s.tileCache(key)
	s.mutex.Unlock()
	if ok {
		t.Fatal("grid cache built over a zone discarded by Reset")
	}

	if err := s.SetTile(ctx, key, 20, 12, models.TileVoid); err != nil {
		t.Fatalf("SetTile: %v", err)
	}
	got, err := s.GetTile(ctx, key, 20, 12)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if got != models.TileVoid {
		t.Fatalf("GetTile = %d, want %d", got, models.TileVoid)
	}
	zone, err := s.EnterZone(ctx, key)
	if err != nil {
		t.Fatalf("EnterZone: %v", err)
	}
	if zone.GetTileRaw(20, 12) != models.TileVoid {
		t.Fatalf("EnterZone sees %d at (20,12), want %d", zone.GetTileRaw(20, 12), models.TileVoid)
	}
	if discarded.GetTileRaw(20, 12) == models.TileVoid {
		t.Fatal("write reached the zone discarded by Reset")
	}
}

func TestWritesStayCoherentAcrossConcurrentResets(t *testing.T) {
	ctx := context.Background()
	s := mustZoneService(t, WithWorldSeed(5), WithGridCache(cacheOn()))
	key := models.ZoneKey{X: 0, Y: 1, Dimension: models.Surface}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if err := s.SetTile(ctx, key, 2+w, 2+i%10, models.TileWater); err != nil {
					t.Errorf("SetTile: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			s.Reset()
		}
	}()
	wg.Wait()

	if err := s.SetTile(ctx, key, 30, 20, models.TileVoid); err != nil {
		t.Fatalf("SetTile: %v", err)
	}
	zone, err := s.EnterZone(ctx, key)
	if err != nil {
		t.Fatalf("EnterZone: %v", err)
	}
	if zone.GetTileRaw(30, 20) != models.TileVoid {
		t.Fatalf("EnterZone sees %d at (30,20) after the write", zone.GetTileRaw(30, 20))
	}
}

func TestNewZoneServiceRejectsBadConfig(t *testing.T) {
	if _, err := NewZoneService(WithGridCache(gridcache.Config{Enabled: true})); !errors.Is(err, gridcache.ErrInvalidConfiguration) {
		t.Fatalf("expected gridcache.ErrInvalidConfiguration, got %v", err)
	}
	if _, err := NewZoneService(WithCurve(constantCurve(2))); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}
