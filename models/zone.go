package models

import "time"

// NoOpening marks a border without passage.
const NoOpening = -1

// ConnectionRecord holds the opening position for each border of a zone.
type ConnectionRecord struct {
	North int `json:"north"`
	South int `json:"south"`
	East  int `json:"east"`
	West  int `json:"west"`
}

// EmptyConnections returns a record with every border closed.
func EmptyConnections() ConnectionRecord {
	return ConnectionRecord{North: NoOpening, South: NoOpening, East: NoOpening, West: NoOpening}
}

func (r ConnectionRecord) Get(d Direction) int {
	switch d {
	case North:
		return r.North
	case South:
		return r.South
	case East:
		return r.East
	default:
		return r.West
	}
}

func (r *ConnectionRecord) Set(d Direction, pos int) {
	switch d {
	case North:
		r.North = pos
	case South:
		r.South = pos
	case East:
		r.East = pos
	default:
		r.West = pos
	}
}

// ExitCount returns the number of open borders.
func (r ConnectionRecord) ExitCount() int {
	n := 0
	for _, d := range Directions {
		if r.Get(d) != NoOpening {
			n++
		}
	}
	return n
}

func (r ConnectionRecord) HasExit() bool {
	return r.ExitCount() > 0
}

// ZoneData is a fully resolved zone
type ZoneData struct {
	Key          ZoneKey          `json:"key"`
	Level        int              `json:"level"`
	Grid         Grid             `json:"grid"`
	Structures   []Structure      `json:"structures"`
	Enemies      []EnemyPlacement `json:"enemies"`
	Items        []ItemPlacement  `json:"items"`
	Connections  ConnectionRecord `json:"connections"`
	FromOverride bool             `json:"from_override"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

// GetTileRaw reads a tile without caching. Out-of-bounds reads return TileVoid.
func (z *ZoneData) GetTileRaw(x, y int) int {
	if !z.Grid.InBounds(x, y) {
		return TileVoid
	}
	return z.Grid[y][x]
}

// SetTileRaw writes a tile without caching. Out-of-bounds writes are dropped.
func (z *ZoneData) SetTileRaw(x, y, value int) {
	if !z.Grid.InBounds(x, y) {
		return
	}
	z.Grid[y][x] = value
}

// Clone returns a deep copy safe to hand to another goroutine.
func (z *ZoneData) Clone() *ZoneData {
	out := *z
	out.Grid = z.Grid.Clone()
	out.Structures = append([]Structure(nil), z.Structures...)
	out.Enemies = append([]EnemyPlacement(nil), z.Enemies...)
	out.Items = append([]ItemPlacement(nil), z.Items...)
	return &out
}

// ZoneCache stores resolved zones for the lifetime of a session.
type ZoneCache interface {
	Get(key ZoneKey) (*ZoneData, bool)
	Put(key ZoneKey, zone *ZoneData)
	Delete(key ZoneKey)
	Len() int
	Clear()
}

// MapZoneCache is a map-backed ZoneCache. It is not safe for concurrent use;
// the owning coordinator serialises access.
type MapZoneCache struct {
	zones map[ZoneKey]*ZoneData
}

func NewMapZoneCache() *MapZoneCache {
	return &MapZoneCache{zones: make(map[ZoneKey]*ZoneData)}
}

func (c *MapZoneCache) Get(key ZoneKey) (*ZoneData, bool) {
	z, ok := c.zones[key]
	return z, ok
}

func (c *MapZoneCache) Put(key ZoneKey, zone *ZoneData) {
	c.zones[key] = zone
}

func (c *MapZoneCache) Delete(key ZoneKey) {
	delete(c.zones, key)
}

func (c *MapZoneCache) Len() int {
	return len(c.zones)
}

func (c *MapZoneCache) Clear() {
	c.zones = make(map[ZoneKey]*ZoneData)
}
