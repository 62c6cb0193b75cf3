package services

import (
	"math/rand"
	"sync"

	"terminus-realm/zoneserver/models"
)

type zoneCoord struct {
	X, Y int
}

type borderAxis int

const (
	axisEast  borderAxis = iota // between (X,Y) and (X+1,Y)
	axisSouth                   // between (X,Y) and (X,Y+1)
)

// borderKey names an undirected pair of adjacent zones by its west/north member.
type borderKey struct {
	X, Y int
	Axis borderAxis
}

func borderFor(x, y int, d models.Direction) borderKey {
	switch d {
	case models.North:
		return borderKey{X: x, Y: y - 1, Axis: axisSouth}
	case models.South:
		return borderKey{X: x, Y: y, Axis: axisSouth}
	case models.East:
		return borderKey{X: x, Y: y, Axis: axisEast}
	default:
		return borderKey{X: x - 1, Y: y, Axis: axisEast}
	}
}

// sides returns both zones of the pair and the direction each one faces the other.
func (b borderKey) sides() (zoneCoord, models.Direction, zoneCoord, models.Direction) {
	a := zoneCoord{X: b.X, Y: b.Y}
	if b.Axis == axisEast {
		return a, models.East, zoneCoord{X: b.X + 1, Y: b.Y}, models.West
	}
	return a, models.South, zoneCoord{X: b.X, Y: b.Y + 1}, models.North
}

// distance of the shared border from the origin, measured at its closer zone.
func (b borderKey) distance() int {
	a, _, c, _ := b.sides()
	da, dc := models.Chebyshev(a.X, a.Y), models.Chebyshev(c.X, c.Y)
	if da < dc {
		return da
	}
	return dc
}

// ConnectionStats summarises generated connection state
type ConnectionStats struct {
	Records      int `json:"records"`
	DecidedPairs int `json:"decided_pairs"`
}

// ConnectionOption configures a ConnectionManager
type ConnectionOption func(*ConnectionManager)

// WithSeed makes every border decision a pure function of seed and border,
// independent of visit order.
func WithSeed(seed int64) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.seed = seed
		cm.seeded = true
	}
}

// WithConnectionCurve replaces the default distance/probability curve.
func WithConnectionCurve(c ConnectionCurve) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.curve = c
	}
}

// ConnectionManager lazily decides border openings between adjacent zones
type ConnectionManager struct {
	curve   ConnectionCurve
	seed    int64
	seeded  bool
	rng     *rand.Rand
	records map[zoneCoord]*models.ConnectionRecord
	decided map[borderKey]struct{}
	mutex   sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(opts ...ConnectionOption) (*ConnectionManager, error) {
	cm := &ConnectionManager{
		curve:   DefaultConnectionCurve(),
		records: make(map[zoneCoord]*models.ConnectionRecord),
		decided: make(map[borderKey]struct{}),
	}
	for _, opt := range opts {
		opt(cm)
	}
	if err := checkCurve(cm.curve); err != nil {
		return nil, err
	}
	if cm.seeded {
		cm.rng = rand.New(rand.NewSource(cm.seed))
	} else {
		cm.rng = rand.New(rand.NewSource(newSessionSeed()))
	}
	return cm, nil
}

// GenerateChunkConnections decides every open question about the borders of
// the zone at the centre and its eight neighbours. Borders already decided
// are left alone.
func (cm *ConnectionManager) GenerateChunkConnections(centerX, centerY int) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			x, y := centerX+dx, centerY+dy
			cm.record(x, y)
			for _, d := range models.Directions {
				b := borderFor(x, y, d)
				if _, done := cm.decided[b]; done {
					continue
				}
				cm.decide(b)
			}
		}
	}

	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			x, y := centerX+dx, centerY+dy
			cm.ensure(x, y, cm.records[zoneCoord{X: x, Y: y}])
		}
	}
}

// GetConnections returns a copy of the record for (x, y). The boolean is
// false if no border of that zone has ever been decided.
func (cm *ConnectionManager) GetConnections(x, y int) (models.ConnectionRecord, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	rec, ok := cm.records[zoneCoord{X: x, Y: y}]
	if !ok {
		return models.EmptyConnections(), false
	}
	return *rec, true
}

// EnsureMinimumConnectivity opens one border of record if all four are
// closed. The chosen opening is mirrored into the stored records of both
// zones sharing that border.
func (cm *ConnectionManager) EnsureMinimumConnectivity(x, y int, record *models.ConnectionRecord) {
	if record == nil {
		return
	}
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.ensure(x, y, record)
}

// Restore adopts the borders of a previously saved record for every pair not
// yet decided, so zones loaded from storage stay consistent with new ones.
func (cm *ConnectionManager) Restore(x, y int, record models.ConnectionRecord) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	for _, d := range models.Directions {
		b := borderFor(x, y, d)
		if _, done := cm.decided[b]; done {
			continue
		}
		cm.write(b, record.Get(d))
	}
}

// Clear discards all generated state
func (cm *ConnectionManager) Clear() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cm.records = make(map[zoneCoord]*models.ConnectionRecord)
	cm.decided = make(map[borderKey]struct{})
	if cm.seeded {
		cm.rng = rand.New(rand.NewSource(cm.seed))
	}
}

func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return ConnectionStats{Records: len(cm.records), DecidedPairs: len(cm.decided)}
}

// record returns the stored record for (x, y), creating a closed one if needed.
func (cm *ConnectionManager) record(x, y int) *models.ConnectionRecord {
	key := zoneCoord{X: x, Y: y}
	rec, ok := cm.records[key]
	if !ok {
		empty := models.EmptyConnections()
		rec = &empty
		cm.records[key] = rec
	}
	return rec
}

// randFor returns the source for a decision at the given key parts.
func (cm *ConnectionManager) randFor(parts ...int) *rand.Rand {
	if cm.seeded {
		return derivedRand(cm.seed, parts...)
	}
	return cm.rng
}

func (cm *ConnectionManager) decide(b borderKey) {
	r := cm.randFor(b.X, b.Y, int(b.Axis))
	pos := models.NoOpening
	if r.Float64() < cm.curve.Probability(b.distance()) {
		pos = openingPosition(r, b)
	}
	cm.write(b, pos)
}

// write stores a decision in both records of the pair.
func (cm *ConnectionManager) write(b borderKey, pos int) {
	a, da, c, dc := b.sides()
	cm.record(a.X, a.Y).Set(da, pos)
	cm.record(c.X, c.Y).Set(dc, pos)
	cm.decided[b] = struct{}{}
}

func (cm *ConnectionManager) ensure(x, y int, record *models.ConnectionRecord) {
	if record.HasExit() {
		return
	}
	r := cm.randFor(x, y, -1)
	d := towardOrigin(x, y, r)
	b := borderFor(x, y, d)
	pos := openingPosition(r, b)

	record.Set(d, pos)
	cm.write(b, pos)
}

func openingPosition(r *rand.Rand, b borderKey) int {
	d := models.East
	if b.Axis == axisSouth {
		d = models.South
	}
	lo, hi := d.OpeningRange()
	return lo + r.Intn(hi-lo+1)
}

// towardOrigin picks the border facing the origin along the dominant axis.
// The origin itself has no preferred side.
func towardOrigin(x, y int, r *rand.Rand) models.Direction {
	if x == 0 && y == 0 {
		return models.Directions[r.Intn(len(models.Directions))]
	}
	if abs(x) >= abs(y) {
		if x > 0 {
			return models.West
		}
		return models.East
	}
	if y > 0 {
		return models.North
	}
	return models.South
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
