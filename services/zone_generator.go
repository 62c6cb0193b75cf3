package services

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"terminus-realm/zoneserver/generation"
	"terminus-realm/zoneserver/models"
)

var ErrNoResolver = errors.New("no resolver produced a zone")

// ConnectionSource supplies border openings to the generator.
type ConnectionSource interface {
	GetConnections(x, y int) (models.ConnectionRecord, bool)
	EnsureMinimumConnectivity(x, y int, record *models.ConnectionRecord)
}

// BoardSource is the authored-content collaborator. All calls are
// synchronous: a board that has not finished loading is simply absent.
type BoardSource interface {
	HasBoard(key models.ZoneKey) bool
	BoardSync(key models.ZoneKey) (*models.Board, bool)
	ConvertBoardToGrid(board *models.Board) (models.Grid, error)
}

// ZoneRequest asks for the zone at (X, Y) in Dimension. Cache is populated
// with the result; Connections, Assets and Narrative may be nil.
type ZoneRequest struct {
	X           int
	Y           int
	Dimension   models.Dimension
	Cache       models.ZoneCache
	Connections ConnectionSource
	Assets      *models.AssetPool
	Narrative   *models.NarrativeState
}

// ResolveRequest is what each resolution stage sees
type ResolveRequest struct {
	Key         models.ZoneKey
	Level       int
	Connections models.ConnectionRecord
	Assets      *models.AssetPool
	Narrative   *models.NarrativeState
	Rand        *rand.Rand
}

// ZoneResolver is one stage of the resolution pipeline. A nil zone with a nil
// error means the stage does not apply and the next one runs.
type ZoneResolver interface {
	Name() string
	Resolve(req *ResolveRequest) (*models.ZoneData, error)
}

// OverrideResolver turns a registered authored board into a zone.
type OverrideResolver struct {
	Boards BoardSource
	Logger *slog.Logger
}

func (r *OverrideResolver) Name() string { return "override" }

func (r *OverrideResolver) Resolve(req *ResolveRequest) (*models.ZoneData, error) {
	if r.Boards == nil || !r.Boards.HasBoard(req.Key) {
		return nil, nil
	}
	board, ok := r.Boards.BoardSync(req.Key)
	if !ok || board == nil {
		r.reject(req.Key, errors.New("board not loaded"))
		return nil, nil
	}
	grid, err := r.Boards.ConvertBoardToGrid(board)
	if err != nil {
		r.reject(req.Key, err)
		return nil, nil
	}
	return &models.ZoneData{
		Key:          req.Key,
		Level:        req.Level,
		Grid:         grid,
		Structures:   append([]models.Structure(nil), board.Structures...),
		Enemies:      append([]models.EnemyPlacement(nil), board.Enemies...),
		Items:        append([]models.ItemPlacement(nil), board.Items...),
		Connections:  req.Connections,
		FromOverride: true,
	}, nil
}

func (r *OverrideResolver) reject(key models.ZoneKey, err error) {
	if r.Logger != nil {
		r.Logger.Warn("board override ignored, falling back to procedural generation",
			"zone", key.String(), "error", err)
	}
}

// ProceduralResolver dispatches to the handler registered for the dimension.
type ProceduralResolver struct {
	Handlers map[models.Dimension]generation.Handler
}

func (r *ProceduralResolver) Name() string { return "procedural" }

func (r *ProceduralResolver) Resolve(req *ResolveRequest) (*models.ZoneData, error) {
	h, ok := r.Handlers[req.Key.Dimension]
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %s", models.ErrUnknownDimension, req.Key.Dimension)
	}
	out, err := h.Generate(generation.Input{
		Key:         req.Key,
		Level:       req.Level,
		Connections: req.Connections,
		Assets:      req.Assets,
		Narrative:   req.Narrative,
		Rand:        req.Rand,
	})
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", req.Key, err)
	}
	return &models.ZoneData{
		Key:         req.Key,
		Level:       req.Level,
		Grid:        out.Grid,
		Structures:  out.Structures,
		Enemies:     out.Enemies,
		Items:       out.Items,
		Connections: req.Connections,
	}, nil
}

// GeneratorOption configures a ZoneGenerator
type GeneratorOption func(*ZoneGenerator)

func WithBoards(boards BoardSource) GeneratorOption {
	return func(g *ZoneGenerator) { g.boards = boards }
}

// WithHandler replaces the procedural handler for its dimension.
func WithHandler(h generation.Handler) GeneratorOption {
	return func(g *ZoneGenerator) { g.handlers[h.Dimension()] = h }
}

// WithGeneratorSeed makes procedural content a pure function of seed and zone key.
func WithGeneratorSeed(seed int64) GeneratorOption {
	return func(g *ZoneGenerator) {
		g.seed = seed
		g.seeded = true
	}
}

func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *ZoneGenerator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// ZoneGenerator resolves zones through an override stage followed by a
// procedural stage.
type ZoneGenerator struct {
	boards    BoardSource
	handlers  map[models.Dimension]generation.Handler
	resolvers []ZoneResolver
	seed      int64
	seeded    bool
	rng       *rand.Rand
	logger    *slog.Logger
	now       func() time.Time
}

// NewZoneGenerator creates a generator with the built-in handlers
func NewZoneGenerator(opts ...GeneratorOption) *ZoneGenerator {
	g := &ZoneGenerator{
		handlers: generation.Handlers(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if !g.seeded {
		g.rng = rand.New(rand.NewSource(newSessionSeed()))
	}
	g.resolvers = []ZoneResolver{
		&OverrideResolver{Boards: g.boards, Logger: g.logger},
		&ProceduralResolver{Handlers: g.handlers},
	}
	return g
}

// Resolvers returns the pipeline stages in order.
func (g *ZoneGenerator) Resolvers() []ZoneResolver {
	return g.resolvers
}

// GenerateZone returns the zone for the request, generating and caching it
// on first use. A cached zone is returned as is.
func (g *ZoneGenerator) GenerateZone(req ZoneRequest) (*models.ZoneData, error) {
	key := models.ZoneKey{X: req.X, Y: req.Y, Dimension: req.Dimension}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if req.Cache != nil {
		if zone, ok := req.Cache.Get(key); ok {
			return zone, nil
		}
	}

	rr := &ResolveRequest{
		Key:         key,
		Level:       models.ZoneLevel(key.X, key.Y),
		Connections: connectionsFor(req),
		Assets:      req.Assets,
		Narrative:   req.Narrative,
		Rand:        g.randFor(key),
	}
	if rr.Assets == nil {
		rr.Assets = models.DefaultAssetPool()
	}
	if rr.Narrative == nil {
		rr.Narrative = models.NewNarrativeState()
	}

	var zone *models.ZoneData
	for _, r := range g.resolvers {
		z, err := r.Resolve(rr)
		if err != nil {
			return nil, err
		}
		if z != nil {
			g.logger.Debug("zone resolved", "zone", key.String(), "stage", r.Name())
			zone = z
			break
		}
	}
	if zone == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoResolver, key)
	}
	zone.GeneratedAt = g.now()

	if req.Cache != nil {
		req.Cache.Put(key, zone)
	}
	return zone, nil
}

func (g *ZoneGenerator) randFor(key models.ZoneKey) *rand.Rand {
	if g.seeded {
		return derivedRand(g.seed, key.X, key.Y, int(key.Dimension))
	}
	return g.rng
}

// connectionsFor looks up the record for the request and guarantees at least
// one exit.
func connectionsFor(req ZoneRequest) models.ConnectionRecord {
	if req.Connections == nil {
		rec := models.EmptyConnections()
		d := towardOrigin(req.X, req.Y, rand.New(rand.NewSource(int64(req.X)*31+int64(req.Y))))
		lo, hi := d.OpeningRange()
		rec.Set(d, (lo+hi)/2)
		return rec
	}
	rec, _ := req.Connections.GetConnections(req.X, req.Y)
	req.Connections.EnsureMinimumConnectivity(req.X, req.Y, &rec)
	return rec
}
