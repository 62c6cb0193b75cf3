package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"terminus-realm/zoneserver/models"
	"terminus-realm/zoneserver/persistence"
)

var (
	ErrPlayerNotFound   = errors.New("player not found")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrBlocked          = errors.New("move blocked")
)

// HomeZone is where new players start.
var HomeZone = models.ZoneKey{X: 0, Y: 0, Dimension: models.Surface}

// moveDeltas maps wire direction names to tile steps.
var moveDeltas = map[string]models.Point{
	"north":     {X: 0, Y: -1},
	"south":     {X: 0, Y: 1},
	"east":      {X: 1, Y: 0},
	"west":      {X: -1, Y: 0},
	"northeast": {X: 1, Y: -1},
	"northwest": {X: -1, Y: -1},
	"southeast": {X: 1, Y: 1},
	"southwest": {X: -1, Y: 1},
}

// MoveResult describes a completed move. Zone is set only when the move
// crossed into another zone.
type MoveResult struct {
	Player models.Player    `json:"player"`
	From   models.ZoneKey   `json:"from"`
	Zone   *models.ZoneData `json:"zone,omitempty"`
}

// Changed reports whether the move crossed a zone border.
func (r MoveResult) Changed() bool {
	return r.Zone != nil
}

// PlayerService manages player-related operations
type PlayerService struct {
	players map[string]*models.Player
	zones   *ZoneService
	db      persistence.Storage
	logger  *slog.Logger
	mutex   sync.RWMutex
}

// NewPlayerService creates a new player service. db may be nil, in which
// case players live only for the session.
func NewPlayerService(zones *ZoneService, db persistence.Storage, logger *slog.Logger) *PlayerService {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &PlayerService{
		players: make(map[string]*models.Player),
		zones:   zones,
		db:      db,
		logger:  logger,
	}
}

// GetOrCreatePlayer gets an existing player or creates a new one at the
// home zone's hub.
func (ps *PlayerService) GetOrCreatePlayer(ctx context.Context, username string) (models.Player, error) {
	if username == "" {
		return models.Player{}, errors.New("username is required")
	}

	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	for _, player := range ps.players {
		if player.Username == username {
			return *player, nil
		}
	}

	player, err := ps.loadPlayer(username)
	if err != nil {
		return models.Player{}, err
	}
	if player == nil {
		spawn, err := ps.spawnPoint(ctx, HomeZone)
		if err != nil {
			return models.Player{}, err
		}
		now := time.Now()
		player = &models.Player{
			ID:        uuid.New().String(),
			Username:  username,
			Zone:      HomeZone,
			X:         spawn.X,
			Y:         spawn.Y,
			Icon:      "@",
			HP:        100,
			MaxHP:     100,
			Level:     1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := ps.save(player); err != nil {
			return models.Player{}, fmt.Errorf("failed to save new player: %w", err)
		}
		ps.logger.Info("player created", "player", player.ID, "username", username)
	} else if _, err := ps.zones.EnterZone(ctx, player.Zone); err != nil {
		return models.Player{}, err
	}

	ps.players[player.ID] = player
	return *player, nil
}

// GetPlayer retrieves a player by ID
func (ps *PlayerService) GetPlayer(playerID string) (models.Player, error) {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	player, exists := ps.players[playerID]
	if !exists {
		return models.Player{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}
	return *player, nil
}

// PlayersIn returns the players currently in a zone.
func (ps *PlayerService) PlayersIn(key models.ZoneKey) []models.Player {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	var out []models.Player
	for _, p := range ps.players {
		if p.Zone == key {
			out = append(out, *p)
		}
	}
	return out
}

// RemovePlayer saves and forgets a player.
func (ps *PlayerService) RemovePlayer(playerID string) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	player, exists := ps.players[playerID]
	if !exists {
		return nil
	}
	delete(ps.players, playerID)
	return ps.save(player)
}

// MovePlayer steps a player one tile. Leaving the zone is only possible
// with a cardinal step through the opening the player stands on.
func (ps *PlayerService) MovePlayer(ctx context.Context, playerID, direction string) (MoveResult, error) {
	delta, ok := moveDeltas[direction]
	if !ok {
		return MoveResult{}, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}

	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	player, exists := ps.players[playerID]
	if !exists {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}

	result := MoveResult{From: player.Zone}
	nx, ny := player.X+delta.X, player.Y+delta.Y

	if nx >= 0 && nx < models.ZoneWidth && ny >= 0 && ny < models.ZoneHeight {
		ok, err := ps.zones.IsWalkable(ctx, player.Zone, nx, ny)
		if err != nil {
			return MoveResult{}, err
		}
		if !ok {
			return MoveResult{}, fmt.Errorf("%w: (%d,%d) in %s", ErrBlocked, nx, ny, player.Zone)
		}
		player.X, player.Y = nx, ny
	} else {
		zone, err := ps.crossBorder(ctx, player, delta)
		if err != nil {
			return MoveResult{}, err
		}
		result.Zone = zone
	}

	player.UpdatedAt = time.Now()
	result.Player = *player
	return result, nil
}

// Teleport moves a player to the spawn point of another zone.
func (ps *PlayerService) Teleport(ctx context.Context, playerID string, key models.ZoneKey) (MoveResult, error) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	player, exists := ps.players[playerID]
	if !exists {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}

	zone, err := ps.zones.EnterZone(ctx, key)
	if err != nil {
		return MoveResult{}, err
	}
	spawn := nearestWalkable(zone.Grid, models.Point{X: models.ZoneWidth / 2, Y: models.ZoneHeight / 2})

	result := MoveResult{From: player.Zone, Zone: zone}
	player.Zone = key
	player.X, player.Y = spawn.X, spawn.Y
	player.UpdatedAt = time.Now()
	result.Player = *player
	return result, nil
}

// crossBorder moves the player into the neighbouring zone. The caller holds
// the mutex.
func (ps *PlayerService) crossBorder(ctx context.Context, player *models.Player, delta models.Point) (*models.ZoneData, error) {
	d, ok := directionOf(delta)
	if !ok {
		return nil, fmt.Errorf("%w: diagonal step across a zone border", ErrBlocked)
	}

	current, err := ps.zones.EnterZone(ctx, player.Zone)
	if err != nil {
		return nil, err
	}
	pos := current.Connections.Get(d)
	if pos == models.NoOpening || d.BorderCell(pos) != (models.Point{X: player.X, Y: player.Y}) {
		return nil, fmt.Errorf("%w: no opening to the %s", ErrBlocked, d)
	}

	dx, dy := d.Delta()
	next := models.ZoneKey{X: player.Zone.X + dx, Y: player.Zone.Y + dy, Dimension: player.Zone.Dimension}
	zone, err := ps.zones.EnterZone(ctx, next)
	if err != nil {
		return nil, err
	}

	arrival := d.Opposite().BorderCell(pos)
	if zone.Connections.Get(d.Opposite()) != pos || !models.IsWalkable(zone.GetTileRaw(arrival.X, arrival.Y)) {
		ps.logger.Warn("arrival opening mismatch, using hub", "zone", next.String(), "side", d.Opposite().String())
		arrival = nearestWalkable(zone.Grid, models.Point{X: models.ZoneWidth / 2, Y: models.ZoneHeight / 2})
	}

	ps.logger.Debug("player crossed border", "player", player.ID, "from", player.Zone.String(), "to", next.String())
	player.Zone = next
	player.X, player.Y = arrival.X, arrival.Y
	return zone, nil
}

func (ps *PlayerService) spawnPoint(ctx context.Context, key models.ZoneKey) (models.Point, error) {
	zone, err := ps.zones.EnterZone(ctx, key)
	if err != nil {
		return models.Point{}, err
	}
	return nearestWalkable(zone.Grid, models.Point{X: models.ZoneWidth / 2, Y: models.ZoneHeight / 2}), nil
}

// loadPlayer returns nil without error when the player is unknown.
func (ps *PlayerService) loadPlayer(username string) (*models.Player, error) {
	if ps.db == nil {
		return nil, nil
	}
	player, err := ps.db.LoadPlayerByUsername(username)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load player: %w", err)
	}
	loaded := *player
	return &loaded, nil
}

func (ps *PlayerService) save(player *models.Player) error {
	if ps.db == nil {
		return nil
	}
	return ps.db.SavePlayer(player)
}

func directionOf(delta models.Point) (models.Direction, bool) {
	switch delta {
	case models.Point{X: 0, Y: -1}:
		return models.North, true
	case models.Point{X: 0, Y: 1}:
		return models.South, true
	case models.Point{X: 1, Y: 0}:
		return models.East, true
	case models.Point{X: -1, Y: 0}:
		return models.West, true
	}
	return 0, false
}

// nearestWalkable scans outward ring by ring from p. Returns p if the grid
// has no walkable tile.
func nearestWalkable(grid models.Grid, p models.Point) models.Point {
	maxR := models.ZoneWidth
	if models.ZoneHeight > maxR {
		maxR = models.ZoneHeight
	}
	for r := 0; r <= maxR; r++ {
		for y := p.Y - r; y <= p.Y+r; y++ {
			for x := p.X - r; x <= p.X+r; x++ {
				if abs(x-p.X) != r && abs(y-p.Y) != r {
					continue
				}
				if grid.InBounds(x, y) && models.IsWalkable(grid[y][x]) {
					return models.Point{X: x, Y: y}
				}
			}
		}
	}
	return p
}
