package services

import (
	"context"
	"errors"
	"testing"

	"terminus-realm/zoneserver/models"
	"terminus-realm/zoneserver/persistence"
)

func newPlayerService(t *testing.T, db persistence.Storage, opts ...ZoneServiceOption) *PlayerService {
	t.Helper()
	return NewPlayerService(mustZoneService(t, opts...), db, nil)
}

// place puts a player on an arbitrary tile, bypassing movement rules.
func place(ps *PlayerService, id string, key models.ZoneKey, x, y int) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	p := ps.players[id]
	p.Zone = key
	p.X, p.Y = x, y
}

func TestGetOrCreatePlayerStartsAtHome(t *testing.T) {
	ctx := context.Background()
	ps := newPlayerService(t, nil)

	player, err := ps.GetOrCreatePlayer(ctx, "ada")
	if err != nil {
		t.Fatalf("GetOrCreatePlayer: %v", err)
	}
	if player.Zone != HomeZone {
		t.Fatalf("zone = %s, want %s", player.Zone, HomeZone)
	}
	ok, err := ps.zones.IsWalkable(ctx, player.Zone, player.X, player.Y)
	if err != nil || !ok {
		t.Fatalf("spawn (%d,%d) is not walkable: %v", player.X, player.Y, err)
	}

	again, err := ps.GetOrCreatePlayer(ctx, "ada")
	if err != nil {
		t.Fatalf("GetOrCreatePlayer: %v", err)
	}
	if again.ID != player.ID {
		t.Fatalf("second login created a new player: %s != %s", again.ID, player.ID)
	}
	if _, err := ps.GetOrCreatePlayer(ctx, ""); err == nil {
		t.Fatal("expected an error for an empty username")
	}
}

func TestPlayersPersistAcrossSessions(t *testing.T) {
	ctx := context.Background()
	store := newJSONStore(t)

	first := newPlayerService(t, store)
	created, err := first.GetOrCreatePlayer(ctx, "grace")
	if err != nil {
		t.Fatalf("GetOrCreatePlayer: %v", err)
	}
	if err := first.RemovePlayer(created.ID); err != nil {
		t.Fatalf("RemovePlayer: %v", err)
	}
	if _, err := first.GetPlayer(created.ID); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound after removal, got %v", err)
	}

	second := newPlayerService(t, store)
	loaded, err := second.GetOrCreatePlayer(ctx, "grace")
	if err != nil {
		t.Fatalf("GetOrCreatePlayer: %v", err)
	}
	if loaded.ID != created.ID {
		t.Fatalf("loaded id = %s, want %s", loaded.ID, created.ID)
	}
}

func TestMovePlayerRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	ps := newPlayerService(t, nil)
	player, err := ps.GetOrCreatePlayer(ctx, "linus")
	if err != nil {
		t.Fatalf("GetOrCreatePlayer: %v", err)
	}

	if _, err := ps.MovePlayer(ctx, player.ID, "up"); !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("expected ErrInvalidDirection, got %v", err)
	}
	if _, err := ps.MovePlayer(ctx, "nobody", "north"); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestMovePlayerWithinZone(t *testing.T) {
	ctx := context.Background()
	ps := newPlayerService(t, nil)
	player, err := ps.GetOrCreatePlayer(ctx, "ken")
	if err != nil {
		t.Fatalf("GetOrCreatePlayer: %v", err)
	}
	hub := models.Point{X: models.ZoneWidth / 2, Y: models.ZoneHeight / 2}
	place(ps, player.ID, HomeZone, hub.X, hub.Y)

	res, err := ps.MovePlayer(ctx, player.ID, "northeast")
	if err != nil {
		t.Fatalf("MovePlayer: %v", err)
	}
	if res.Changed() {
		t.Fatal("move inside the hub changed zone")
	}
	if res.Player.X != hub.X+1 || res.Player.Y != hub.Y-1 {
		t.Fatalf("position = (%d,%d), want (%d,%d)", res.Player.X, res.Player.Y, hub.X+1, hub.Y-1)
	}
}

func TestMovePlayerBlockedByTerrain(t *testing.T) {
	ctx := context.Background()
	ps := newPlayerService(t, nil)
	player, err := ps.GetOrCreatePlayer(ctx, "barbara")
	if err != nil {
		t.Fatalf("GetOrCreatePlayer: %v", err)
	}
	place(ps, player.ID, HomeZone, 1, 1)

	if _, err := ps.MovePlayer(ctx, player.ID, "northwest"); !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked at the zone corner, got %v", err)
	}
	got, _ := ps.GetPlayer(player.ID)
	if got.X != 1 || got.Y != 1 {
		t.Fatalf("blocked move changed position to (%d,%d)", got.X, got.Y)
	}
}

func TestMovePlayerCrossesOpening(t *testing.T) {
	ctx := context.Background()
	ps := newPlayerService(t, nil, WithCurve(constantCurve(1)), WithWorldSeed(4))
	player, err := ps.GetOrCreatePlayer(ctx, "edsger")
	if err != nil {
		t.Fatalf("GetOrCreatePlayer: %v", err)
	}

	home, err := ps.zones.EnterZone(ctx, HomeZone)
	if err != nil {
		t.Fatalf("EnterZone: %v", err)
	}
	pos := home.Connections.East
	if pos == models.NoOpening {
		t.Fatal("expected an east opening with a certain curve")
	}
	exit := models.East.BorderCell(pos)
	place(ps, player.ID, HomeZone, exit.X, exit.Y)

	res, err := ps.MovePlayer(ctx, player.ID, "east")
	if err != nil {
		t.Fatalf("MovePlayer: %v", err)
	}
	if !res.Changed() {
		t.Fatal("expected a zone change")
	}
	want := models.ZoneKey{X: 1, Y: 0, Dimension: models.Surface}
	if res.Player.Zone != want || res.Zone.Key != want {
		t.Fatalf("zone = %s, want %s", res.Player.Zone, want)
	}
	if res.Player.X != 0 || res.Player.Y != pos {
		t.Fatalf("arrived at (%d,%d), want (0,%d)", res.Player.X, res.Player.Y, pos)
	}
	if res.From != HomeZone {
		t.Fatalf("from = %s, want %s", res.From, HomeZone)
	}
}

func TestMovePlayerCannotLeaveAwayFromOpening(t *testing.T) {
	ctx := context.Background()
	ps := newPlayerService(t, nil, WithCurve(constantCurve(1)), WithWorldSeed(4))
	player, err := ps.GetOrCreatePlayer(ctx, "tony")
	if err != nil {
		t.Fatalf("GetOrCreatePlayer: %v", err)
	}
	home, err := ps.zones.EnterZone(ctx, HomeZone)
	if err != nil {
		t.Fatalf("EnterZone: %v", err)
	}

	y := 1
	if home.Connections.East == y {
		y = 0
	}
	place(ps, player.ID, HomeZone, models.ZoneWidth-1, y)
	if _, err := ps.MovePlayer(ctx, player.ID, "east"); !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked away from the opening, got %v", err)
	}

	exit := models.East.BorderCell(home.Connections.East)
	place(ps, player.ID, HomeZone, exit.X, exit.Y)
	if _, err := ps.MovePlayer(ctx, player.ID, "northeast"); !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked for a diagonal border crossing, got %v", err)
	}
}

func TestTeleportAndPlayersIn(t *testing.T) {
	ctx := context.Background()
	ps := newPlayerService(t, nil)
	player, err := ps.GetOrCreatePlayer(ctx, "margaret")
	if err != nil {
		t.Fatalf("GetOrCreatePlayer: %v", err)
	}
	target := models.ZoneKey{X: 3, Y: 3, Dimension: models.Underground}

	res, err := ps.Teleport(ctx, player.ID, target)
	if err != nil {
		t.Fatalf("Teleport: %v", err)
	}
	if res.Player.Zone != target {
		t.Fatalf("zone = %s, want %s", res.Player.Zone, target)
	}
	if !models.IsWalkable(res.Zone.GetTileRaw(res.Player.X, res.Player.Y)) {
		t.Fatalf("teleported onto a blocked tile (%d,%d)", res.Player.X, res.Player.Y)
	}
	if n := len(ps.PlayersIn(target)); n != 1 {
		t.Fatalf("players in target = %d, want 1", n)
	}
	if n := len(ps.PlayersIn(HomeZone)); n != 0 {
		t.Fatalf("players at home = %d, want 0", n)
	}
}
