package persistence

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"terminus-realm/zoneserver/models"
)

func samplePlayer() *models.Player {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.Player{
		ID:        "p-1",
		Username:  "ada",
		Zone:      models.ZoneKey{X: 2, Y: -3, Dimension: models.Underground},
		X:         7,
		Y:         9,
		Icon:      "@",
		HP:        80,
		MaxHP:     100,
		Level:     3,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func sampleZone() *models.ZoneData {
	grid := models.NewGrid(models.ZoneWidth, models.ZoneHeight, models.TileGrass)
	grid[0][5] = models.TileExit
	grid[12][20] = models.TilePath
	return &models.ZoneData{
		Key:   models.ZoneKey{X: -4, Y: 1, Dimension: models.Surface},
		Level: 5,
		Grid:  grid,
		Structures: []models.Structure{
			{Kind: "ruin", X: 4, Y: 4, Width: 5, Height: 4},
		},
		Enemies: []models.EnemyPlacement{
			{ID: "e1", Name: "Rat", Char: "r", X: 10, Y: 10, HP: 5, Attack: 1, Defense: 0, Level: 5},
		},
		Items: []models.ItemPlacement{
			{ID: "i1", Name: "Torn Note", Char: "?", X: 11, Y: 11, Message: "The well runs deep."},
		},
		Connections: models.ConnectionRecord{North: 5, South: models.NoOpening, East: models.NoOpening, West: 10},
		GeneratedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func sampleBoard(x int) *models.Board {
	rows := make([]string, models.ZoneHeight)
	for y := range rows {
		rows[y] = strings.Repeat(".", models.ZoneWidth)
	}
	return &models.Board{
		Key:  models.ZoneKey{X: x, Y: 0, Dimension: models.Interior},
		Name: "hall",
		Rows: rows,
	}
}

// exerciseStorage runs the same round trips against any Storage.
func exerciseStorage(t *testing.T, store Storage) {
	t.Helper()
	ignoreTimes := cmpopts.IgnoreFields(models.Player{}, "CreatedAt", "UpdatedAt")

	if _, err := store.LoadPlayer("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadPlayer missing: expected ErrNotFound, got %v", err)
	}
	if _, err := store.LoadPlayerByUsername("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadPlayerByUsername missing: expected ErrNotFound, got %v", err)
	}
	if _, err := store.LoadZone(models.ZoneKey{X: 99, Dimension: models.Surface}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadZone missing: expected ErrNotFound, got %v", err)
	}

	player := samplePlayer()
	if err := store.SavePlayer(player); err != nil {
		t.Fatalf("SavePlayer: %v", err)
	}
	player.X = 8
	if err := store.SavePlayer(player); err != nil {
		t.Fatalf("SavePlayer update: %v", err)
	}
	got, err := store.LoadPlayerByUsername("ada")
	if err != nil {
		t.Fatalf("LoadPlayerByUsername: %v", err)
	}
	if diff := cmp.Diff(player, got, ignoreTimes); diff != "" {
		t.Fatalf("player mismatch (-want +got):\n%s", diff)
	}
	byID, err := store.LoadPlayer(player.ID)
	if err != nil {
		t.Fatalf("LoadPlayer: %v", err)
	}
	if byID.Username != "ada" {
		t.Fatalf("username = %q", byID.Username)
	}

	zone := sampleZone()
	if err := store.SaveZone(zone); err != nil {
		t.Fatalf("SaveZone: %v", err)
	}
	zone.Grid[3][3] = models.TileWater
	if err := store.SaveZone(zone); err != nil {
		t.Fatalf("SaveZone update: %v", err)
	}
	loaded, err := store.LoadZone(zone.Key)
	if err != nil {
		t.Fatalf("LoadZone: %v", err)
	}
	if diff := cmp.Diff(zone, loaded); diff != "" {
		t.Fatalf("zone mismatch (-want +got):\n%s", diff)
	}

	for _, x := range []int{3, 1} {
		if err := store.SaveBoard(sampleBoard(x)); err != nil {
			t.Fatalf("SaveBoard: %v", err)
		}
	}
	boards, err := store.LoadBoards()
	if err != nil {
		t.Fatalf("LoadBoards: %v", err)
	}
	if len(boards) != 2 {
		t.Fatalf("boards = %d, want 2", len(boards))
	}
	if diff := cmp.Diff(sampleBoard(1), boards[0], cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("first board mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	exerciseStorage(t, store)

	reopened, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := reopened.LoadZone(sampleZone().Key); err != nil {
		t.Fatalf("zone lost after reopen: %v", err)
	}
	if _, err := reopened.LoadPlayerByUsername("ada"); err != nil {
		t.Fatalf("player lost after reopen: %v", err)
	}
}

func TestJSONStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewJSONStore(path); err == nil {
		t.Fatal("expected an error for a corrupt store file")
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "world.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	exerciseStorage(t, store)

	got, err := store.LoadPlayer("p-1")
	if err != nil {
		t.Fatalf("LoadPlayer: %v", err)
	}
	if !got.CreatedAt.Equal(samplePlayer().CreatedAt) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, samplePlayer().CreatedAt)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore("  "); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}

func TestLoadBoardsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boards.json")
	raw, err := json.Marshal([]*models.Board{sampleBoard(0), sampleBoard(2)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	boards, err := LoadBoardsFile(path)
	if err != nil {
		t.Fatalf("LoadBoardsFile: %v", err)
	}
	if len(boards) != 2 || boards[1].Key.X != 2 {
		t.Fatalf("unexpected boards: %+v", boards)
	}
	if boards[0].Key.Dimension != models.Interior {
		t.Fatalf("dimension = %s, want interior", boards[0].Key.Dimension)
	}

	if _, err := LoadBoardsFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
