package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"terminus-realm/zoneserver/models"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists players, zones and boards in a single SQLite file.
// Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path, creating the schema if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := path + "?_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		zone_x INTEGER NOT NULL,
		zone_y INTEGER NOT NULL,
		dimension TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		icon TEXT NOT NULL,
		hp INTEGER NOT NULL,
		max_hp INTEGER NOT NULL,
		level INTEGER NOT NULL,
		experience INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS zones (
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		dimension TEXT NOT NULL,
		level INTEGER NOT NULL,
		from_override INTEGER NOT NULL,
		payload TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (x, y, dimension)
	);

	CREATE TABLE IF NOT EXISTS boards (
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		dimension TEXT NOT NULL,
		name TEXT NOT NULL,
		payload TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (x, y, dimension)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) SavePlayer(player *models.Player) error {
	if player == nil {
		return fmt.Errorf("player is required")
	}
	now := time.Now().UTC()
	created := player.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err := s.db.Exec(`
	INSERT INTO players (id, username, zone_x, zone_y, dimension, x, y, icon, hp, max_hp, level, experience, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		zone_x = excluded.zone_x, zone_y = excluded.zone_y, dimension = excluded.dimension,
		x = excluded.x, y = excluded.y, hp = excluded.hp, max_hp = excluded.max_hp,
		level = excluded.level, experience = excluded.experience,
		updated_at = excluded.updated_at
	`,
		player.ID, player.Username, player.Zone.X, player.Zone.Y, player.Zone.Dimension.String(),
		player.X, player.Y, player.Icon, player.HP, player.MaxHP,
		player.Level, player.Experience, toMillis(created), toMillis(now))
	if err != nil {
		return fmt.Errorf("save player: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadPlayer(playerID string) (*models.Player, error) {
	return s.scanPlayer(s.db.QueryRow(`SELECT `+playerColumns+` FROM players WHERE id = ?`, playerID), playerID)
}

func (s *SQLiteStore) LoadPlayerByUsername(username string) (*models.Player, error) {
	return s.scanPlayer(s.db.QueryRow(`SELECT `+playerColumns+` FROM players WHERE username = ?`, username), username)
}

func (s *SQLiteStore) scanPlayer(row *sql.Row, lookup string) (*models.Player, error) {
	var player models.Player
	var dimension string
	var created, updated int64

	err := row.Scan(
		&player.ID, &player.Username, &player.Zone.X, &player.Zone.Y, &dimension,
		&player.X, &player.Y, &player.Icon, &player.HP, &player.MaxHP,
		&player.Level, &player.Experience, &created, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("player %s: %w", lookup, ErrNotFound)
		}
		return nil, fmt.Errorf("load player: %w", err)
	}

	player.Zone.Dimension, err = models.ParseDimension(dimension)
	if err != nil {
		return nil, fmt.Errorf("load player: %w", err)
	}
	player.CreatedAt = fromMillis(created)
	player.UpdatedAt = fromMillis(updated)
	return &player, nil
}

func (s *SQLiteStore) SaveZone(zone *models.ZoneData) error {
	if zone == nil {
		return fmt.Errorf("zone is required")
	}
	payload, err := json.Marshal(zone)
	if err != nil {
		return fmt.Errorf("marshal zone: %w", err)
	}

	_, err = s.db.Exec(`
	INSERT INTO zones (x, y, dimension, level, from_override, payload, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (x, y, dimension) DO UPDATE SET
		level = excluded.level, from_override = excluded.from_override,
		payload = excluded.payload, updated_at = excluded.updated_at
	`,
		zone.Key.X, zone.Key.Y, zone.Key.Dimension.String(),
		zone.Level, boolToInt(zone.FromOverride), string(payload), toMillis(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("save zone: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadZone(key models.ZoneKey) (*models.ZoneData, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM zones WHERE x = ? AND y = ? AND dimension = ?`,
		key.X, key.Y, key.Dimension.String()).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("zone %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("load zone: %w", err)
	}
	return decodeZone(payload)
}

func (s *SQLiteStore) SaveBoard(board *models.Board) error {
	if board == nil {
		return fmt.Errorf("board is required")
	}
	payload, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("marshal board: %w", err)
	}

	_, err = s.db.Exec(`
	INSERT INTO boards (x, y, dimension, name, payload, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (x, y, dimension) DO UPDATE SET
		name = excluded.name, payload = excluded.payload, updated_at = excluded.updated_at
	`,
		board.Key.X, board.Key.Y, board.Key.Dimension.String(), board.Name, string(payload),
		toMillis(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("save board: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadBoards() ([]*models.Board, error) {
	rows, err := s.db.Query(`SELECT payload FROM boards ORDER BY x, y, dimension`)
	if err != nil {
		return nil, fmt.Errorf("load boards: %w", err)
	}
	defer rows.Close()
	return decodeBoards(rows)
}

// Close closes the underlying SQLite database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Storage = (*SQLiteStore)(nil)
