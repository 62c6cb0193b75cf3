package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"terminus-realm/zoneserver/models"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresStore handles database operations using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL storage manager
func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}

	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (dm *PostgresStore) initSchema() error {
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
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS zones (
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		dimension TEXT NOT NULL,
		level INTEGER NOT NULL,
		from_override BOOLEAN NOT NULL,
		payload JSONB NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (x, y, dimension)
	);

	CREATE TABLE IF NOT EXISTS boards (
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		dimension TEXT NOT NULL,
		name TEXT NOT NULL,
		payload JSONB NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (x, y, dimension)
	);
	`

	_, err := dm.db.Exec(schema)
	return err
}

func (dm *PostgresStore) SavePlayer(player *models.Player) error {
	query := `
	INSERT INTO players (id, username, zone_x, zone_y, dimension, x, y, icon, hp, max_hp, level, experience)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id)
	DO UPDATE SET
		zone_x = $3, zone_y = $4, dimension = $5, x = $6, y = $7,
		hp = $9, max_hp = $10, level = $11, experience = $12,
		updated_at = NOW()
	`

	_, err := dm.db.Exec(query,
		player.ID, player.Username, player.Zone.X, player.Zone.Y, player.Zone.Dimension.String(),
		player.X, player.Y, player.Icon, player.HP, player.MaxHP,
		player.Level, player.Experience)
	if err != nil {
		return fmt.Errorf("failed to save player: %w", err)
	}

	return nil
}

const playerColumns = `id, username, zone_x, zone_y, dimension, x, y, icon, hp, max_hp, level, experience, created_at, updated_at`

func (dm *PostgresStore) LoadPlayer(playerID string) (*models.Player, error) {
	return scanPlayer(dm.db.QueryRow(`SELECT `+playerColumns+` FROM players WHERE id = $1`, playerID), playerID)
}

func (dm *PostgresStore) LoadPlayerByUsername(username string) (*models.Player, error) {
	return scanPlayer(dm.db.QueryRow(`SELECT `+playerColumns+` FROM players WHERE username = $1`, username), username)
}

// scanPlayer reads one players row; both SQL stores share the column order.
func scanPlayer(row *sql.Row, lookup string) (*models.Player, error) {
	var player models.Player
	var dimension string

	err := row.Scan(
		&player.ID, &player.Username, &player.Zone.X, &player.Zone.Y, &dimension,
		&player.X, &player.Y, &player.Icon, &player.HP, &player.MaxHP,
		&player.Level, &player.Experience, &player.CreatedAt, &player.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("player %s: %w", lookup, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load player: %w", err)
	}

	player.Zone.Dimension, err = models.ParseDimension(dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to load player: %w", err)
	}
	return &player, nil
}

func (dm *PostgresStore) SaveZone(zone *models.ZoneData) error {
	payload, err := json.Marshal(zone)
	if err != nil {
		return fmt.Errorf("failed to marshal zone: %w", err)
	}

	query := `
	INSERT INTO zones (x, y, dimension, level, from_override, payload)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (x, y, dimension)
	DO UPDATE SET
		level = $4, from_override = $5, payload = $6,
		updated_at = NOW()
	`

	_, err = dm.db.Exec(query,
		zone.Key.X, zone.Key.Y, zone.Key.Dimension.String(),
		zone.Level, zone.FromOverride, string(payload))
	if err != nil {
		return fmt.Errorf("failed to save zone: %w", err)
	}
	return nil
}

func (dm *PostgresStore) LoadZone(key models.ZoneKey) (*models.ZoneData, error) {
	var payload string
	err := dm.db.QueryRow(`SELECT payload FROM zones WHERE x = $1 AND y = $2 AND dimension = $3`,
		key.X, key.Y, key.Dimension.String()).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("zone %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load zone: %w", err)
	}
	return decodeZone(payload)
}

func (dm *PostgresStore) SaveBoard(board *models.Board) error {
	payload, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("failed to marshal board: %w", err)
	}

	query := `
	INSERT INTO boards (x, y, dimension, name, payload)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (x, y, dimension)
	DO UPDATE SET
		name = $4, payload = $5,
		updated_at = NOW()
	`

	_, err = dm.db.Exec(query,
		board.Key.X, board.Key.Y, board.Key.Dimension.String(), board.Name, string(payload))
	if err != nil {
		return fmt.Errorf("failed to save board: %w", err)
	}
	return nil
}

func (dm *PostgresStore) LoadBoards() ([]*models.Board, error) {
	rows, err := dm.db.Query(`SELECT payload FROM boards ORDER BY x, y, dimension`)
	if err != nil {
		return nil, fmt.Errorf("failed to load boards: %w", err)
	}
	defer rows.Close()
	return decodeBoards(rows)
}

// Close closes the database connection
func (dm *PostgresStore) Close() error {
	log.Println("Closing database connection...")
	return dm.db.Close()
}

func decodeZone(payload string) (*models.ZoneData, error) {
	var zone models.ZoneData
	if err := json.Unmarshal([]byte(payload), &zone); err != nil {
		return nil, fmt.Errorf("failed to unmarshal zone: %w", err)
	}
	return &zone, nil
}

func decodeBoards(rows *sql.Rows) ([]*models.Board, error) {
	var boards []*models.Board
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan board: %w", err)
		}
		var board models.Board
		if err := json.Unmarshal([]byte(payload), &board); err != nil {
			return nil, fmt.Errorf("failed to unmarshal board: %w", err)
		}
		boards = append(boards, &board)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load boards: %w", err)
	}
	return boards, nil
}

var _ Storage = (*PostgresStore)(nil)
