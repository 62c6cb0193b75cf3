package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"terminus-realm/zoneserver/models"
)

// JSONStore handles data persistence using a local JSON file
type JSONStore struct {
	filePath string
	mutex    sync.RWMutex
	data     *JSONData
}

// JSONData represents the structure of the JSON database. Zones and boards
// are keyed by ZoneKey.String().
type JSONData struct {
	Players map[string]*models.Player   `json:"players"`
	Zones   map[string]*models.ZoneData `json:"zones"`
	Boards  map[string]*models.Board    `json:"boards"`
}

// NewJSONStore creates a new JSON storage manager
func NewJSONStore(filePath string) (*JSONStore, error) {
	store := &JSONStore{
		filePath: filePath,
		data:     newJSONData(),
	}

	// Load existing data if file exists
	if _, err := os.Stat(filePath); err == nil {
		if err := store.loadFromFile(); err != nil {
			return nil, fmt.Errorf("failed to load JSON store: %w", err)
		}
	} else {
		if err := store.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to create JSON store file: %w", err)
		}
	}

	return store, nil
}

func newJSONData() *JSONData {
	return &JSONData{
		Players: make(map[string]*models.Player),
		Zones:   make(map[string]*models.ZoneData),
		Boards:  make(map[string]*models.Board),
	}
}

// LoadBoardsFile reads an authored boards file: a JSON array of boards.
func LoadBoardsFile(path string) ([]*models.Board, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boards file: %w", err)
	}
	var boards []*models.Board
	if err := json.Unmarshal(raw, &boards); err != nil {
		return nil, fmt.Errorf("decode boards file: %w", err)
	}
	return boards, nil
}

func (js *JSONStore) loadFromFile() error {
	js.mutex.Lock()
	defer js.mutex.Unlock()

	file, err := os.ReadFile(js.filePath)
	if err != nil {
		return err
	}

	data := newJSONData()
	if err := json.Unmarshal(file, data); err != nil {
		return err
	}
	if data.Players == nil {
		data.Players = make(map[string]*models.Player)
	}
	if data.Zones == nil {
		data.Zones = make(map[string]*models.ZoneData)
	}
	if data.Boards == nil {
		data.Boards = make(map[string]*models.Board)
	}
	js.data = data
	return nil
}

func (js *JSONStore) saveToFile() error {
	js.mutex.RLock()
	data, err := json.MarshalIndent(js.data, "", "  ")
	js.mutex.RUnlock()
	if err != nil {
		return err
	}

	return os.WriteFile(js.filePath, data, 0644)
}

func (js *JSONStore) SavePlayer(player *models.Player) error {
	stored := *player
	js.mutex.Lock()
	js.data.Players[player.ID] = &stored
	js.mutex.Unlock()

	return js.saveToFile()
}

func (js *JSONStore) LoadPlayer(playerID string) (*models.Player, error) {
	js.mutex.RLock()
	defer js.mutex.RUnlock()

	player, exists := js.data.Players[playerID]
	if !exists {
		return nil, fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}

	out := *player
	return &out, nil
}

func (js *JSONStore) LoadPlayerByUsername(username string) (*models.Player, error) {
	js.mutex.RLock()
	defer js.mutex.RUnlock()

	for _, player := range js.data.Players {
		if player.Username == username {
			out := *player
			return &out, nil
		}
	}

	return nil, fmt.Errorf("player with username %s: %w", username, ErrNotFound)
}

func (js *JSONStore) SaveZone(zone *models.ZoneData) error {
	js.mutex.Lock()
	js.data.Zones[zone.Key.String()] = zone.Clone()
	js.mutex.Unlock()

	return js.saveToFile()
}

func (js *JSONStore) LoadZone(key models.ZoneKey) (*models.ZoneData, error) {
	js.mutex.RLock()
	defer js.mutex.RUnlock()

	zone, exists := js.data.Zones[key.String()]
	if !exists {
		return nil, fmt.Errorf("zone %s: %w", key, ErrNotFound)
	}
	return zone.Clone(), nil
}

func (js *JSONStore) SaveBoard(board *models.Board) error {
	js.mutex.Lock()
	js.data.Boards[board.Key.String()] = board
	js.mutex.Unlock()

	return js.saveToFile()
}

// LoadBoards returns every stored board ordered by key.
func (js *JSONStore) LoadBoards() ([]*models.Board, error) {
	js.mutex.RLock()
	defer js.mutex.RUnlock()

	keys := make([]string, 0, len(js.data.Boards))
	for k := range js.data.Boards {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	boards := make([]*models.Board, 0, len(keys))
	for _, k := range keys {
		boards = append(boards, js.data.Boards[k])
	}
	return boards, nil
}

// Close closes the store (no-op for JSON store)
func (js *JSONStore) Close() error {
	return nil
}

var _ Storage = (*JSONStore)(nil)
