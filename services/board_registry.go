package services

import (
	"sync"

	"terminus-realm/zoneserver/models"
)

// BoardRegistry holds authored boards that have finished loading. It is the
// synchronous BoardSource handed to the zone generator.
type BoardRegistry struct {
	boards map[models.ZoneKey]*models.Board
	mutex  sync.RWMutex
}

func NewBoardRegistry() *BoardRegistry {
	return &BoardRegistry{boards: make(map[models.ZoneKey]*models.Board)}
}

// Register stores a board under its key, replacing any earlier one. Boards
// are not validated here; a malformed board is rejected at conversion time.
func (r *BoardRegistry) Register(board *models.Board) {
	if board == nil {
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.boards[board.Key] = board
}

// Load registers every board in the slice.
func (r *BoardRegistry) Load(boards []*models.Board) {
	for _, b := range boards {
		r.Register(b)
	}
}

func (r *BoardRegistry) Remove(key models.ZoneKey) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.boards, key)
}

func (r *BoardRegistry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.boards)
}

func (r *BoardRegistry) HasBoard(key models.ZoneKey) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.boards[key]
	return ok
}

func (r *BoardRegistry) BoardSync(key models.ZoneKey) (*models.Board, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	b, ok := r.boards[key]
	return b, ok
}

func (r *BoardRegistry) ConvertBoardToGrid(board *models.Board) (models.Grid, error) {
	return board.ToGrid()
}

var _ BoardSource = (*BoardRegistry)(nil)
