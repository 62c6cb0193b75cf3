package persistence

import (
	"errors"

	"terminus-realm/zoneserver/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines the interface for data persistence. The zone core never
// persists anything itself; the session coordinator decides what to save.
type Storage interface {
	SavePlayer(player *models.Player) error
	LoadPlayer(playerID string) (*models.Player, error)
	LoadPlayerByUsername(username string) (*models.Player, error)
	SaveZone(zone *models.ZoneData) error
	LoadZone(key models.ZoneKey) (*models.ZoneData, error)
	SaveBoard(board *models.Board) error
	LoadBoards() ([]*models.Board, error)
	Close() error
}
