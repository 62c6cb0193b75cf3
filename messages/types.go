package messages

import (
	"encoding/json"

	"terminus-realm/zoneserver/gridcache"
	"terminus-realm/zoneserver/models"
)

// MessageType defines the type of message being sent
type MessageType string

const (
	// client to server
	MessageTypeLogin      MessageType = "login"
	MessageTypeEnterZone  MessageType = "enter_zone"
	MessageTypeMove       MessageType = "move"
	MessageTypeGetTile    MessageType = "get_tile"
	MessageTypeSetTile    MessageType = "set_tile"
	MessageTypeCacheStats MessageType = "cache_stats"
	MessageTypeReset      MessageType = "reset"

	// server to client
	MessageTypeLoginSuccess MessageType = "login_success"
	MessageTypeZone         MessageType = "zone"
	MessageTypeTile         MessageType = "tile"
	MessageTypeStats        MessageType = "stats"
	MessageTypePlayer       MessageType = "player"
	MessageTypeError        MessageType = "error"
)

// ErrorCode is the machine-readable reason carried by an error reply
type ErrorCode string

const (
	ErrorUnknownMessageType ErrorCode = "UNKNOWN_MESSAGE_TYPE"
	ErrorBadPayload         ErrorCode = "BAD_PAYLOAD"
	ErrorNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"
	ErrorAlreadyLoggedIn    ErrorCode = "ALREADY_LOGGED_IN"
	ErrorLoginFailed        ErrorCode = "LOGIN_FAILED"
	ErrorInvalidDirection   ErrorCode = "INVALID_DIRECTION"
	ErrorMoveBlocked        ErrorCode = "MOVE_BLOCKED"
	ErrorOutOfRange         ErrorCode = "OUT_OF_RANGE"
	ErrorUnknownDimension   ErrorCode = "UNKNOWN_DIMENSION"
	ErrorInvalidTile        ErrorCode = "INVALID_TILE"
	ErrorInternal           ErrorCode = "INTERNAL"
)

// BaseMessage is the base structure for all outgoing messages
type BaseMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// Envelope is an incoming message whose payload is decoded once its type is known
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// LoginMessage represents a login request
type LoginMessage struct {
	Username string `json:"username"`
}

// LoginSuccessMessage represents a successful login response
type LoginSuccessMessage struct {
	PlayerID string        `json:"player_id"`
	Player   models.Player `json:"player"`
	Message  string        `json:"message"`
}

// EnterZoneMessage moves the player to the spawn point of a zone
type EnterZoneMessage struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Dimension string `json:"dimension"`
}

// MoveMessage represents a player movement request
type MoveMessage struct {
	Direction string `json:"direction"` // north, south, east, west, northeast, northwest, southeast, southwest
}

// GetTileMessage reads a tile of the player's current zone
type GetTileMessage struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// SetTileMessage writes a tile of the player's current zone
type SetTileMessage struct {
	X    int `json:"x"`
	Y    int `json:"y"`
	Tile int `json:"tile"`
}

// ZoneMessage carries a full zone after login, entry or a border crossing
type ZoneMessage struct {
	Zone    *models.ZoneData `json:"zone"`
	Player  models.Player    `json:"player"`
	Players []models.Player  `json:"players"`
}

// TileMessage reports one tile; it is also broadcast when a tile changes
type TileMessage struct {
	Zone models.ZoneKey `json:"zone"`
	X    int            `json:"x"`
	Y    int            `json:"y"`
	Tile int            `json:"tile"`
}

// PlayerMessage tells clients in a zone that a player moved, arrived or left
type PlayerMessage struct {
	Player models.Player `json:"player"`
	Left   bool          `json:"left,omitempty"`
}

// StatsMessage reports grid cache and session statistics
type StatsMessage struct {
	Zone    models.ZoneKey  `json:"zone"`
	Cache   gridcache.Stats `json:"cache"`
	Cached  bool            `json:"cached"`
	Session interface{}     `json:"session"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// NewError builds an error reply
func NewError(code ErrorCode, message string) BaseMessage {
	return BaseMessage{
		Type:    MessageTypeError,
		Payload: ErrorMessage{Code: code, Message: message},
	}
}
