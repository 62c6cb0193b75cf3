package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/gorilla/websocket"

	"terminus-realm/zoneserver/messages"
	"terminus-realm/zoneserver/models"
	"terminus-realm/zoneserver/network"
	"terminus-realm/zoneserver/services"
)

// Server bundles the services every client handler needs
type Server struct {
	Players *services.PlayerService
	Zones   *services.ZoneService
	Clients *ClientManager
	Logger  *slog.Logger
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}

// ClientHandler manages a single client connection
type ClientHandler struct {
	ctx      context.Context
	conn     *network.Connection
	server   *Server
	logger   *slog.Logger
	playerID string
}

// HandleClientConnection serves one websocket client until it disconnects
func HandleClientConnection(ctx context.Context, wsConn *websocket.Conn, server *Server) {
	logger := server.logger()
	conn := network.NewConnection(wsConn, logger)
	handler := &ClientHandler{
		ctx:    ctx,
		conn:   conn,
		server: server,
		logger: logger.With("remote", wsConn.RemoteAddr().String()),
	}
	handler.logger.Info("client connected")

	go conn.WritePump()
	conn.ReadPump(handler)

	if handler.playerID == "" {
		return
	}
	player, err := server.Players.GetPlayer(handler.playerID)
	server.Clients.RemoveClient(handler.playerID)
	if err := server.Players.RemovePlayer(handler.playerID); err != nil {
		handler.logger.Warn("failed to save player on disconnect", "player", handler.playerID, "error", err)
	}
	if err == nil {
		server.Clients.BroadcastToZone(player.Zone, handler.playerID, messages.BaseMessage{
			Type:    messages.MessageTypePlayer,
			Payload: messages.PlayerMessage{Player: player, Left: true},
		})
		handler.logger.Info("player disconnected", "player", player.ID, "username", player.Username)
	}
}

// HandleMessage handles incoming messages from the client
func (h *ClientHandler) HandleMessage(conn *network.Connection, message []byte) {
	var env messages.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		h.sendError(messages.ErrorBadPayload, "message is not valid JSON")
		return
	}
	h.logger.Debug("message received", "type", env.Type)

	if env.Type != messages.MessageTypeLogin && h.playerID == "" {
		h.sendError(messages.ErrorNotAuthenticated, "log in first")
		return
	}

	switch env.Type {
	case messages.MessageTypeLogin:
		h.handleLogin(env.Payload)
	case messages.MessageTypeEnterZone:
		h.handleEnterZone(env.Payload)
	case messages.MessageTypeMove:
		h.handleMove(env.Payload)
	case messages.MessageTypeGetTile:
		h.handleGetTile(env.Payload)
	case messages.MessageTypeSetTile:
		h.handleSetTile(env.Payload)
	case messages.MessageTypeCacheStats:
		h.handleCacheStats()
	case messages.MessageTypeReset:
		h.handleReset()
	default:
		h.sendError(messages.ErrorUnknownMessageType, "unknown message type "+string(env.Type))
	}
}

func (h *ClientHandler) handleLogin(payload json.RawMessage) {
	if h.playerID != "" {
		h.sendError(messages.ErrorAlreadyLoggedIn, "already logged in")
		return
	}
	var msg messages.LoginMessage
	if !h.decode(payload, &msg) {
		return
	}

	player, err := h.server.Players.GetOrCreatePlayer(h.ctx, msg.Username)
	if err != nil {
		h.logger.Warn("login failed", "username", msg.Username, "error", err)
		h.sendError(messages.ErrorLoginFailed, err.Error())
		return
	}
	if !h.server.Clients.AddClient(player.ID, h) {
		h.sendError(messages.ErrorAlreadyLoggedIn, "player is connected elsewhere")
		return
	}
	h.playerID = player.ID
	h.logger = h.logger.With("player", player.ID)
	h.logger.Info("player logged in", "username", player.Username)

	h.send(messages.BaseMessage{
		Type: messages.MessageTypeLoginSuccess,
		Payload: messages.LoginSuccessMessage{
			PlayerID: player.ID,
			Player:   player,
			Message:  "Login successful",
		},
	})
	h.sendZone(player)
	h.announce(player)
}

func (h *ClientHandler) handleEnterZone(payload json.RawMessage) {
	var msg messages.EnterZoneMessage
	if !h.decode(payload, &msg) {
		return
	}
	dim, err := models.ParseDimension(msg.Dimension)
	if err != nil {
		h.sendServiceError(err)
		return
	}

	res, err := h.server.Players.Teleport(h.ctx, h.playerID, models.ZoneKey{X: msg.X, Y: msg.Y, Dimension: dim})
	if err != nil {
		h.sendServiceError(err)
		return
	}
	h.afterZoneChange(res)
}

func (h *ClientHandler) handleMove(payload json.RawMessage) {
	var msg messages.MoveMessage
	if !h.decode(payload, &msg) {
		return
	}

	res, err := h.server.Players.MovePlayer(h.ctx, h.playerID, msg.Direction)
	if err != nil {
		h.sendServiceError(err)
		return
	}
	if res.Changed() {
		h.afterZoneChange(res)
		return
	}

	update := messages.BaseMessage{
		Type:    messages.MessageTypePlayer,
		Payload: messages.PlayerMessage{Player: res.Player},
	}
	h.send(update)
	h.server.Clients.BroadcastToZone(res.Player.Zone, h.playerID, update)
}

func (h *ClientHandler) handleGetTile(payload json.RawMessage) {
	var msg messages.GetTileMessage
	if !h.decode(payload, &msg) {
		return
	}
	zone, ok := h.currentZone()
	if !ok {
		return
	}

	tile, err := h.server.Zones.GetTile(h.ctx, zone, msg.X, msg.Y)
	if err != nil {
		h.sendServiceError(err)
		return
	}
	h.send(messages.BaseMessage{
		Type:    messages.MessageTypeTile,
		Payload: messages.TileMessage{Zone: zone, X: msg.X, Y: msg.Y, Tile: tile},
	})
}

func (h *ClientHandler) handleSetTile(payload json.RawMessage) {
	var msg messages.SetTileMessage
	if !h.decode(payload, &msg) {
		return
	}
	zone, ok := h.currentZone()
	if !ok {
		return
	}

	if err := h.server.Zones.SetTile(h.ctx, zone, msg.X, msg.Y, msg.Tile); err != nil {
		h.sendServiceError(err)
		return
	}
	update := messages.BaseMessage{
		Type:    messages.MessageTypeTile,
		Payload: messages.TileMessage{Zone: zone, X: msg.X, Y: msg.Y, Tile: msg.Tile},
	}
	h.send(update)
	h.server.Clients.BroadcastToZone(zone, h.playerID, update)
}

func (h *ClientHandler) handleCacheStats() {
	zone, ok := h.currentZone()
	if !ok {
		return
	}
	stats, cached := h.server.Zones.CacheStats(zone)
	h.send(messages.BaseMessage{
		Type: messages.MessageTypeStats,
		Payload: messages.StatsMessage{
			Zone:    zone,
			Cache:   stats,
			Cached:  cached,
			Session: h.server.Zones.Stats(),
		},
	})
}

// handleReset discards the session's world and moves every connected player
// to the spawn point of their regenerated zone.
func (h *ClientHandler) handleReset() {
	h.logger.Info("session reset requested")
	h.server.Zones.Reset()

	h.server.Clients.ExecuteOnAllClients(func(client *ClientHandler) {
		player, err := h.server.Players.GetPlayer(client.playerID)
		if err != nil {
			return
		}
		res, err := h.server.Players.Teleport(h.ctx, client.playerID, player.Zone)
		if err != nil {
			client.sendServiceError(err)
			return
		}
		client.sendZoneSnapshot(res.Zone, res.Player)
	})
}

// afterZoneChange tells the old zone the player left and the new zone they arrived.
func (h *ClientHandler) afterZoneChange(res services.MoveResult) {
	h.sendZoneSnapshot(res.Zone, res.Player)
	h.server.Clients.BroadcastToZone(res.From, h.playerID, messages.BaseMessage{
		Type:    messages.MessageTypePlayer,
		Payload: messages.PlayerMessage{Player: res.Player, Left: true},
	})
	h.announce(res.Player)
}

func (h *ClientHandler) sendZone(player models.Player) {
	zone, err := h.server.Zones.EnterZone(h.ctx, player.Zone)
	if err != nil {
		h.sendServiceError(err)
		return
	}
	h.sendZoneSnapshot(zone, player)
}

func (h *ClientHandler) sendZoneSnapshot(zone *models.ZoneData, player models.Player) {
	h.send(messages.BaseMessage{
		Type: messages.MessageTypeZone,
		Payload: messages.ZoneMessage{
			Zone:    zone,
			Player:  player,
			Players: h.server.Players.PlayersIn(zone.Key),
		},
	})
}

func (h *ClientHandler) announce(player models.Player) {
	h.server.Clients.BroadcastToZone(player.Zone, h.playerID, messages.BaseMessage{
		Type:    messages.MessageTypePlayer,
		Payload: messages.PlayerMessage{Player: player},
	})
}

func (h *ClientHandler) currentZone() (models.ZoneKey, bool) {
	player, err := h.server.Players.GetPlayer(h.playerID)
	if err != nil {
		h.sendServiceError(err)
		return models.ZoneKey{}, false
	}
	return player.Zone, true
}

// zone returns the zone the client's player is in; used by the client manager.
func (h *ClientHandler) zone() (models.ZoneKey, bool) {
	player, err := h.server.Players.GetPlayer(h.playerID)
	if err != nil {
		return models.ZoneKey{}, false
	}
	return player.Zone, true
}

func (h *ClientHandler) decode(payload json.RawMessage, target interface{}) bool {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, target); err != nil {
		h.sendError(messages.ErrorBadPayload, err.Error())
		return false
	}
	return true
}

func (h *ClientHandler) send(msg messages.BaseMessage) {
	if err := h.conn.SendMessage(msg); err != nil {
		h.logger.Warn("failed to send message", "type", msg.Type, "error", err)
	}
}

func (h *ClientHandler) sendError(code messages.ErrorCode, message string) {
	h.send(messages.NewError(code, message))
}

// sendServiceError maps service errors onto wire error codes.
func (h *ClientHandler) sendServiceError(err error) {
	code := messages.ErrorInternal
	switch {
	case errors.Is(err, services.ErrInvalidDirection):
		code = messages.ErrorInvalidDirection
	case errors.Is(err, services.ErrBlocked):
		code = messages.ErrorMoveBlocked
	case errors.Is(err, services.ErrInvalidTile):
		code = messages.ErrorInvalidTile
	case errors.Is(err, models.ErrCoordinateOutOfRange):
		code = messages.ErrorOutOfRange
	case errors.Is(err, models.ErrUnknownDimension):
		code = messages.ErrorUnknownDimension
	case errors.Is(err, services.ErrPlayerNotFound):
		code = messages.ErrorNotAuthenticated
	}
	if code == messages.ErrorInternal {
		h.logger.Error("request failed", "error", err)
	}
	h.sendError(code, err.Error())
}
