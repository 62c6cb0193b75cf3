package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Any origin may connect; the protocol carries no credentials.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebsocketHandler upgrades requests and serves each client for the lifetime
// of ctx.
func WebsocketHandler(ctx context.Context, server *Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			server.logger().Warn("failed to upgrade connection", "error", err)
			return
		}
		HandleClientConnection(ctx, conn, server)
	})
}
