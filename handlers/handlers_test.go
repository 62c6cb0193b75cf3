package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"terminus-realm/zoneserver/messages"
	"terminus-realm/zoneserver/models"
	"terminus-realm/zoneserver/services"
)

type inbound struct {
	Type    messages.MessageType `json:"type"`
	Payload json.RawMessage      `json:"payload"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	zones, err := services.NewZoneService(services.WithWorldSeed(1))
	if err != nil {
		t.Fatalf("NewZoneService: %v", err)
	}
	server := &Server{
		Players: services.NewPlayerService(zones, nil, nil),
		Zones:   zones,
		Clients: NewClientManager(nil),
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(WebsocketHandler(ctx, server))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ messages.MessageType, payload interface{}) {
	t.Helper()
	if err := conn.WriteJSON(messages.BaseMessage{Type: typ, Payload: payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil skips messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want messages.MessageType) json.RawMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if msg.Type == want {
			return msg.Payload
		}
	}
}

func readError(t *testing.T, conn *websocket.Conn) messages.ErrorMessage {
	t.Helper()
	var e messages.ErrorMessage
	if err := json.Unmarshal(readUntil(t, conn, messages.MessageTypeError), &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return e
}

func login(t *testing.T, conn *websocket.Conn, username string) messages.ZoneMessage {
	t.Helper()
	send(t, conn, messages.MessageTypeLogin, messages.LoginMessage{Username: username})

	var ok messages.LoginSuccessMessage
	if err := json.Unmarshal(readUntil(t, conn, messages.MessageTypeLoginSuccess), &ok); err != nil {
		t.Fatalf("decode login_success: %v", err)
	}
	if ok.PlayerID == "" {
		t.Fatal("login_success without a player id")
	}

	var zone messages.ZoneMessage
	if err := json.Unmarshal(readUntil(t, conn, messages.MessageTypeZone), &zone); err != nil {
		t.Fatalf("decode zone: %v", err)
	}
	return zone
}

func TestRequiresLogin(t *testing.T) {
	conn := dial(t, newTestServer(t))

	send(t, conn, messages.MessageTypeMove, messages.MoveMessage{Direction: "north"})
	if e := readError(t, conn); e.Code != messages.ErrorNotAuthenticated {
		t.Fatalf("code = %s, want %s", e.Code, messages.ErrorNotAuthenticated)
	}
}

func TestLoginSendsHomeZone(t *testing.T) {
	conn := dial(t, newTestServer(t))

	zone := login(t, conn, "ada")
	if zone.Zone == nil || zone.Zone.Key != services.HomeZone {
		t.Fatalf("expected the home zone, got %+v", zone.Zone)
	}
	if zone.Zone.Grid.Height() != models.ZoneHeight || zone.Zone.Grid.Width() != models.ZoneWidth {
		t.Fatalf("grid is %dx%d", zone.Zone.Grid.Width(), zone.Zone.Grid.Height())
	}
	if len(zone.Players) != 1 || zone.Players[0].Username != "ada" {
		t.Fatalf("players = %+v", zone.Players)
	}

	send(t, conn, messages.MessageTypeLogin, messages.LoginMessage{Username: "ada"})
	if e := readError(t, conn); e.Code != messages.ErrorAlreadyLoggedIn {
		t.Fatalf("code = %s, want %s", e.Code, messages.ErrorAlreadyLoggedIn)
	}
}

func TestSetTileBroadcastsToZone(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv)
	bob := dial(t, srv)
	login(t, alice, "alice")
	login(t, bob, "bob")

	send(t, alice, messages.MessageTypeSetTile, messages.SetTileMessage{X: 5, Y: 20, Tile: models.TileWater})

	var own, seen messages.TileMessage
	if err := json.Unmarshal(readUntil(t, alice, messages.MessageTypeTile), &own); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal(readUntil(t, bob, messages.MessageTypeTile), &seen); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := messages.TileMessage{Zone: services.HomeZone, X: 5, Y: 20, Tile: models.TileWater}
	if own != want || seen != want {
		t.Fatalf("tile updates: own=%+v seen=%+v want %+v", own, seen, want)
	}

	send(t, bob, messages.MessageTypeGetTile, messages.GetTileMessage{X: 5, Y: 20})
	var read messages.TileMessage
	if err := json.Unmarshal(readUntil(t, bob, messages.MessageTypeTile), &read); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if read.Tile != models.TileWater {
		t.Fatalf("tile = %d, want water", read.Tile)
	}
}

func TestProtocolErrors(t *testing.T) {
	conn := dial(t, newTestServer(t))
	login(t, conn, "grace")

	tests := []struct {
		name    string
		typ     messages.MessageType
		payload interface{}
		want    messages.ErrorCode
	}{
		{name: "unknown type", typ: "dance", payload: nil, want: messages.ErrorUnknownMessageType},
		{name: "bad direction", typ: messages.MessageTypeMove, payload: messages.MoveMessage{Direction: "up"}, want: messages.ErrorInvalidDirection},
		{name: "bad dimension", typ: messages.MessageTypeEnterZone, payload: messages.EnterZoneMessage{Dimension: "sky"}, want: messages.ErrorUnknownDimension},
		{name: "far zone", typ: messages.MessageTypeEnterZone, payload: messages.EnterZoneMessage{X: models.MaxCoordinate + 1, Dimension: "surface"}, want: messages.ErrorOutOfRange},
		{name: "tile outside zone", typ: messages.MessageTypeGetTile, payload: messages.GetTileMessage{X: -1, Y: 0}, want: messages.ErrorOutOfRange},
		{name: "bad tile", typ: messages.MessageTypeSetTile, payload: messages.SetTileMessage{X: 1, Y: 1, Tile: 500}, want: messages.ErrorInvalidTile},
		{name: "bad payload", typ: messages.MessageTypeMove, payload: "north", want: messages.ErrorBadPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, conn, tt.typ, tt.payload)
			if e := readError(t, conn); e.Code != tt.want {
				t.Fatalf("code = %s (%s), want %s", e.Code, e.Message, tt.want)
			}
		})
	}
}

func TestEnterZoneAndStats(t *testing.T) {
	conn := dial(t, newTestServer(t))
	login(t, conn, "linus")

	send(t, conn, messages.MessageTypeEnterZone, messages.EnterZoneMessage{X: 2, Y: -1, Dimension: "underground"})
	var zone messages.ZoneMessage
	if err := json.Unmarshal(readUntil(t, conn, messages.MessageTypeZone), &zone); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := models.ZoneKey{X: 2, Y: -1, Dimension: models.Underground}
	if zone.Zone.Key != want || zone.Player.Zone != want {
		t.Fatalf("entered %s, want %s", zone.Player.Zone, want)
	}

	send(t, conn, messages.MessageTypeCacheStats, nil)
	var stats messages.StatsMessage
	if err := json.Unmarshal(readUntil(t, conn, messages.MessageTypeStats), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Zone != want {
		t.Fatalf("stats zone = %s, want %s", stats.Zone, want)
	}

	send(t, conn, messages.MessageTypeReset, nil)
	if err := json.Unmarshal(readUntil(t, conn, messages.MessageTypeZone), &zone); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if zone.Zone.Key != want {
		t.Fatalf("after reset the player is in %s, want %s", zone.Zone.Key, want)
	}
}
