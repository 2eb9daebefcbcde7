package ws

import (
	"log"
	"net/http"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"

	"go_sitegen/internal/model"
)

// Hub owns the Socket.IO server pushing live deployment progress to panel
// clients.
type Hub struct {
	server *socketio.Server
}

// NewHub initializes the Socket.IO server and starts its serve loop.
func NewHub() (*Hub, error) {
	server := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&polling.Transport{
				CheckOrigin: func(r *http.Request) bool {
					// Allow all origins for now (can be restricted later)
					return true
				},
			},
			&websocket.Transport{
				CheckOrigin: func(r *http.Request) bool {
					return true
				},
			},
		},
	})

	server.OnConnect("/", func(s socketio.Conn) error {
		// JWT authentication is handled in the handshake middleware
		log.Printf("[WebSocket] Client connected: %s", s.ID())
		s.Emit("connected", map[string]interface{}{"ok": true})
		return nil
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("[WebSocket] Client disconnected: %s, reason: %s", s.ID(), reason)
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Printf("[WebSocket] Error for client %s: %v", s.ID(), e)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("[WebSocket] Server error: %v", err)
		}
	}()

	log.Println("[WebSocket] Socket.IO server initialized")
	return &Hub{server: server}, nil
}

// DeploymentEvent broadcasts one deployment progress update to all
// connected clients. Broadcast failure never affects the build itself.
func (h *Hub) DeploymentEvent(dep *model.Deployment, line string) {
	if h == nil || h.server == nil {
		return
	}
	h.server.BroadcastToNamespace("/", "deployments:update", map[string]interface{}{
		"deploymentId": dep.ID,
		"siteId":       dep.SiteID,
		"status":       dep.Status,
		"line":         line,
	})
}

// Close shuts the Socket.IO server down.
func (h *Hub) Close() error {
	if h == nil || h.server == nil {
		return nil
	}
	return h.server.Close()
}
