package ws

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"collabsync/backend/internal/access"
	"collabsync/backend/internal/docsync"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:    4096,
	WriteBufferSize:   4096,
	EnableCompression: true,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || origin == "null" {
			return true
		}
		allowedPrefixes := []string{
			"http://localhost",
			"http://127.0.0.1",
			"https://localhost",
			"https://127.0.0.1",
		}
		for _, p := range allowedPrefixes {
			if strings.HasPrefix(origin, p) {
				return true
			}
		}
		return false
	},
}

// Manager upgrades authenticated HTTP requests into collaboration
// connections. Identity comes from the auth middleware via the gin context.
type Manager struct {
	hub        *Hub
	docs       docsync.Store
	grants     access.Store
	dispatcher *Dispatcher
	log        zerolog.Logger
}

func NewManager(hub *Hub, docs docsync.Store, grants access.Store, dispatcher *Dispatcher, log zerolog.Logger) *Manager {
	return &Manager{hub: hub, docs: docs, grants: grants, dispatcher: dispatcher, log: log}
}

func (m *Manager) Connect(c *gin.Context) {
	participantID := c.GetString("participantId")
	displayName := c.GetString("displayName")
	identifier := c.GetString("identifier")
	if participantID == "" {
		c.String(http.StatusUnauthorized, "missing identity")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.log.Warn().Err(err).
			Str("origin", c.Request.Header.Get("Origin")).
			Msg("websocket upgrade failed")
		return
	}

	wsConn := NewConn(conn, m.hub, participantID, displayName, identifier,
		m.docs, m.grants, m.dispatcher, m.log)
	wsConn.Serve(c.Request.Context())
}
