package api

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	log "github.com/sirupsen/logrus"

	"github.com/hrishi0102/patchpay/internal/database/models"
	"github.com/hrishi0102/patchpay/internal/middleware"
)

// Hub fans notifications out to connected websocket clients, keyed by the
// recipient's user id. It implements workflow.Publisher, so workflow events
// reach the browser the moment they are stored.
type Hub struct {
	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: map[string]map[*websocket.Conn]struct{}{}}
}

func (h *Hub) register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = map[*websocket.Conn]struct{}{}
	}
	h.conns[userID][conn] = struct{}{}
}

func (h *Hub) unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[userID], conn)
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
}

// Publish pushes the notification to every live connection of its
// recipient. Connections that fail to take the write are dropped.
func (h *Hub) Publish(n models.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		log.Errorf("failed to encode notification %s: %v", n.ID, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns[n.UserID] {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Debugf("dropping dead notification connection for user %s: %v", n.UserID, err)
			conn.Close()
			delete(h.conns[n.UserID], conn)
		}
	}
	if len(h.conns[n.UserID]) == 0 {
		delete(h.conns, n.UserID)
	}
}

// setupNotificationFeed mounts the live notification feed. Clients connect
// to /ws/notifications?token=<jwt> and receive each of their notifications
// as a JSON text frame.
func (a *API) setupNotificationFeed(app *fiber.App) {
	if a.hub == nil {
		return
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		claims, err := middleware.VerifyToken(c.Query("token"), a.cfg.Secrets.JWTSecret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "invalid token"})
		}
		c.Locals("userID", claims.UserID)
		return c.Next()
	})

	app.Get("/ws/notifications", websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("userID").(string)
		if userID == "" {
			conn.Close()
			return
		}

		a.hub.register(userID, conn)
		defer a.hub.unregister(userID, conn)

		// Drain client frames until the connection closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}
