package handlers

import (
	"net/http"
	"sync"
	"time"

	"dashshot/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Notification is pushed to every subscribed shell.
type Notification struct {
	Event       string `json:"event"`
	DashboardID string `json:"dashboard_id"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// Hub fans capture notifications out to websocket subscribers.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex
}

func NewHub() *Hub {
	return &Hub{clients: map[*websocket.Conn]*sync.Mutex{}}
}

// ScreenshotDone tells subscribers a fresh screenshot of task's dashboard
// is available.
func (h *Hub) ScreenshotDone(task *models.Task) {
	h.Broadcast(Notification{
		Event:       "screenshotIsDone",
		DashboardID: task.DashboardID,
		Width:       task.Width,
		Height:      task.Height,
	})
}

func (h *Hub) Broadcast(n Notification) {
	h.mu.Lock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, wmu := range h.clients {
		conns[conn] = wmu
	}
	h.mu.Unlock()

	for conn, wmu := range conns {
		wmu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := conn.WriteJSON(n)
		wmu.Unlock()
		if err != nil {
			log.Debug().Err(err).Msg("Dropping websocket subscriber")
			h.remove(conn)
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		conn.Close()
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Subscribe upgrades the request and keeps the subscriber until it hangs
// up. Incoming messages are ignored.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = &sync.Mutex{}
	h.mu.Unlock()
	log.Debug().Int("subscribers", h.Count()).Msg("🔌 Capture subscriber connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(conn)
}
