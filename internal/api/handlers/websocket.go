package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/pma-homesim/internal/websocket"
	"github.com/frostdev-ops/pma-homesim/pkg/utils"
)

// WebSocketHandler upgrades the request and streams store changes.
// Repeated ?key= parameters limit the stream to those store keys.
func (h *Handlers) WebSocketHandler(c *gin.Context) {
	websocket.HandleWebSocket(h.hub, c.Writer, c.Request)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handlers) GetWebSocketStats(c *gin.Context) {
	clients := h.hub.GetAllClients()
	list := make([]gin.H, 0, len(clients))
	for _, client := range clients {
		list = append(list, gin.H{
			"id":           client.ID,
			"remote_addr":  client.RemoteAddr,
			"connected_at": client.ConnectedAt,
			"keys":         client.Subscriptions(),
		})
	}
	utils.SendSuccess(c, gin.H{
		"stats":   h.hub.GetStats(),
		"clients": list,
	})
}
