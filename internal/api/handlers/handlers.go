package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/smarthome"
	"github.com/frostdev-ops/pma-homesim/internal/websocket"
	"github.com/frostdev-ops/pma-homesim/pkg/utils"
)

const requestTimeout = 10 * time.Second

// Handlers contains all HTTP handlers
type Handlers struct {
	app *smarthome.App
	hub *websocket.Hub
	log *logrus.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(app *smarthome.App, hub *websocket.Hub, log *logrus.Logger) *Handlers {
	return &Handlers{
		app: app,
		hub: hub,
		log: log,
	}
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// do runs fn on the event loop, bounded by the request context.
func (h *Handlers) do(c *gin.Context, fn func() error) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	return h.app.Loop.Do(ctx, fn)
}

// bind decodes the JSON body into dst, answering 400 on failure.
func bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}
