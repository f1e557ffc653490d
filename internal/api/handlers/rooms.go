package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/pma-homesim/internal/core/rooms"
	"github.com/frostdev-ops/pma-homesim/pkg/utils"
)

type currentHomeRequest struct {
	HomeID string `json:"homeId" binding:"required"`
}

func (h *Handlers) GetHomes(c *gin.Context) {
	homes := h.app.Rooms.Homes()
	utils.SendSuccessWithMeta(c, homes, gin.H{
		"count":       len(homes),
		"currentHome": h.app.Rooms.CurrentHomeID(),
	})
}

func (h *Handlers) GetHome(c *gin.Context) {
	home, err := h.app.Rooms.Home(c.Param("homeId"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, home)
}

// CreateHome adds a home. The first home becomes the current one.
func (h *Handlers) CreateHome(c *gin.Context) {
	var in rooms.Home
	if !bind(c, &in) {
		return
	}

	var created rooms.Home
	err := h.do(c, func() error {
		var err error
		created, err = h.app.Rooms.AddHome(in)
		return err
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendCreated(c, created)
}

func (h *Handlers) UpdateHome(c *gin.Context) {
	var patch rooms.HomePatch
	if !bind(c, &patch) {
		return
	}

	var updated rooms.Home
	err := h.do(c, func() error {
		var err error
		updated, err = h.app.Rooms.UpdateHome(c.Param("homeId"), patch)
		return err
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, updated)
}

// DeleteHome removes a home with its rooms and their devices.
func (h *Handlers) DeleteHome(c *gin.Context) {
	id := c.Param("homeId")
	if err := h.do(c, func() error { return h.app.Rooms.DeleteHome(id) }); err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"deleted": id})
}

func (h *Handlers) GetCurrentHome(c *gin.Context) {
	home, ok := h.app.Rooms.CurrentHome()
	if !ok {
		utils.SendSuccess(c, nil)
		return
	}
	utils.SendSuccess(c, home)
}

func (h *Handlers) SetCurrentHome(c *gin.Context) {
	var req currentHomeRequest
	if !bind(c, &req) {
		return
	}
	if err := h.do(c, func() error { return h.app.Rooms.SetCurrentHome(req.HomeID) }); err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"currentHome": req.HomeID})
}

func (h *Handlers) GetRooms(c *gin.Context) {
	list, err := h.app.Rooms.Rooms(c.Param("homeId"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccessWithMeta(c, list, gin.H{"count": len(list)})
}

func (h *Handlers) CreateRoom(c *gin.Context) {
	var in rooms.Room
	if !bind(c, &in) {
		return
	}

	var created rooms.Room
	err := h.do(c, func() error {
		var err error
		created, err = h.app.Rooms.AddRoom(c.Param("homeId"), in)
		return err
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendCreated(c, created)
}

func (h *Handlers) UpdateRoom(c *gin.Context) {
	var patch rooms.RoomPatch
	if !bind(c, &patch) {
		return
	}

	var updated rooms.Room
	err := h.do(c, func() error {
		var err error
		updated, err = h.app.Rooms.UpdateRoom(c.Param("homeId"), c.Param("roomId"), patch)
		return err
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, updated)
}

// DeleteRoom removes a room and the devices placed in it.
func (h *Handlers) DeleteRoom(c *gin.Context) {
	homeID, roomID := c.Param("homeId"), c.Param("roomId")
	if err := h.do(c, func() error { return h.app.Rooms.DeleteRoom(homeID, roomID) }); err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"deleted": roomID})
}
