package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/core/automation"
	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	"github.com/frostdev-ops/pma-homesim/pkg/utils"
)

type createDeviceRequest struct {
	devices.Device
	WithAutomation bool `json:"withAutomation"`
}

// GetDevices lists devices, optionally filtered by room, type or favorite.
func (h *Handlers) GetDevices(c *gin.Context) {
	list := h.app.Devices.List()

	if room := c.Query("room"); room != "" {
		list = h.app.Devices.ByRoom(room)
	}
	if t := c.Query("type"); t != "" {
		list = keep(list, func(d devices.Device) bool { return string(d.Type) == t })
	}
	if fav := c.Query("favorite"); fav != "" {
		want, err := strconv.ParseBool(fav)
		if err != nil {
			utils.SendError(c, http.StatusBadRequest, "favorite must be true or false")
			return
		}
		list = keep(list, func(d devices.Device) bool { return d.IsFavorite == want })
	}

	utils.SendSuccessWithMeta(c, list, gin.H{"count": len(list)})
}

func keep(list []devices.Device, fn func(devices.Device) bool) []devices.Device {
	out := make([]devices.Device, 0, len(list))
	for _, d := range list {
		if fn(d) {
			out = append(out, d)
		}
	}
	return out
}

// GetDevice returns a single device
func (h *Handlers) GetDevice(c *gin.Context) {
	d, err := h.app.Devices.Get(c.Param("id"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, d)
}

// CreateDevice adds a device. With withAutomation set the device's preset
// rules are created alongside it.
func (h *Handlers) CreateDevice(c *gin.Context) {
	var req createDeviceRequest
	if !bind(c, &req) {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	d, rules, err := h.app.AddDevice(ctx, req.Device, req.WithAutomation)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	if rules == nil {
		rules = []automation.Rule{}
	}

	h.log.WithFields(logrus.Fields{
		"device_id": d.ID,
		"type":      d.Type,
		"rules":     len(rules),
	}).Info("Device created")
	utils.SendCreated(c, gin.H{"device": d, "rules": rules})
}

// UpdateDevice applies a partial update.
func (h *Handlers) UpdateDevice(c *gin.Context) {
	var patch devices.Patch
	if !bind(c, &patch) {
		return
	}

	var updated devices.Device
	err := h.do(c, func() error {
		var err error
		updated, err = h.app.Devices.Update(c.Param("id"), patch)
		return err
	})
	h.app.Metrics.RecordDeviceOperation(string(updated.Type), "update", err == nil)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, updated)
}

// ToggleDevice flips the power state.
func (h *Handlers) ToggleDevice(c *gin.Context) {
	var toggled devices.Device
	err := h.do(c, func() error {
		var err error
		toggled, err = h.app.Devices.Toggle(c.Param("id"))
		return err
	})
	h.app.Metrics.RecordDeviceOperation(string(toggled.Type), "toggle", err == nil)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, toggled)
}

func (h *Handlers) DeleteDevice(c *gin.Context) {
	id := c.Param("id")
	err := h.do(c, func() error {
		return h.app.Devices.Delete(id)
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"deleted": id})
}

// GetLinkedDevices lists the devices linked to a device.
func (h *Handlers) GetLinkedDevices(c *gin.Context) {
	linked, err := h.app.Devices.LinkedDevices(c.Param("id"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, linked)
}

func (h *Handlers) LinkDevices(c *gin.Context) {
	h.relink(c, true)
}

func (h *Handlers) UnlinkDevices(c *gin.Context) {
	h.relink(c, false)
}

func (h *Handlers) relink(c *gin.Context, link bool) {
	a, b := c.Param("id"), c.Param("other")
	err := h.do(c, func() error {
		if link {
			return h.app.Devices.Link(a, b)
		}
		return h.app.Devices.Unlink(a, b)
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"deviceId": a, "otherId": b, "linked": link})
}
