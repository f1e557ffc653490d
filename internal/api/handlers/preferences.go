package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/pma-homesim/internal/core/preferences"
	"github.com/frostdev-ops/pma-homesim/pkg/utils"
)

type preferenceValue struct {
	Value interface{} `json:"value"`
}

// GetSettings returns the current settings
func (h *Handlers) GetSettings(c *gin.Context) {
	utils.SendSuccess(c, h.app.Settings.Get())
}

// UpdateSettings shallow-merges the body into the settings.
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var patch map[string]interface{}
	if !bind(c, &patch) {
		return
	}

	var updated preferences.Settings
	err := h.do(c, func() error {
		var err error
		updated, err = h.app.Settings.Update(patch)
		return err
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, updated)
}

// GetPreference reads one setting by dotted path, e.g. energy.costPerKwh.
func (h *Handlers) GetPreference(c *gin.Context) {
	key := c.Param("key")
	value, err := h.app.Settings.GetPreference(key)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"key": key, "value": value})
}

func (h *Handlers) SetPreference(c *gin.Context) {
	var body preferenceValue
	if !bind(c, &body) {
		return
	}

	var updated preferences.Settings
	err := h.do(c, func() error {
		var err error
		updated, err = h.app.Settings.SetPreference(c.Param("key"), body.Value)
		return err
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, updated)
}

func (h *Handlers) ResetSettings(c *gin.Context) {
	var defaults preferences.Settings
	err := h.do(c, func() error {
		defaults = h.app.Settings.ResetToDefaults()
		return nil
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, defaults)
}

func (h *Handlers) ExportSettings(c *gin.Context) {
	data, err := h.app.Settings.Export()
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="settings.json"`)
	c.Data(http.StatusOK, "application/json", data)
}

func (h *Handlers) ImportSettings(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRuleDocument))
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Failed to read request body")
		return
	}

	var imported preferences.Settings
	err = h.do(c, func() error {
		var err error
		imported, err = h.app.Settings.Import(data)
		return err
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, imported)
}
