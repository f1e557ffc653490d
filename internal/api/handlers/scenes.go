package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/pma-homesim/internal/core/scenes"
	"github.com/frostdev-ops/pma-homesim/pkg/utils"
)

// GetScenes retrieves all scenes
func (h *Handlers) GetScenes(c *gin.Context) {
	list := h.app.Scenes.List()
	utils.SendSuccessWithMeta(c, list, gin.H{"count": len(list)})
}

// GetScene retrieves a specific scene
func (h *Handlers) GetScene(c *gin.Context) {
	scene, err := h.app.Scenes.Get(c.Param("id"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, scene)
}

func (h *Handlers) CreateScene(c *gin.Context) {
	var in scenes.Input
	if !bind(c, &in) {
		return
	}

	var created scenes.Scene
	err := h.do(c, func() error {
		var err error
		created, err = h.app.Scenes.Add(in)
		return err
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendCreated(c, created)
}

func (h *Handlers) UpdateScene(c *gin.Context) {
	var patch scenes.Patch
	if !bind(c, &patch) {
		return
	}

	var updated scenes.Scene
	err := h.do(c, func() error {
		var err error
		updated, err = h.app.Scenes.Update(c.Param("id"), patch)
		return err
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, updated)
}

func (h *Handlers) DeleteScene(c *gin.Context) {
	id := c.Param("id")
	if err := h.do(c, func() error { return h.app.Scenes.Delete(id) }); err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"deleted": id})
}

// RunScene executes the scene and answers once every step was applied.
// The runner takes the loop per step, so it is called from the request
// goroutine. A client disconnect cancels the remaining steps.
func (h *Handlers) RunScene(c *gin.Context) {
	exec, err := h.app.Scenes.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, exec)
}
