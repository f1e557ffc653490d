package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/pma-homesim/internal/core/notifications"
	"github.com/frostdev-ops/pma-homesim/pkg/utils"
)

// GetNotifications lists the feed newest first. ?unread=true keeps only
// unread entries.
func (h *Handlers) GetNotifications(c *gin.Context) {
	list := h.app.Notifications.List()
	if unread, _ := strconv.ParseBool(c.Query("unread")); unread {
		filtered := make([]notifications.Notification, 0, len(list))
		for _, n := range list {
			if !n.IsRead {
				filtered = append(filtered, n)
			}
		}
		list = filtered
	}
	utils.SendSuccessWithMeta(c, list, gin.H{
		"count":  len(list),
		"unread": h.app.Notifications.UnreadCount(),
	})
}

func (h *Handlers) GetUnreadCount(c *gin.Context) {
	utils.SendSuccess(c, gin.H{"unread": h.app.Notifications.UnreadCount()})
}

func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	id := c.Param("id")
	if err := h.do(c, func() error { return h.app.Notifications.MarkRead(id) }); err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"id": id, "isRead": true})
}

func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	err := h.do(c, func() error {
		h.app.Notifications.MarkAllRead()
		return nil
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"unread": 0})
}

func (h *Handlers) DeleteNotification(c *gin.Context) {
	id := c.Param("id")
	if err := h.do(c, func() error { return h.app.Notifications.Delete(id) }); err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"deleted": id})
}
