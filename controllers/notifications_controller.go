package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	config "github.com/phillip/volunteer-hub-go/config"
)

const maxNotifications = 100

func ListNotifications(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		limit := 50
		if s := c.Query("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = min(n, maxNotifications)
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := cfg.Store.Notifications.ListByUser(ctx, userID, limit)
		if err != nil {
			respondError(cfg, c, err, "could not fetch notifications")
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func MarkNotificationRead(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "notification")
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		if err := cfg.Store.Notifications.MarkRead(ctx, id, userID); err != nil {
			respondError(cfg, c, err, "could not update notification")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "notification marked as read", "id": id.Hex()})
	}
}
