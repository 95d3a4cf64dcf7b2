package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/volunteer-hub-go/config"
	models "github.com/phillip/volunteer-hub-go/models"
	store "github.com/phillip/volunteer-hub-go/store"
	utils "github.com/phillip/volunteer-hub-go/utils"
)

// participates reports whether the user has an active application for the
// project or an active registration for the event, and returns its title.
func participates(ctx context.Context, cfg *config.Config, userID primitive.ObjectID, targetType string, targetID primitive.ObjectID) (bool, string, error) {
	switch targetType {
	case models.TargetProject:
		apps, err := cfg.Store.Applications.List(ctx, store.EntryFilter{
			TargetID: targetID, UserID: userID, Statuses: activeApplication,
		})
		if err != nil || len(apps) == 0 {
			return false, "", err
		}
		return true, apps[0].ProjectTitle, nil
	case models.TargetEvent:
		regs, err := cfg.Store.Registrations.List(ctx, store.EntryFilter{
			TargetID: targetID, UserID: userID, Statuses: activeRegistration,
		})
		if err != nil || len(regs) == 0 {
			return false, "", err
		}
		return true, regs[0].EventTitle, nil
	}
	return false, "", nil
}

// ---------------- CREATE ----------------
func CreateReminder(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		var input struct {
			TargetType string `json:"target_type" binding:"required,oneof=project event"`
			TargetID   string `json:"target_id" binding:"required"`
			DueAt      string `json:"due_at" binding:"required"`
			Message    string `json:"message" binding:"max=1000"`
		}
		if !bindInput(c, &input) {
			return
		}
		targetID, err := primitive.ObjectIDFromHex(input.TargetID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target_id"})
			return
		}
		dueAt, err := utils.ParseDate(input.DueAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due_at format, use RFC3339 or YYYY-MM-DD"})
			return
		}
		if !dueAt.After(time.Now()) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "due_at must be in the future"})
			return
		}
		if !moderate(cfg, c, input.Message) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		ok, title, err := participates(ctx, cfg, userID, input.TargetType, targetID)
		if err != nil {
			respondError(cfg, c, err, "could not check participation")
			return
		}
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "reminders need an application or registration for the " + input.TargetType})
			return
		}

		user, err := cfg.Store.Users.Get(ctx, userID)
		if err != nil {
			respondError(cfg, c, err, "could not load user")
			return
		}

		msg := strings.TrimSpace(input.Message)
		if msg == "" {
			msg = "This is your reminder about " + title + "."
		}
		now := time.Now().UTC()
		rem := &models.Reminder{
			ID:         primitive.NewObjectID(),
			UserID:     userID,
			Email:      user.Email,
			Name:       user.DisplayName,
			Subject:    "Reminder: " + title,
			Message:    msg,
			TargetType: input.TargetType,
			TargetID:   targetID,
			DueAt:      dueAt.UTC(),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := cfg.Store.Reminders.Create(ctx, rem); err != nil {
			respondError(cfg, c, err, "could not create reminder")
			return
		}
		c.JSON(http.StatusCreated, rem)
	}
}

// ---------------- LIST (mine) ----------------
func MyReminders(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := cfg.Store.Reminders.ListByUser(ctx, userID)
		if err != nil {
			respondError(cfg, c, err, "could not fetch reminders")
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// ---------------- DELETE ----------------
func DeleteReminder(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "reminder")
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		rem, err := cfg.Store.Reminders.Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch reminder")
			return
		}
		if rem.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		if err := cfg.Store.Reminders.Delete(ctx, id); err != nil {
			respondError(cfg, c, err, "failed to delete reminder")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "reminder deleted successfully", "id": id.Hex()})
	}
}
