package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/volunteer-hub-go/config"
	models "github.com/phillip/volunteer-hub-go/models"
	store "github.com/phillip/volunteer-hub-go/store"
	utils "github.com/phillip/volunteer-hub-go/utils"
	workflow "github.com/phillip/volunteer-hub-go/workflow"
)

func Me(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		user, err := cfg.Store.Users.Get(ctx, userID)
		if err != nil {
			respondError(cfg, c, err, "could not fetch user")
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// ---------------- LIST ----------------
func ListUsers(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		users, err := cfg.Store.Users.List(ctx)
		if err != nil {
			respondError(cfg, c, err, "could not fetch users")
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

// ---------------- GET ----------------
func GetUser(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "user")
		if !ok {
			return
		}
		if !isAdmin(c) && c.GetString("user_id") != id.Hex() {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		user, err := cfg.Store.Users.Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch user")
			return
		}

		etag := utils.GenerateETag(user.ID, user.UpdatedAt)
		if notModified(c, etag, user.UpdatedAt) {
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// ---------------- UPDATE ----------------
func UpdateUser(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "user")
		if !ok {
			return
		}
		admin := isAdmin(c)
		if !admin && c.GetString("user_id") != id.Hex() {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}

		var input struct {
			DisplayName *string  `json:"display_name" binding:"omitempty,notblank,max=100"`
			Phone       *string  `json:"phone" binding:"omitempty,max=50"`
			Skills      []string `json:"skills" binding:"omitempty,max=30"`
			Bio         *string  `json:"bio" binding:"omitempty,max=2000"`
			Role        *string  `json:"role" binding:"omitempty,oneof=user admin"`
		}
		if !bindInput(c, &input) {
			return
		}

		// --- Prepare update document ---
		update := bson.M{}
		var texts []string
		if input.DisplayName != nil {
			update["display_name"] = strings.TrimSpace(*input.DisplayName)
			texts = append(texts, *input.DisplayName)
		}
		if input.Phone != nil {
			update["phone"] = strings.TrimSpace(*input.Phone)
		}
		if input.Skills != nil {
			update["skills"] = workflow.CleanList(input.Skills)
			texts = append(texts, input.Skills...)
		}
		if input.Bio != nil {
			update["bio"] = strings.TrimSpace(*input.Bio)
			texts = append(texts, *input.Bio)
		}
		if input.Role != nil {
			if !admin {
				c.JSON(http.StatusForbidden, gin.H{"error": "only admins can change roles"})
				return
			}
			update["role"] = *input.Role
		}

		if len(update) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
			return
		}
		if !moderate(cfg, c, texts...) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := cfg.Store.Users.Update(ctx, id, update); err != nil {
			respondError(cfg, c, err, "could not update user")
			return
		}
		updated, err := cfg.Store.Users.Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch updated user")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "user updated successfully",
			"user":    updated,
		})
	}
}

// releaseUserActivity winds down what an account still holds before it is
// deleted: registrations give their seats to the waitlist, applications are
// withdrawn, pending edit requests are rejected and unsent reminders dropped.
func releaseUserActivity(ctx context.Context, cfg *config.Config, userID, by primitive.ObjectID) error {
	regs, err := cfg.Store.Registrations.List(ctx, store.EntryFilter{UserID: userID, Statuses: activeRegistration})
	if err != nil {
		return err
	}
	for i := range regs {
		if err := cancelRegistration(ctx, cfg, &regs[i], by); err != nil && !errors.Is(err, store.ErrConflict) {
			return err
		}
	}

	apps, err := cfg.Store.Applications.List(ctx, store.EntryFilter{UserID: userID, Statuses: activeApplication})
	if err != nil {
		return err
	}
	for i := range apps {
		if err := withdrawApplication(ctx, cfg, &apps[i], by); err != nil && !errors.Is(err, store.ErrConflict) {
			return err
		}
	}

	pending, err := cfg.Store.EditRequests.List(ctx, store.EditRequestFilter{Status: models.EditPending, RequestedBy: userID})
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, er := range pending {
		err := cfg.Store.EditRequests.Decide(ctx, er.ID, bson.M{
			"status":      models.EditRejected,
			"reviewed_by": by,
			"review_note": "account deleted",
			"reviewed_at": now,
		})
		if err != nil && !errors.Is(err, store.ErrConflict) {
			return err
		}
	}

	_, err = cfg.Store.Reminders.DeleteUnsent(ctx, userID, primitive.NilObjectID)
	return err
}

// ---------------- DELETE ----------------
func DeleteUser(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "user")
		if !ok {
			return
		}
		if !isAdmin(c) && c.GetString("user_id") != id.Hex() {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}

		by, ok := mustUser(c)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if _, err := cfg.Store.Users.Get(ctx, id); err != nil {
			respondError(cfg, c, err, "could not fetch user")
			return
		}
		if err := releaseUserActivity(ctx, cfg, id, by); err != nil {
			respondError(cfg, c, err, "could not release user activity")
			return
		}
		if err := cfg.Store.Users.Delete(ctx, id); err != nil {
			respondError(cfg, c, err, "could not delete user")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "user deleted successfully",
			"id":      id.Hex(),
		})
	}
}
