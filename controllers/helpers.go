package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/volunteer-hub-go/config"
	middleware "github.com/phillip/volunteer-hub-go/middleware"
	models "github.com/phillip/volunteer-hub-go/models"
	store "github.com/phillip/volunteer-hub-go/store"
	utils "github.com/phillip/volunteer-hub-go/utils"
	workflow "github.com/phillip/volunteer-hub-go/workflow"
)

const requestTimeout = 10 * time.Second

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// currentUser returns the authenticated user id. ok is false for anonymous requests.
func currentUser(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.GetString("user_id"))
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

// mustUser is currentUser for routes behind AuthMiddleware; it writes 401 itself.
func mustUser(c *gin.Context) (primitive.ObjectID, bool) {
	id, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
	}
	return id, ok
}

func isAdmin(c *gin.Context) bool { return c.GetString("role") == models.RoleAdmin }

func paramID(c *gin.Context, what string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
		return primitive.NilObjectID, false
	}
	return id, true
}

func queryID(c *gin.Context, key string) (primitive.ObjectID, bool) {
	s := c.Query(key)
	if s == "" {
		return primitive.NilObjectID, true
	}
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return primitive.NilObjectID, false
	}
	return id, true
}

// bindInput binds the body and writes 400 with per-field details on failure.
func bindInput(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBind(dst); err != nil {
		if details := middleware.ValidationDetails(err); details != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": details})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// respondError maps domain errors to HTTP statuses.
func respondError(cfg *config.Config, c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "record was changed by someone else, reload and try again"})
	case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, workflow.ErrVisibility):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrReasonRequired),
		errors.Is(err, workflow.ErrFieldNotEditable),
		errors.Is(err, workflow.ErrInvalidValue):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrMediaUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		cfg.Log.Error().Err(err).Str("path", c.FullPath()).Msg(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

// moderate writes 422 and returns false when any text contains prohibited words.
func moderate(cfg *config.Config, c *gin.Context, texts ...string) bool {
	if found := cfg.Profanity.Check(texts...); len(found) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "content contains prohibited language",
			"details": found,
		})
		return false
	}
	return true
}

// stringValues collects the string values of a change set for moderation.
func stringValues(changes map[string]interface{}) []string {
	var out []string
	for _, v := range changes {
		switch s := v.(type) {
		case string:
			out = append(out, s)
		case []string:
			out = append(out, s...)
		}
	}
	return out
}

// notModified sets ETag and Last-Modified and reports whether the client copy
// is current, in which case 304 has been written.
func notModified(c *gin.Context, etag string, lastModified time.Time) bool {
	if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	c.Header("ETag", etag)
	if !lastModified.IsZero() {
		c.Header("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}
	return false
}

// notify stores an in-app notification and emails the user. Failures are logged only.
func notify(ctx context.Context, cfg *config.Config, userID primitive.ObjectID, title, body, link string) {
	n := &models.Notification{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		Link:      link,
		CreatedAt: time.Now().UTC(),
	}
	if err := cfg.Store.Notifications.Create(ctx, n); err != nil {
		cfg.Log.Error().Err(err).Str("user_id", userID.Hex()).Msg("could not store notification")
	}

	user, err := cfg.Store.Users.Get(ctx, userID)
	if err != nil {
		cfg.Log.Warn().Err(err).Str("user_id", userID.Hex()).Msg("notification recipient not found, email skipped")
		return
	}
	sendEmail(ctx, cfg, user.Email, user.DisplayName, title, []string{body}, link)
}

func sendEmail(ctx context.Context, cfg *config.Config, to, name, subject string, lines []string, link string) {
	html, err := utils.RenderEmail(utils.EmailData{Name: name, Lines: lines, Link: link})
	if err != nil {
		cfg.Log.Error().Err(err).Msg("could not render email")
		return
	}
	msg := utils.Message{To: to, ToName: name, Subject: subject, HTML: html, Text: strings.Join(lines, "\n")}
	if err := cfg.Mailer.Send(ctx, msg); err != nil {
		cfg.Log.Error().Err(err).Str("to", to).Str("subject", subject).Msg("email failed")
	}
}

func frontendLink(cfg *config.Config, parts ...string) string {
	if cfg.FrontendURL == "" {
		return ""
	}
	return cfg.FrontendURL + "/" + strings.Join(parts, "/")
}
