package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/volunteer-hub-go/config"
	kb "github.com/phillip/volunteer-hub-go/kb"
	models "github.com/phillip/volunteer-hub-go/models"
	workflow "github.com/phillip/volunteer-hub-go/workflow"
)

// ---------------- CHAT ----------------
func Chat(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Message string `json:"message" binding:"required,notblank,max=1000"`
		}
		if !bindInput(c, &input) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		entries, err := cfg.Store.KB.List(ctx)
		if err != nil {
			respondError(cfg, c, err, "could not load knowledge base")
			return
		}
		c.JSON(http.StatusOK, kb.Answer(entries, input.Message, cfg.SupportEmail))
	}
}

// ---------------- LIST ----------------
func ListKB(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		entries, err := cfg.Store.KB.List(ctx)
		if err != nil {
			respondError(cfg, c, err, "could not load knowledge base")
			return
		}
		if cat := strings.TrimSpace(c.Query("category")); cat != "" {
			filtered := []models.KBEntry{}
			for _, e := range entries {
				if strings.EqualFold(e.Category, cat) {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}
		c.JSON(http.StatusOK, entries)
	}
}

// ---------------- CREATE (admin) ----------------
func CreateKBEntry(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Question string   `json:"question" binding:"required,notblank,max=500"`
			Answer   string   `json:"answer" binding:"required,notblank,max=5000"`
			Keywords []string `json:"keywords" binding:"max=50"`
			Category string   `json:"category" binding:"max=100"`
		}
		if !bindInput(c, &input) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		now := time.Now().UTC()
		entry := &models.KBEntry{
			ID:        primitive.NewObjectID(),
			Question:  strings.TrimSpace(input.Question),
			Answer:    strings.TrimSpace(input.Answer),
			Keywords:  workflow.CleanList(input.Keywords),
			Category:  strings.TrimSpace(input.Category),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := cfg.Store.KB.Create(ctx, entry); err != nil {
			respondError(cfg, c, err, "could not create entry")
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

// ---------------- UPDATE (admin) ----------------
func UpdateKBEntry(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "entry")
		if !ok {
			return
		}
		var input struct {
			Question *string  `json:"question" binding:"omitempty,notblank,max=500"`
			Answer   *string  `json:"answer" binding:"omitempty,notblank,max=5000"`
			Keywords []string `json:"keywords" binding:"max=50"`
			Category *string  `json:"category" binding:"omitempty,max=100"`
		}
		if !bindInput(c, &input) {
			return
		}

		update := bson.M{}
		if input.Question != nil {
			update["question"] = strings.TrimSpace(*input.Question)
		}
		if input.Answer != nil {
			update["answer"] = strings.TrimSpace(*input.Answer)
		}
		if input.Keywords != nil {
			update["keywords"] = workflow.CleanList(input.Keywords)
		}
		if input.Category != nil {
			update["category"] = strings.TrimSpace(*input.Category)
		}
		if len(update) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := cfg.Store.KB.Update(ctx, id, update); err != nil {
			respondError(cfg, c, err, "could not update entry")
			return
		}
		updated, err := cfg.Store.KB.Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch entry")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "entry updated successfully", "entry": updated})
	}
}

// ---------------- DELETE (admin) ----------------
func DeleteKBEntry(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "entry")
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		if err := cfg.Store.KB.Delete(ctx, id); err != nil {
			respondError(cfg, c, err, "failed to delete entry")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "entry deleted successfully", "id": id.Hex()})
	}
}
