package controllers

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	analytics "github.com/phillip/volunteer-hub-go/analytics"
	config "github.com/phillip/volunteer-hub-go/config"
	exports "github.com/phillip/volunteer-hub-go/exports"
)

// ---------------- ANALYTICS ----------------
func Analytics(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		snap, err := analytics.Load(ctx, cfg.Store)
		if err != nil {
			respondError(cfg, c, err, "could not load analytics data")
			return
		}
		c.JSON(http.StatusOK, analytics.Compute(snap, time.Now().UTC()))
	}
}

// ---------------- EXPORT ----------------
func Export(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind := c.Param("kind")
		if !exports.ValidKind(kind) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown export kind, use projects, events, applications or registrations"})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		// buffered so a failed query still gets a JSON error
		var buf bytes.Buffer
		if err := exports.Write(ctx, cfg.Store, kind, &buf); err != nil {
			respondError(cfg, c, err, "could not export "+kind)
			return
		}

		c.Header("Content-Disposition", `attachment; filename="`+exports.Filename(kind, time.Now())+`"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	}
}

// ---------------- REMINDERS (admin) ----------------
func RunReminders(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Minute)
		defer cancel()

		res, err := cfg.Scheduler().RunOnce(ctx)
		if err != nil {
			respondError(cfg, c, err, "reminder run failed")
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
