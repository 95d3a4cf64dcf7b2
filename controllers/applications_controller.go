package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/volunteer-hub-go/config"
	models "github.com/phillip/volunteer-hub-go/models"
	store "github.com/phillip/volunteer-hub-go/store"
	workflow "github.com/phillip/volunteer-hub-go/workflow"
)

var activeApplication = []string{models.ApplicationPending, models.ApplicationAccepted}

// dropProjectReminders removes the reminders an applicant set for the project
// once the application is no longer active.
func dropProjectReminders(ctx context.Context, cfg *config.Config, app *models.ProjectApplicationEntry) {
	if _, err := cfg.Store.Reminders.DeleteUnsent(ctx, app.UserID, app.ProjectID); err != nil {
		cfg.Log.Error().Err(err).Str("application_id", app.ID.Hex()).Msg("could not remove reminders")
	}
}

func withdrawApplication(ctx context.Context, cfg *config.Config, app *models.ProjectApplicationEntry, by primitive.ObjectID) error {
	change, err := workflow.Withdraw(app.Status, by, time.Now())
	if err != nil {
		return err
	}
	if err := cfg.Store.Applications.Transition(ctx, app.ID, change); err != nil {
		return err
	}
	dropProjectReminders(ctx, cfg, app)
	return nil
}

// ---------------- APPLY ----------------
func ApplyToProject(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		projectID, ok := paramID(c, "project")
		if !ok {
			return
		}
		var input struct {
			Name         string   `json:"name" binding:"max=200"`
			Email        string   `json:"email" binding:"omitempty,email"`
			Phone        string   `json:"phone" binding:"max=50"`
			Motivation   string   `json:"motivation" binding:"max=2000"`
			Skills       []string `json:"skills" binding:"max=30"`
			Availability string   `json:"availability" binding:"max=200"`
		}
		if !bindInput(c, &input) {
			return
		}
		if !moderate(cfg, c, append([]string{input.Name, input.Motivation, input.Availability}, input.Skills...)...) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		project, err := cfg.Store.Projects.Get(ctx, projectID)
		if err != nil || !project.IsPublic() {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return
		}

		existing, err := cfg.Store.Applications.List(ctx, store.EntryFilter{
			TargetID: projectID, UserID: userID, Statuses: activeApplication,
		})
		if err != nil {
			respondError(cfg, c, err, "could not check applications")
			return
		}
		if len(existing) > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "you already applied to this project"})
			return
		}

		user, err := cfg.Store.Users.Get(ctx, userID)
		if err != nil {
			respondError(cfg, c, err, "could not load user")
			return
		}

		now := time.Now().UTC()
		skills := workflow.CleanList(input.Skills)
		if len(skills) == 0 {
			skills = workflow.CleanList(user.Skills)
		}
		app := &models.ProjectApplicationEntry{
			ID:           primitive.NewObjectID(),
			ProjectID:    projectID,
			ProjectTitle: project.Title,
			UserID:       userID,
			Name:         firstNonEmpty(input.Name, user.DisplayName),
			Email:        strings.ToLower(firstNonEmpty(input.Email, user.Email)),
			Phone:        firstNonEmpty(input.Phone, user.Phone),
			Motivation:   strings.TrimSpace(input.Motivation),
			Skills:       skills,
			Availability: strings.TrimSpace(input.Availability),
			Status:       models.ApplicationPending,
			AuditTrail:   []models.AuditEntry{workflow.Applied(userID, now)},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := cfg.Store.Applications.Create(ctx, app); err != nil {
			respondError(cfg, c, err, "could not submit application")
			return
		}

		notify(ctx, cfg, project.SubmittedBy,
			fmt.Sprintf("New application for %q", project.Title),
			app.Name+" applied to volunteer.",
			frontendLink(cfg, "projects", projectID.Hex()))

		c.JSON(http.StatusCreated, app)
	}
}

// ---------------- LIST (project) ----------------
func ListProjectApplications(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		projectID, ok := paramID(c, "project")
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		project, err := cfg.Store.Projects.Get(ctx, projectID)
		if err != nil {
			respondError(cfg, c, err, "could not fetch project")
			return
		}
		if !isAdmin(c) && !project.OwnedBy(userID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}

		apps, err := cfg.Store.Applications.List(ctx, store.EntryFilter{TargetID: projectID})
		if err != nil {
			respondError(cfg, c, err, "could not fetch applications")
			return
		}
		c.JSON(http.StatusOK, apps)
	}
}

// ---------------- LIST (mine) ----------------
func MyApplications(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		apps, err := cfg.Store.Applications.List(ctx, store.EntryFilter{UserID: userID})
		if err != nil {
			respondError(cfg, c, err, "could not fetch applications")
			return
		}
		c.JSON(http.StatusOK, apps)
	}
}

// ---------------- LIST (admin) ----------------
func ListAllApplications(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, ok := queryID(c, "project_id")
		if !ok {
			return
		}
		f := store.EntryFilter{TargetID: projectID}
		if s := c.Query("status"); s != "" {
			f.Statuses = []string{s}
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		apps, err := cfg.Store.Applications.List(ctx, f)
		if err != nil {
			respondError(cfg, c, err, "could not fetch applications")
			return
		}
		c.JSON(http.StatusOK, apps)
	}
}

// ---------------- WITHDRAW ----------------
func WithdrawApplication(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "application")
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		app, err := cfg.Store.Applications.Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch application")
			return
		}
		if app.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}

		if err := withdrawApplication(ctx, cfg, app, userID); err != nil {
			respondError(cfg, c, err, "could not withdraw application")
			return
		}

		updated, err := cfg.Store.Applications.Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch application")
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

// ---------------- REVIEW (admin) ----------------
func ReviewApplication(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminID, ok := mustUser(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "application")
		if !ok {
			return
		}
		var input struct {
			Decision string `json:"decision" binding:"required,oneof=accept reject"`
			Note     string `json:"note" binding:"max=1000"`
		}
		if !bindInput(c, &input) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		app, err := cfg.Store.Applications.Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch application")
			return
		}

		note := strings.TrimSpace(input.Note)
		change, err := workflow.DecideApplication(app.Status, input.Decision, note, adminID, time.Now())
		if err != nil {
			respondError(cfg, c, err, "")
			return
		}
		if err := cfg.Store.Applications.Transition(ctx, id, change); err != nil {
			respondError(cfg, c, err, "could not review application")
			return
		}
		if change.To == models.ApplicationRejected {
			dropProjectReminders(ctx, cfg, app)
		}

		body := fmt.Sprintf("Your application for %q was %s.", app.ProjectTitle, change.To)
		if note != "" {
			body += " Note: " + note
		}
		notify(ctx, cfg, app.UserID, "Application "+change.To, body,
			frontendLink(cfg, "projects", app.ProjectID.Hex()))

		updated, err := cfg.Store.Applications.Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch application")
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}
