package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/volunteer-hub-go/config"
	models "github.com/phillip/volunteer-hub-go/models"
	store "github.com/phillip/volunteer-hub-go/store"
	workflow "github.com/phillip/volunteer-hub-go/workflow"
)

var errNotEnoughSeats = errors.New("not enough seats for the extra guests")

// editTarget is the part of a target record edit requests need.
type editTarget struct {
	owner  primitive.ObjectID
	status string
	active bool
	title  string
	link   string
}

func loadEditTarget(ctx context.Context, cfg *config.Config, targetType string, id primitive.ObjectID) (editTarget, error) {
	switch targetType {
	case models.TargetProject:
		p, err := cfg.Store.Projects.Get(ctx, id)
		if err != nil {
			return editTarget{}, err
		}
		return editTarget{owner: p.SubmittedBy, status: p.Status, active: true, title: p.Title,
			link: frontendLink(cfg, "projects", id.Hex())}, nil
	case models.TargetEvent:
		e, err := cfg.Store.Events.Get(ctx, id)
		if err != nil {
			return editTarget{}, err
		}
		return editTarget{owner: e.SubmittedBy, status: e.Status, active: true, title: e.Title,
			link: frontendLink(cfg, "events", id.Hex())}, nil
	case models.TargetApplication:
		a, err := cfg.Store.Applications.Get(ctx, id)
		if err != nil {
			return editTarget{}, err
		}
		return editTarget{owner: a.UserID, status: a.Status, active: a.Active(), title: a.ProjectTitle,
			link: frontendLink(cfg, "projects", a.ProjectID.Hex())}, nil
	case models.TargetRegistration:
		r, err := cfg.Store.Registrations.Get(ctx, id)
		if err != nil {
			return editTarget{}, err
		}
		return editTarget{owner: r.UserID, status: r.Status, active: r.Active(), title: r.EventTitle,
			link: frontendLink(cfg, "events", r.EventID.Hex())}, nil
	}
	return editTarget{}, fmt.Errorf("%w: unknown target type %q", workflow.ErrInvalidValue, targetType)
}

// applySubmissionEdit merges changes into a project or event after checking
// the merged record.
func applySubmissionEdit[T any](ctx context.Context, cfg *config.Config, k submissionKind[T], id primitive.ObjectID, changes bson.M, note string, by primitive.ObjectID) error {
	doc, err := k.repo(cfg).Get(ctx, id)
	if err != nil {
		return err
	}
	merged, err := mergeDoc(doc, changes)
	if err != nil {
		return err
	}
	if err := k.validate(merged); err != nil {
		return fmt.Errorf("%w: %v", workflow.ErrInvalidValue, err)
	}
	if err := k.repo(cfg).Transition(ctx, id, workflow.ApplyEdit(k.base(doc).Status, changes, note, by, time.Now())); err != nil {
		return err
	}
	if k.changed != nil {
		k.changed(ctx, cfg, id, changes, by)
	}
	return nil
}

func applyRegistrationEdit(ctx context.Context, cfg *config.Config, id primitive.ObjectID, changes bson.M, note string, by primitive.ObjectID) error {
	reg, err := cfg.Store.Registrations.Get(ctx, id)
	if err != nil {
		return err
	}

	extra := 0
	if raw, ok := changes["guests"]; ok && reg.Status == models.RegistrationRegistered {
		guests, ok := workflow.IntValue(raw)
		if !ok {
			return fmt.Errorf("%w: guests", workflow.ErrInvalidValue)
		}
		extra = guests - reg.Guests
	}
	if extra > 0 {
		claimed, err := cfg.Store.Events.ClaimSeats(ctx, reg.EventID, extra)
		if err != nil {
			return err
		}
		if !claimed {
			return errNotEnoughSeats
		}
	}

	if err := cfg.Store.Registrations.Transition(ctx, id, workflow.ApplyEdit(reg.Status, changes, note, by, time.Now())); err != nil {
		if extra > 0 {
			releaseSeats(ctx, cfg, reg.EventID, extra)
		}
		return err
	}
	if extra < 0 {
		releaseSeats(ctx, cfg, reg.EventID, -extra)
		promoteWaitlist(ctx, cfg, reg.EventID, by)
	}
	return nil
}

func applyEdit(ctx context.Context, cfg *config.Config, er *models.EditRequest, by primitive.ObjectID) error {
	changes := bson.M(er.Changes)
	note := "fields: " + strings.Join(workflow.ChangedFields(er.Changes), ", ")

	switch er.TargetType {
	case models.TargetProject:
		return applySubmissionEdit(ctx, cfg, projects, er.TargetID, changes, note, by)
	case models.TargetEvent:
		return applySubmissionEdit(ctx, cfg, events, er.TargetID, changes, note, by)
	case models.TargetApplication:
		app, err := cfg.Store.Applications.Get(ctx, er.TargetID)
		if err != nil {
			return err
		}
		return cfg.Store.Applications.Transition(ctx, er.TargetID, workflow.ApplyEdit(app.Status, changes, note, by, time.Now()))
	case models.TargetRegistration:
		return applyRegistrationEdit(ctx, cfg, er.TargetID, changes, note, by)
	}
	return fmt.Errorf("%w: unknown target type %q", workflow.ErrInvalidValue, er.TargetType)
}

// ---------------- CREATE ----------------
func CreateEditRequest(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		var input struct {
			TargetType string                 `json:"target_type" binding:"required,oneof=project event application registration"`
			TargetID   string                 `json:"target_id" binding:"required"`
			Changes    map[string]interface{} `json:"changes" binding:"required"`
			Reason     string                 `json:"reason" binding:"max=1000"`
		}
		if !bindInput(c, &input) {
			return
		}
		targetID, err := primitive.ObjectIDFromHex(input.TargetID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target_id"})
			return
		}

		changes, err := workflow.NormalizeChanges(input.TargetType, input.Changes)
		if err != nil {
			respondError(cfg, c, err, "")
			return
		}
		if !moderate(cfg, c, append(stringValues(changes), input.Reason)...) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		target, err := loadEditTarget(ctx, cfg, input.TargetType, targetID)
		if err != nil {
			respondError(cfg, c, err, "could not fetch target")
			return
		}
		if target.owner != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "you can only request changes to your own records"})
			return
		}
		if !target.active {
			c.JSON(http.StatusConflict, gin.H{"error": input.TargetType + " is " + target.status + " and can no longer be changed"})
			return
		}

		pending, err := cfg.Store.EditRequests.List(ctx, store.EditRequestFilter{
			Status: models.EditPending, RequestedBy: userID, TargetID: targetID,
		})
		if err != nil {
			respondError(cfg, c, err, "could not check edit requests")
			return
		}
		if len(pending) > 0 {
			c.JSON(http.StatusConflict, gin.H{
				"error": "an edit request for this record is already pending",
				"id":    pending[0].ID.Hex(),
			})
			return
		}

		now := time.Now().UTC()
		er := &models.EditRequest{
			ID:          primitive.NewObjectID(),
			TargetType:  input.TargetType,
			TargetID:    targetID,
			RequestedBy: userID,
			Changes:     changes,
			Reason:      strings.TrimSpace(input.Reason),
			Status:      models.EditPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := cfg.Store.EditRequests.Create(ctx, er); err != nil {
			respondError(cfg, c, err, "could not create edit request")
			return
		}
		c.JSON(http.StatusCreated, er)
	}
}

// ---------------- LIST (mine) ----------------
func MyEditRequests(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := cfg.Store.EditRequests.List(ctx, store.EditRequestFilter{RequestedBy: userID})
		if err != nil {
			respondError(cfg, c, err, "could not fetch edit requests")
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// ---------------- LIST (admin) ----------------
func ListEditRequests(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		targetID, ok := queryID(c, "target_id")
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := cfg.Store.EditRequests.List(ctx, store.EditRequestFilter{
			Status:   c.Query("status"),
			TargetID: targetID,
		})
		if err != nil {
			respondError(cfg, c, err, "could not fetch edit requests")
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// ---------------- REVIEW (admin) ----------------
func ReviewEditRequest(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminID, ok := mustUser(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "edit request")
		if !ok {
			return
		}
		var input struct {
			Decision string `json:"decision" binding:"required,oneof=approve reject"`
			Note     string `json:"note" binding:"max=1000"`
		}
		if !bindInput(c, &input) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		er, err := cfg.Store.EditRequests.Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch edit request")
			return
		}
		if er.Status != models.EditPending {
			c.JSON(http.StatusConflict, gin.H{"error": "edit request was already " + er.Status})
			return
		}

		status := models.EditRejected
		if input.Decision == workflow.DecisionApprove {
			status = models.EditApproved
		}
		now := time.Now().UTC()
		note := strings.TrimSpace(input.Note)

		// the decision claims the request; only the reviewer who wins it applies the edit
		if err := cfg.Store.EditRequests.Decide(ctx, id, bson.M{
			"status":      status,
			"reviewed_by": adminID,
			"review_note": note,
			"reviewed_at": now,
		}); err != nil {
			if errors.Is(err, store.ErrConflict) {
				c.JSON(http.StatusConflict, gin.H{"error": "edit request was already reviewed"})
				return
			}
			respondError(cfg, c, err, "could not review edit request")
			return
		}

		if status == models.EditApproved {
			if err := applyEdit(ctx, cfg, er, adminID); err != nil {
				if reopenErr := cfg.Store.EditRequests.Reopen(ctx, id, status); reopenErr != nil {
					cfg.Log.Error().Err(reopenErr).Str("edit_request_id", id.Hex()).Msg("could not reopen edit request")
				}
				if errors.Is(err, errNotEnoughSeats) {
					c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
					return
				}
				respondError(cfg, c, err, "could not apply edit request")
				return
			}
		}

		if target, err := loadEditTarget(ctx, cfg, er.TargetType, er.TargetID); err == nil {
			body := fmt.Sprintf("Your requested changes to %q were %s.", target.title, status)
			if note != "" {
				body += " Note: " + note
			}
			notify(ctx, cfg, er.RequestedBy, "Edit request "+status, body, target.link)
		}

		updated, err := cfg.Store.EditRequests.Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch edit request")
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}
