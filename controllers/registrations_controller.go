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

var activeRegistration = []string{models.RegistrationRegistered, models.RegistrationWaitlisted}

// scheduleEventReminder queues the "event is coming up" email for a registered
// entry. Nothing is queued when the reminder time has already passed.
func scheduleEventReminder(ctx context.Context, cfg *config.Config, event *models.EventSubmission, reg *models.EventRegistrationEntry) {
	start, ok := event.StartsAt()
	if !ok {
		return
	}
	due := start.Add(-cfg.ReminderLeadTime)
	now := time.Now().UTC()
	if !due.After(now) {
		return
	}

	when := start.Format("Mon 2 Jan 2006")
	if event.StartTime != "" {
		when += " at " + event.StartTime
	}
	rem := &models.Reminder{
		ID:         primitive.NewObjectID(),
		UserID:     reg.UserID,
		Email:      reg.Email,
		Name:       reg.Name,
		Subject:    "Reminder: " + event.Title,
		Message:    fmt.Sprintf("%s starts %s.", event.Title, when),
		TargetType: models.TargetRegistration,
		TargetID:   reg.ID,
		DueAt:      due,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if event.Location != "" {
		rem.Message += " Location: " + event.Location + "."
	}
	if err := cfg.Store.Reminders.Create(ctx, rem); err != nil {
		cfg.Log.Error().Err(err).Str("registration_id", reg.ID.Hex()).Msg("could not schedule reminder")
	}
}

// promoteWaitlist moves waitlisted registrations of an event to registered,
// oldest first, while seats can be claimed. It stops at the first entry that
// does not fit so nobody is overtaken.
func promoteWaitlist(ctx context.Context, cfg *config.Config, eventID, by primitive.ObjectID) {
	log := cfg.Log.With().Str("event_id", eventID.Hex()).Logger()

	event, err := cfg.Store.Events.Get(ctx, eventID)
	if err != nil {
		log.Error().Err(err).Msg("waitlist: could not load event")
		return
	}
	waitlist, err := cfg.Store.Registrations.List(ctx, store.EntryFilter{
		TargetID: eventID,
		Statuses: []string{models.RegistrationWaitlisted},
		Oldest:   true,
	})
	if err != nil {
		log.Error().Err(err).Msg("waitlist: could not list entries")
		return
	}

	for _, reg := range waitlist {
		ok, err := cfg.Store.Events.ClaimSeats(ctx, eventID, reg.Seats())
		if err != nil {
			log.Error().Err(err).Msg("waitlist: could not claim seats")
			return
		}
		if !ok {
			return
		}
		if err := cfg.Store.Registrations.Transition(ctx, reg.ID, workflow.Promote(by, time.Now())); err != nil {
			// cancelled meanwhile
			log.Warn().Err(err).Str("registration_id", reg.ID.Hex()).Msg("waitlist: promotion skipped")
			releaseSeats(ctx, cfg, eventID, reg.Seats())
			continue
		}
		log.Info().Str("registration_id", reg.ID.Hex()).Msg("waitlist: promoted")
		reg := reg
		scheduleEventReminder(ctx, cfg, event, &reg)
		notify(ctx, cfg, reg.UserID,
			fmt.Sprintf("You have a place at %q", event.Title),
			"A seat opened up and your waitlisted registration is now confirmed.",
			frontendLink(cfg, "events", eventID.Hex()))
	}
}

func releaseSeats(ctx context.Context, cfg *config.Config, eventID primitive.ObjectID, n int) {
	if err := cfg.Store.Events.ReleaseSeats(ctx, eventID, n); err != nil {
		cfg.Log.Error().Err(err).Str("event_id", eventID.Hex()).Int("seats", n).Msg("could not release seats")
	}
}

// cancelRegistration cancels an active registration, drops its pending
// reminders and hands freed seats to the waitlist.
func cancelRegistration(ctx context.Context, cfg *config.Config, reg *models.EventRegistrationEntry, by primitive.ObjectID) error {
	change, err := workflow.CancelRegistration(reg.Status, by, time.Now())
	if err != nil {
		return err
	}
	if err := cfg.Store.Registrations.Transition(ctx, reg.ID, change); err != nil {
		return err
	}
	if _, err := cfg.Store.Reminders.DeleteUnsentForTarget(ctx, reg.ID); err != nil {
		cfg.Log.Error().Err(err).Str("registration_id", reg.ID.Hex()).Msg("could not remove reminders")
	}
	if _, err := cfg.Store.Reminders.DeleteUnsent(ctx, reg.UserID, reg.EventID); err != nil {
		cfg.Log.Error().Err(err).Str("registration_id", reg.ID.Hex()).Msg("could not remove reminders")
	}
	if reg.Status == models.RegistrationRegistered {
		releaseSeats(ctx, cfg, reg.EventID, reg.Seats())
		promoteWaitlist(ctx, cfg, reg.EventID, by)
	}
	return nil
}

// ---------------- REGISTER ----------------
func RegisterForEvent(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		eventID, ok := paramID(c, "event")
		if !ok {
			return
		}
		var input struct {
			Name   string `json:"name" binding:"max=200"`
			Email  string `json:"email" binding:"omitempty,email"`
			Phone  string `json:"phone" binding:"max=50"`
			Guests int    `json:"guests" binding:"min=0,max=20"`
			Notes  string `json:"notes" binding:"max=1000"`
		}
		if !bindInput(c, &input) {
			return
		}
		if !moderate(cfg, c, input.Name, input.Notes) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		event, err := cfg.Store.Events.Get(ctx, eventID)
		if err != nil || !event.IsPublic() {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		now := time.Now().UTC()
		if event.HasStarted(now) {
			c.JSON(http.StatusConflict, gin.H{"error": "event has already taken place"})
			return
		}
		if event.DeadlinePassed(now) {
			c.JSON(http.StatusConflict, gin.H{"error": "registration deadline has passed"})
			return
		}

		existing, err := cfg.Store.Registrations.List(ctx, store.EntryFilter{
			TargetID: eventID, UserID: userID, Statuses: activeRegistration,
		})
		if err != nil {
			respondError(cfg, c, err, "could not check registrations")
			return
		}
		if len(existing) > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "already registered for this event"})
			return
		}

		user, err := cfg.Store.Users.Get(ctx, userID)
		if err != nil {
			respondError(cfg, c, err, "could not load user")
			return
		}
		reg := &models.EventRegistrationEntry{
			ID:         primitive.NewObjectID(),
			EventID:    eventID,
			EventTitle: event.Title,
			UserID:     userID,
			Name:       firstNonEmpty(input.Name, user.DisplayName),
			Email:      strings.ToLower(firstNonEmpty(input.Email, user.Email)),
			Phone:      firstNonEmpty(input.Phone, user.Phone),
			Guests:     input.Guests,
			Notes:      strings.TrimSpace(input.Notes),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		claimed, err := cfg.Store.Events.ClaimSeats(ctx, eventID, reg.Seats())
		if err != nil {
			respondError(cfg, c, err, "could not claim seats")
			return
		}
		reg.Status = models.RegistrationWaitlisted
		if claimed {
			reg.Status = models.RegistrationRegistered
		}
		reg.AuditTrail = []models.AuditEntry{workflow.Registered(reg.Status, userID, now)}

		if err := cfg.Store.Registrations.Create(ctx, reg); err != nil {
			if claimed {
				releaseSeats(ctx, cfg, eventID, reg.Seats())
			}
			respondError(cfg, c, err, "could not register")
			return
		}
		if reg.Status == models.RegistrationRegistered {
			scheduleEventReminder(ctx, cfg, event, reg)
		}

		c.JSON(http.StatusCreated, reg)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// ---------------- LIST (event) ----------------
func ListEventRegistrations(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		eventID, ok := paramID(c, "event")
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		event, err := cfg.Store.Events.Get(ctx, eventID)
		if err != nil {
			respondError(cfg, c, err, "could not fetch event")
			return
		}
		if !isAdmin(c) && !event.OwnedBy(userID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}

		regs, err := cfg.Store.Registrations.List(ctx, store.EntryFilter{TargetID: eventID, Oldest: true})
		if err != nil {
			respondError(cfg, c, err, "could not fetch registrations")
			return
		}
		c.JSON(http.StatusOK, regs)
	}
}

// ---------------- LIST (mine) ----------------
func MyRegistrations(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		regs, err := cfg.Store.Registrations.List(ctx, store.EntryFilter{UserID: userID})
		if err != nil {
			respondError(cfg, c, err, "could not fetch registrations")
			return
		}
		c.JSON(http.StatusOK, regs)
	}
}

// ---------------- LIST (admin) ----------------
func ListAllRegistrations(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := queryID(c, "event_id")
		if !ok {
			return
		}
		f := store.EntryFilter{TargetID: eventID}
		if s := c.Query("status"); s != "" {
			f.Statuses = []string{s}
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		regs, err := cfg.Store.Registrations.List(ctx, f)
		if err != nil {
			respondError(cfg, c, err, "could not fetch registrations")
			return
		}
		c.JSON(http.StatusOK, regs)
	}
}

// ---------------- CANCEL ----------------
func CancelRegistration(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "registration")
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		reg, err := cfg.Store.Registrations.Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch registration")
			return
		}
		if reg.UserID != userID && !isAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}

		if err := cancelRegistration(ctx, cfg, reg, userID); err != nil {
			respondError(cfg, c, err, "could not cancel registration")
			return
		}

		updated, err := cfg.Store.Registrations.Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch registration")
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}
