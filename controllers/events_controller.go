package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/volunteer-hub-go/config"
	filters "github.com/phillip/volunteer-hub-go/filters"
	models "github.com/phillip/volunteer-hub-go/models"
	store "github.com/phillip/volunteer-hub-go/store"
	utils "github.com/phillip/volunteer-hub-go/utils"
)

var events = submissionKind[models.EventSubmission]{
	name:   models.TargetEvent,
	folder: "events",
	repo: func(cfg *config.Config) store.SubmissionRepository[models.EventSubmission] {
		return cfg.Store.Events
	},
	base:     func(e *models.EventSubmission) *models.SubmissionBase { return &e.SubmissionBase },
	fields:   filters.EventFields,
	validate: validateEvent,
	cascade:  deleteEventEntries,
	changed: func(ctx context.Context, cfg *config.Config, id primitive.ObjectID, changes bson.M, by primitive.ObjectID) {
		if _, ok := changes["capacity"]; ok {
			promoteWaitlist(ctx, cfg, id, by)
		}
		_, moved := changes["event_date"]
		if _, ok := changes["start_time"]; ok {
			moved = true
		}
		if moved {
			rescheduleEventReminders(ctx, cfg, id)
		}
	},
}

// rescheduleEventReminders replaces the pending "event is coming up" reminders
// of registered entries after the event moved.
func rescheduleEventReminders(ctx context.Context, cfg *config.Config, eventID primitive.ObjectID) {
	log := cfg.Log.With().Str("event_id", eventID.Hex()).Logger()

	event, err := cfg.Store.Events.Get(ctx, eventID)
	if err != nil {
		log.Error().Err(err).Msg("reminders: could not load event")
		return
	}
	regs, err := cfg.Store.Registrations.List(ctx, store.EntryFilter{
		TargetID: eventID,
		Statuses: []string{models.RegistrationRegistered},
	})
	if err != nil {
		log.Error().Err(err).Msg("reminders: could not list registrations")
		return
	}
	for _, reg := range regs {
		if _, err := cfg.Store.Reminders.DeleteUnsentForTarget(ctx, reg.ID); err != nil {
			log.Error().Err(err).Str("registration_id", reg.ID.Hex()).Msg("reminders: could not drop old reminder")
			continue
		}
		reg := reg
		scheduleEventReminder(ctx, cfg, event, &reg)
	}
}

func validateEvent(e *models.EventSubmission) error {
	if e.Capacity < 0 {
		return errors.New("capacity must not be negative")
	}
	if e.StartTime != "" && !utils.ValidClock(e.StartTime) {
		return errors.New("start_time must be HH:MM")
	}
	if e.EndTime != "" && !utils.ValidClock(e.EndTime) {
		return errors.New("end_time must be HH:MM")
	}
	if e.StartTime != "" && e.EndTime != "" {
		start, _ := time.Parse("15:04", e.StartTime)
		end, _ := time.Parse("15:04", e.EndTime)
		if !end.After(start) {
			return errors.New("end_time must be after start_time")
		}
	}
	if e.RegistrationDeadline != nil {
		if start, ok := e.StartsAt(); ok && e.RegistrationDeadline.After(start) {
			return errors.New("registration_deadline must not be after the event starts")
		}
	}
	return nil
}

// deleteEventEntries removes registrations of a deleted event and any reminders
// that have not gone out yet.
func deleteEventEntries(ctx context.Context, cfg *config.Config, e *models.EventSubmission) error {
	regs, err := cfg.Store.Registrations.List(ctx, store.EntryFilter{TargetID: e.ID})
	if err != nil {
		return err
	}
	for _, reg := range regs {
		if _, err := cfg.Store.Reminders.DeleteUnsentForTarget(ctx, reg.ID); err != nil {
			return err
		}
	}
	if _, err := cfg.Store.Registrations.DeleteForTarget(ctx, e.ID); err != nil {
		return err
	}
	_, err = cfg.Store.Reminders.DeleteUnsentForTarget(ctx, e.ID)
	return err
}

// ---------------- CREATE ----------------
func CreateEvent(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			submissionInput
			EventDate            *string `json:"event_date" form:"event_date" binding:"required"`
			StartTime            string  `json:"start_time" form:"start_time" binding:"omitempty,clock"`
			EndTime              string  `json:"end_time" form:"end_time" binding:"omitempty,clock"`
			Capacity             int     `json:"capacity" form:"capacity" binding:"min=0"`
			RegistrationDeadline *string `json:"registration_deadline" form:"registration_deadline"`
		}

		build := func(userID primitive.ObjectID, images []string, now time.Time) (*models.EventSubmission, error) {
			date, err := utils.ParseOptionalDate(input.EventDate)
			if err != nil || date == nil {
				return nil, errors.New("invalid event_date format, use RFC3339 or YYYY-MM-DD")
			}
			deadline, err := utils.ParseOptionalDate(input.RegistrationDeadline)
			if err != nil {
				return nil, errors.New("invalid registration_deadline format, use RFC3339 or YYYY-MM-DD")
			}
			e := &models.EventSubmission{
				SubmissionBase:       input.base(userID, images, now),
				EventDate:            date,
				StartTime:            strings.TrimSpace(input.StartTime),
				EndTime:              strings.TrimSpace(input.EndTime),
				Capacity:             input.Capacity,
				RegistrationDeadline: deadline,
			}
			return e, validateEvent(e)
		}
		create(cfg, events, c, &input, func() []string { return input.texts() }, build)
	}
}

func ListEvents(cfg *config.Config) gin.HandlerFunc     { return listPublic(cfg, events) }
func ListAllEvents(cfg *config.Config) gin.HandlerFunc  { return listAll(cfg, events) }
func MyEvents(cfg *config.Config) gin.HandlerFunc       { return listMine(cfg, events) }
func GetEvent(cfg *config.Config) gin.HandlerFunc       { return getOne(cfg, events) }
func UpdateEvent(cfg *config.Config) gin.HandlerFunc    { return update(cfg, events) }
func AddEventImages(cfg *config.Config) gin.HandlerFunc { return addImages(cfg, events) }
func ResubmitEvent(cfg *config.Config) gin.HandlerFunc  { return resubmit(cfg, events) }
func DeleteEvent(cfg *config.Config) gin.HandlerFunc    { return remove(cfg, events) }
func ReviewEvent(cfg *config.Config) gin.HandlerFunc    { return review(cfg, events) }
func SetEventVisibility(cfg *config.Config) gin.HandlerFunc {
	return visibility(cfg, events)
}
