// Package reminders delivers due reminder emails in the background.
package reminders

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"

	models "github.com/phillip/volunteer-hub-go/models"
	store "github.com/phillip/volunteer-hub-go/store"
	utils "github.com/phillip/volunteer-hub-go/utils"
)

const (
	sendTimeout = 15 * time.Second
	// lease is how long a claimed reminder stays locked if its pass dies mid-send.
	lease = 5 * time.Minute
)

type Scheduler struct {
	Reminders   store.Reminders
	Mailer      utils.Mailer
	Log         zerolog.Logger
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	FrontendURL string

	now func() time.Time
}

// Result counts one pass.
type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

func (s *Scheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// Run polls every Interval until ctx is cancelled. The first pass runs at once.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Log.Info().Dur("interval", s.Interval).Msg("reminder scheduler started")
	for {
		if res, err := s.RunOnce(ctx); err != nil {
			if ctx.Err() == nil {
				s.Log.Error().Err(err).Msg("reminder pass failed")
			}
		} else if res.Sent+res.Failed > 0 {
			s.Log.Info().Int("sent", res.Sent).Int("failed", res.Failed).Msg("reminder pass")
		}

		select {
		case <-ctx.Done():
			s.Log.Info().Msg("reminder scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce sends at most BatchSize due reminders. Each reminder is claimed
// before sending, so concurrent passes never mail the same one twice. A failed
// send keeps the attempt; reminders out of attempts are no longer picked up.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	due, err := s.Reminders.Due(ctx, s.clock(), s.MaxAttempts, s.BatchSize)
	if err != nil {
		return res, err
	}

	for _, r := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		now := s.clock()
		if err := s.Reminders.Claim(ctx, r.ID, r.Attempts, now, now.Add(lease)); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return res, err
		}

		sendErr := s.send(ctx, r)
		fields := bson.M{}
		if sendErr == nil {
			fields["sent"] = true
			fields["sent_at"] = s.clock()
			fields["last_error"] = ""
			res.Sent++
		} else {
			fields["last_error"] = sendErr.Error()
			fields["locked_until"] = time.Time{}
			res.Failed++
			ev := s.Log.Warn()
			if r.Attempts+1 >= s.MaxAttempts {
				ev = s.Log.Error().Bool("giving_up", true)
			}
			ev.Err(sendErr).Str("reminder_id", r.ID.Hex()).Int("attempt", r.Attempts+1).Msg("reminder send failed")
		}
		if err := s.Reminders.Update(ctx, r.ID, fields); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *Scheduler) send(ctx context.Context, r models.Reminder) error {
	link := ""
	if s.FrontendURL != "" {
		link = s.FrontendURL + "/" + r.TargetType + "s/" + r.TargetID.Hex()
	}
	html, err := utils.RenderEmail(utils.EmailData{Name: r.Name, Lines: []string{r.Message}, Link: link})
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return s.Mailer.Send(sendCtx, utils.Message{
		To:      r.Email,
		ToName:  r.Name,
		Subject: r.Subject,
		HTML:    html,
		Text:    r.Message,
	})
}
