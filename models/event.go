package models

import (
	"time"
)

type EventSubmission struct {
	SubmissionBase       `bson:",inline"`
	EventDate            *time.Time `bson:"event_date,omitempty" json:"event_date,omitempty"`
	StartTime            string     `bson:"start_time,omitempty" json:"start_time,omitempty"` // HH:MM
	EndTime              string     `bson:"end_time,omitempty" json:"end_time,omitempty"`
	Capacity             int        `bson:"capacity" json:"capacity"` // 0 = unlimited
	SeatsTaken           int        `bson:"seats_taken" json:"seats_taken"`
	RegistrationDeadline *time.Time `bson:"registration_deadline,omitempty" json:"registration_deadline,omitempty"`
}

// StartsAt combines EventDate and StartTime. ok is false when the event has no date.
func (e EventSubmission) StartsAt() (t time.Time, ok bool) {
	if e.EventDate == nil {
		return time.Time{}, false
	}
	t = *e.EventDate
	if e.StartTime != "" {
		if hm, err := time.Parse("15:04", e.StartTime); err == nil {
			y, m, d := t.Date()
			t = time.Date(y, m, d, hm.Hour(), hm.Minute(), 0, 0, t.Location())
		}
	}
	return t, true
}

// endOfDay stretches a date-only value (midnight UTC) to the last instant of that day.
func endOfDay(t time.Time) time.Time {
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Add(24*time.Hour - time.Nanosecond)
	}
	return t
}

// HasStarted reports whether the event is under way or over at now. An event
// without a start time counts as running until the end of its day.
func (e EventSubmission) HasStarted(now time.Time) bool {
	start, ok := e.StartsAt()
	if !ok {
		return false
	}
	if e.StartTime == "" {
		start = endOfDay(start)
	}
	return start.Before(now)
}

// DeadlinePassed reports whether registration closed before now. A date-only
// deadline stays open for the whole day.
func (e EventSubmission) DeadlinePassed(now time.Time) bool {
	if e.RegistrationDeadline == nil {
		return false
	}
	return endOfDay(*e.RegistrationDeadline).Before(now)
}
