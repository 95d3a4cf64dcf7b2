// Package exports writes listings as CSV for admins.
package exports

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	models "github.com/phillip/volunteer-hub-go/models"
	store "github.com/phillip/volunteer-hub-go/store"
)

// Export kinds
const (
	KindProjects      = "projects"
	KindEvents        = "events"
	KindApplications  = "applications"
	KindRegistrations = "registrations"
)

func ValidKind(kind string) bool {
	switch kind {
	case KindProjects, KindEvents, KindApplications, KindRegistrations:
		return true
	}
	return false
}

// Filename is the attachment name for kind at now.
func Filename(kind string, now time.Time) string {
	return fmt.Sprintf("%s-%s.csv", kind, now.UTC().Format("20060102-150405"))
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func tsp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return ts(*t)
}

func list(items []string) string { return strings.Join(items, ";") }

func itoa(n int) string { return strconv.Itoa(n) }

// safeCell stops spreadsheets from reading user text as a formula.
func safeCell(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

func write(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		for i := range row {
			row[i] = safeCell(row[i])
		}
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

var baseHeader = []string{
	"id", "title", "organization", "category", "location", "remote", "status", "is_visible",
	"contact_name", "contact_email", "contact_phone", "submitted_by", "created_at", "updated_at",
}

func baseRow(b models.SubmissionBase) []string {
	return []string{
		b.ID.Hex(), b.Title, b.Organization, b.Category, b.Location, strconv.FormatBool(b.Remote),
		b.Status, strconv.FormatBool(b.IsVisible), b.ContactName, b.ContactEmail, b.ContactPhone,
		b.SubmittedBy.Hex(), ts(b.CreatedAt), ts(b.UpdatedAt),
	}
}

func Projects(w io.Writer, items []models.ProjectSubmission) error {
	header := append(append([]string{}, baseHeader...), "start_date", "end_date", "volunteers_needed", "skills", "commitment")
	rows := make([][]string, 0, len(items))
	for _, p := range items {
		rows = append(rows, append(baseRow(p.SubmissionBase),
			tsp(p.StartDate), tsp(p.EndDate), itoa(p.VolunteersNeeded), list(p.Skills), p.Commitment))
	}
	return write(w, header, rows)
}

func Events(w io.Writer, items []models.EventSubmission) error {
	header := append(append([]string{}, baseHeader...), "event_date", "start_time", "end_time", "capacity", "registration_deadline")
	rows := make([][]string, 0, len(items))
	for _, e := range items {
		rows = append(rows, append(baseRow(e.SubmissionBase),
			tsp(e.EventDate), e.StartTime, e.EndTime, itoa(e.Capacity), tsp(e.RegistrationDeadline)))
	}
	return write(w, header, rows)
}

func Applications(w io.Writer, items []models.ProjectApplicationEntry) error {
	header := []string{
		"id", "project_id", "project_title", "user_id", "name", "email", "phone",
		"skills", "availability", "motivation", "status", "created_at", "updated_at",
	}
	rows := make([][]string, 0, len(items))
	for _, a := range items {
		rows = append(rows, []string{
			a.ID.Hex(), a.ProjectID.Hex(), a.ProjectTitle, a.UserID.Hex(), a.Name, a.Email, a.Phone,
			list(a.Skills), a.Availability, a.Motivation, a.Status, ts(a.CreatedAt), ts(a.UpdatedAt),
		})
	}
	return write(w, header, rows)
}

func Registrations(w io.Writer, items []models.EventRegistrationEntry) error {
	header := []string{
		"id", "event_id", "event_title", "user_id", "name", "email", "phone",
		"guests", "seats", "notes", "status", "created_at", "updated_at",
	}
	rows := make([][]string, 0, len(items))
	for _, r := range items {
		rows = append(rows, []string{
			r.ID.Hex(), r.EventID.Hex(), r.EventTitle, r.UserID.Hex(), r.Name, r.Email, r.Phone,
			itoa(r.Guests), itoa(r.Seats()), r.Notes, r.Status, ts(r.CreatedAt), ts(r.UpdatedAt),
		})
	}
	return write(w, header, rows)
}

// Write exports every record of kind from s as CSV.
func Write(ctx context.Context, s *store.Store, kind string, w io.Writer) error {
	switch kind {
	case KindProjects:
		items, err := s.Projects.List(ctx, store.SubmissionFilter{})
		if err != nil {
			return err
		}
		return Projects(w, items)
	case KindEvents:
		items, err := s.Events.List(ctx, store.SubmissionFilter{})
		if err != nil {
			return err
		}
		return Events(w, items)
	case KindApplications:
		items, err := s.Applications.List(ctx, store.EntryFilter{})
		if err != nil {
			return err
		}
		return Applications(w, items)
	case KindRegistrations:
		items, err := s.Registrations.List(ctx, store.EntryFilter{})
		if err != nil {
			return err
		}
		return Registrations(w, items)
	}
	return fmt.Errorf("unknown export kind %q", kind)
}
