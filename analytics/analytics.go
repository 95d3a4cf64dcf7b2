// Package analytics computes the admin dashboard figures from record snapshots.
package analytics

import (
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/volunteer-hub-go/models"
)

const (
	monthsShown = 12
	topProjects = 5
)

type Snapshot struct {
	Projects      []models.ProjectSubmission
	Events        []models.EventSubmission
	Applications  []models.ProjectApplicationEntry
	Registrations []models.EventRegistrationEntry
	EditRequests  []models.EditRequest
	Users         int
}

type MonthCount struct {
	Month string `json:"month"` // YYYY-MM
	Count int    `json:"count"`
}

type ProjectCount struct {
	ID           primitive.ObjectID `json:"id"`
	Title        string             `json:"title"`
	Applications int                `json:"applications"`
}

type Overview struct {
	Users            int            `json:"users"`
	Projects         map[string]int `json:"projects"`
	Events           map[string]int `json:"events"`
	Applications     map[string]int `json:"applications"`
	Registrations    map[string]int `json:"registrations"`
	EditRequests     map[string]int `json:"edit_requests"`
	ApprovalRate     float64        `json:"approval_rate"`
	MeanReviewHours  float64        `json:"mean_review_hours"`
	ByCategory       map[string]int `json:"by_category"`
	ByMonth          []MonthCount   `json:"by_month"`
	TopProjects      []ProjectCount `json:"top_projects"`
	VolunteersNeeded int            `json:"volunteers_needed"`
	RegisteredSeats  int            `json:"registered_seats"`
}

func counter() map[string]int { return map[string]int{"total": 0} }

func bump(m map[string]int, status string) {
	m[status]++
	m["total"]++
}

// Compute builds the overview. now anchors the monthly series.
func Compute(s Snapshot, now time.Time) Overview {
	o := Overview{
		Users:         s.Users,
		Projects:      counter(),
		Events:        counter(),
		Applications:  counter(),
		Registrations: counter(),
		EditRequests:  counter(),
		ByCategory:    map[string]int{},
		TopProjects:   []ProjectCount{},
	}

	months := lastMonths(now, monthsShown)
	byMonth := make(map[string]int, len(months))

	var bases []models.SubmissionBase
	for _, p := range s.Projects {
		bump(o.Projects, p.Status)
		bases = append(bases, p.SubmissionBase)
		if p.Status == models.StatusApproved {
			o.VolunteersNeeded += p.VolunteersNeeded
		}
	}
	for _, e := range s.Events {
		bump(o.Events, e.Status)
		bases = append(bases, e.SubmissionBase)
	}

	var approved, decided int
	var reviewHours []float64
	for _, b := range bases {
		if b.Category != "" {
			o.ByCategory[b.Category]++
		}
		byMonth[b.CreatedAt.UTC().Format("2006-01")]++
		switch b.Status {
		case models.StatusApproved:
			approved++
			decided++
		case models.StatusRejected:
			decided++
		}
		if h, ok := reviewTime(b.AuditTrail); ok {
			reviewHours = append(reviewHours, h)
		}
	}
	if decided > 0 {
		o.ApprovalRate = round2(float64(approved) / float64(decided))
	}
	if len(reviewHours) > 0 {
		var sum float64
		for _, h := range reviewHours {
			sum += h
		}
		o.MeanReviewHours = round2(sum / float64(len(reviewHours)))
	}

	for _, m := range months {
		o.ByMonth = append(o.ByMonth, MonthCount{Month: m, Count: byMonth[m]})
	}

	perProject := map[primitive.ObjectID]int{}
	for _, a := range s.Applications {
		bump(o.Applications, a.Status)
		if a.Status != models.ApplicationWithdrawn {
			perProject[a.ProjectID]++
		}
	}
	for _, p := range s.Projects {
		if n := perProject[p.ID]; n > 0 {
			o.TopProjects = append(o.TopProjects, ProjectCount{ID: p.ID, Title: p.Title, Applications: n})
		}
	}
	sort.SliceStable(o.TopProjects, func(i, j int) bool {
		a, b := o.TopProjects[i], o.TopProjects[j]
		if a.Applications != b.Applications {
			return a.Applications > b.Applications
		}
		return a.Title < b.Title
	})
	if len(o.TopProjects) > topProjects {
		o.TopProjects = o.TopProjects[:topProjects]
	}

	for _, r := range s.Registrations {
		bump(o.Registrations, r.Status)
		if r.Status == models.RegistrationRegistered {
			o.RegisteredSeats += r.Seats()
		}
	}
	for _, er := range s.EditRequests {
		bump(o.EditRequests, er.Status)
	}
	return o
}

// reviewTime measures from the first submission to the first decision after it.
func reviewTime(trail []models.AuditEntry) (float64, bool) {
	var submitted *time.Time
	for i := range trail {
		e := trail[i]
		switch e.Action {
		case models.ActionSubmitted:
			if submitted == nil {
				submitted = &trail[i].At
			}
		case models.ActionApproved, models.ActionRejected:
			if submitted != nil && !e.At.Before(*submitted) {
				return e.At.Sub(*submitted).Hours(), true
			}
		}
	}
	return 0, false
}

// lastMonths lists n months ending with the month of now, oldest first.
func lastMonths(now time.Time, n int) []string {
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	out := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, first.AddDate(0, -i, 0).Format("2006-01"))
	}
	return out
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
