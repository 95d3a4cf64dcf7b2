// Package filters narrows, sorts and pages in-memory listings.
package filters

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	models "github.com/phillip/volunteer-hub-go/models"
	moderation "github.com/phillip/volunteer-hub-go/moderation"
	utils "github.com/phillip/volunteer-hub-go/utils"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Sort orders
const (
	SortNewest = "newest"
	SortOldest = "oldest"
	SortTitle  = "title"
	SortDate   = "date"
)

// Item is the filterable view of a listing record.
type Item struct {
	Title        string
	Description  string
	Organization string
	Location     string
	Category     string
	Status       string
	Skills       []string
	Remote       bool
	Date         *time.Time // primary date used by from/to and the date sort
	CreatedAt    time.Time
}

type Criteria struct {
	Query    string
	Category string
	Location string
	Status   string
	Skills   []string
	Remote   *bool
	From     *time.Time
	To       *time.Time
	Sort     string
	Offset   int
	Limit    int
}

// FromQuery reads criteria from URL query parameters.
func FromQuery(q url.Values) (Criteria, error) {
	c := Criteria{
		Query:    strings.TrimSpace(q.Get("q")),
		Category: strings.TrimSpace(q.Get("category")),
		Location: strings.TrimSpace(q.Get("location")),
		Status:   strings.TrimSpace(q.Get("status")),
		Sort:     q.Get("sort"),
		Limit:    DefaultLimit,
	}

	for _, s := range q["skills"] {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				c.Skills = append(c.Skills, p)
			}
		}
	}

	if s := q.Get("remote"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return c, fmt.Errorf("remote must be true or false")
		}
		c.Remote = &b
	}

	if s := q.Get("from"); s != "" {
		t, err := utils.ParseDate(s)
		if err != nil {
			return c, fmt.Errorf("from: %w", err)
		}
		c.From = &t
	}
	if s := q.Get("to"); s != "" {
		t, err := utils.ParseDate(s)
		if err != nil {
			return c, fmt.Errorf("to: %w", err)
		}
		// a bare date covers the whole day
		if t.Equal(t.Truncate(24 * time.Hour)) {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		c.To = &t
	}
	if c.From != nil && c.To != nil && c.From.After(*c.To) {
		return c, fmt.Errorf("from must be before to")
	}

	switch c.Sort {
	case "", SortNewest:
		c.Sort = SortNewest
	case SortOldest, SortTitle, SortDate:
	default:
		return c, fmt.Errorf("sort must be one of newest, oldest, title, date")
	}

	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return c, fmt.Errorf("offset must be a non-negative integer")
		}
		c.Offset = n
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return c, fmt.Errorf("limit must be a positive integer")
		}
		c.Limit = n
	}
	if c.Limit > MaxLimit {
		c.Limit = MaxLimit
	}
	return c, nil
}

func contains(haystack, needle string) bool {
	return strings.Contains(moderation.Normalize(haystack), needle)
}

// Match reports whether one item passes every criterion.
func (c Criteria) Match(it Item) bool {
	if c.Query != "" {
		q := moderation.Normalize(c.Query)
		hit := contains(it.Title, q) || contains(it.Description, q) || contains(it.Organization, q) ||
			contains(it.Location, q) || contains(it.Category, q)
		for _, s := range it.Skills {
			hit = hit || contains(s, q)
		}
		if !hit {
			return false
		}
	}
	if c.Category != "" && moderation.Normalize(it.Category) != moderation.Normalize(c.Category) {
		return false
	}
	if c.Location != "" && !contains(it.Location, moderation.Normalize(c.Location)) {
		return false
	}
	if c.Status != "" && it.Status != c.Status {
		return false
	}
	if len(c.Skills) > 0 && !anySkill(it.Skills, c.Skills) {
		return false
	}
	if c.Remote != nil && it.Remote != *c.Remote {
		return false
	}
	if c.From != nil || c.To != nil {
		if it.Date == nil {
			return false
		}
		if c.From != nil && it.Date.Before(*c.From) {
			return false
		}
		if c.To != nil && it.Date.After(*c.To) {
			return false
		}
	}
	return true
}

func anySkill(have, want []string) bool {
	for _, w := range want {
		w = moderation.Normalize(w)
		for _, h := range have {
			if moderation.Normalize(h) == w {
				return true
			}
		}
	}
	return false
}

// Apply filters, sorts and pages items. total counts the matches before paging.
func Apply[T any](items []T, c Criteria, fields func(T) Item) (page []T, total int) {
	type row struct {
		v  T
		it Item
	}
	rows := make([]row, 0, len(items))
	for _, v := range items {
		it := fields(v)
		if c.Match(it) {
			rows = append(rows, row{v: v, it: it})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].it, rows[j].it
		switch c.Sort {
		case SortOldest:
			return a.CreatedAt.Before(b.CreatedAt)
		case SortTitle:
			return moderation.Normalize(a.Title) < moderation.Normalize(b.Title)
		case SortDate:
			switch {
			case a.Date == nil:
				return false
			case b.Date == nil:
				return true
			}
			return a.Date.Before(*b.Date)
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})

	total = len(rows)
	limit := c.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	page = make([]T, 0, limit)
	for i := c.Offset; i < len(rows) && len(page) < limit; i++ {
		page = append(page, rows[i].v)
	}
	return page, total
}

func base(b models.SubmissionBase) Item {
	return Item{
		Title:        b.Title,
		Description:  b.Description,
		Organization: b.Organization,
		Location:     b.Location,
		Category:     b.Category,
		Status:       b.Status,
		Remote:       b.Remote,
		CreatedAt:    b.CreatedAt,
	}
}

func ProjectFields(p models.ProjectSubmission) Item {
	it := base(p.SubmissionBase)
	it.Skills = p.Skills
	it.Date = p.StartDate
	return it
}

func EventFields(e models.EventSubmission) Item {
	it := base(e.SubmissionBase)
	it.Date = e.EventDate
	return it
}
