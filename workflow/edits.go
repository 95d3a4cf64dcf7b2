package workflow

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/volunteer-hub-go/models"
	utils "github.com/phillip/volunteer-hub-go/utils"
)

type kind int

const (
	kindString kind = iota
	kindText
	kindEmail
	kindDate
	kindInt
	kindBool
	kindList
	kindClock
)

type field struct {
	kind     kind
	max      int // max length for strings, max items for lists
	required bool
}

var submissionFields = map[string]field{
	"title":         {kind: kindString, max: 200, required: true},
	"description":   {kind: kindText, max: 5000, required: true},
	"organization":  {kind: kindString, max: 200, required: true},
	"category":      {kind: kindString, max: 100, required: true},
	"location":      {kind: kindString, max: 200},
	"remote":        {kind: kindBool},
	"contact_name":  {kind: kindString, max: 200},
	"contact_email": {kind: kindEmail, required: true},
	"contact_phone": {kind: kindString, max: 50},
}

func with(base map[string]field, extra map[string]field) map[string]field {
	out := make(map[string]field, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

var editable = map[string]map[string]field{
	models.TargetProject: with(submissionFields, map[string]field{
		"start_date":        {kind: kindDate},
		"end_date":          {kind: kindDate},
		"volunteers_needed": {kind: kindInt},
		"skills":            {kind: kindList, max: 30},
		"commitment":        {kind: kindString, max: 100},
	}),
	models.TargetEvent: with(submissionFields, map[string]field{
		"event_date":            {kind: kindDate},
		"start_time":            {kind: kindClock},
		"end_time":              {kind: kindClock},
		"capacity":              {kind: kindInt},
		"registration_deadline": {kind: kindDate},
	}),
	models.TargetApplication: {
		"phone":        {kind: kindString, max: 50},
		"motivation":   {kind: kindText, max: 2000},
		"skills":       {kind: kindList, max: 30},
		"availability": {kind: kindString, max: 200},
	},
	models.TargetRegistration: {
		"phone":  {kind: kindString, max: 50},
		"guests": {kind: kindInt},
		"notes":  {kind: kindText, max: 1000},
	},
}

var validate = validator.New()

// ValidTarget reports whether edit requests are supported for targetType.
func ValidTarget(targetType string) bool {
	_, ok := editable[targetType]
	return ok
}

// NormalizeChanges checks proposed changes against the editable fields of the
// target type and converts each value to the type stored in the record.
func NormalizeChanges(targetType string, changes map[string]interface{}) (bson.M, error) {
	fields, ok := editable[targetType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown target type %q", ErrInvalidValue, targetType)
	}
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: no changes", ErrInvalidValue)
	}

	out := bson.M{}
	for name, raw := range changes {
		f, ok := fields[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrFieldNotEditable, name)
		}
		v, err := normalizeValue(f, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %v", ErrInvalidValue, name, err)
		}
		out[name] = v
	}
	return out, nil
}

func normalizeValue(f field, raw interface{}) (interface{}, error) {
	if raw == nil {
		switch f.kind {
		case kindDate:
			return nil, nil
		case kindString, kindText, kindClock:
			if !f.required {
				return "", nil
			}
		case kindList:
			return []string{}, nil
		}
		return nil, fmt.Errorf("must not be null")
	}

	switch f.kind {
	case kindString, kindText, kindEmail, kindClock:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("must be a string")
		}
		s = strings.TrimSpace(s)
		if f.required && s == "" {
			return nil, fmt.Errorf("must not be blank")
		}
		if f.max > 0 && len([]rune(s)) > f.max {
			return nil, fmt.Errorf("must be at most %d characters", f.max)
		}
		if f.kind == kindEmail {
			if err := validate.Var(s, "email"); err != nil {
				return nil, fmt.Errorf("must be a valid email address")
			}
			s = strings.ToLower(s)
		}
		if f.kind == kindClock && s != "" && !utils.ValidClock(s) {
			return nil, fmt.Errorf("must be HH:MM")
		}
		return s, nil

	case kindDate:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("must be a date string")
		}
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		t, err := utils.ParseDate(s)
		if err != nil {
			return nil, err
		}
		return t, nil

	case kindInt:
		n, ok := toInt(raw)
		if !ok {
			return nil, fmt.Errorf("must be a whole number")
		}
		if n < 0 {
			return nil, fmt.Errorf("must not be negative")
		}
		return n, nil

	case kindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("must be true or false")
		}
		return b, nil

	case kindList:
		list, ok := toStrings(raw)
		if !ok {
			return nil, fmt.Errorf("must be a list of strings")
		}
		list = CleanList(list)
		if f.max > 0 && len(list) > f.max {
			return nil, fmt.Errorf("must have at most %d items", f.max)
		}
		return list, nil
	}
	return nil, fmt.Errorf("unsupported field")
}

// IntValue converts a decoded JSON or BSON number to int.
func IntValue(v interface{}) (int, bool) { return toInt(v) }

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func toStrings(v interface{}) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []interface{}:
		return stringsOf(list)
	case primitive.A:
		return stringsOf(list)
	}
	return nil, false
}

func stringsOf(list []interface{}) ([]string, bool) {
	out := make([]string, 0, len(list))
	for _, el := range list {
		s, ok := el.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// CleanList trims items, drops empty ones and removes case-insensitive
// duplicates, keeping the first spelling.
func CleanList(in []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// ChangedFields lists the field names of changes, sorted.
func ChangedFields(changes map[string]interface{}) []string {
	out := make([]string, 0, len(changes))
	for k := range changes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
