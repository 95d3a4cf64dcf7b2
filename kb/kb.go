// Package kb answers chat messages from knowledge base entries by keyword
// matching.
package kb

import (
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/volunteer-hub-go/models"
	moderation "github.com/phillip/volunteer-hub-go/moderation"
)

const (
	minScore       = 1.0
	questionWeight = 0.5
	maxSuggestions = 3
)

var stopwords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`a an and are as at be but by can do does for from how i if in is it
		me my of on or so that the this to was what when where which who why will with you your`) {
		stopwords[w] = true
	}
}

type Suggestion struct {
	ID       primitive.ObjectID `json:"id"`
	Question string             `json:"question"`
}

// Reply is the chat response.
type Reply struct {
	Answer      string              `json:"answer"`
	EntryID     *primitive.ObjectID `json:"entry_id,omitempty"`
	Question    string              `json:"question,omitempty"`
	Score       float64             `json:"score"`
	Suggestions []Suggestion        `json:"suggestions"`
}

type scored struct {
	entry *models.KBEntry
	score float64
	hits  int
}

type message struct {
	text   string // normalized tokens joined by single spaces, padded
	tokens map[string]bool
}

func parse(s string) message {
	toks := moderation.Tokens(s)
	m := message{text: " " + strings.Join(toks, " ") + " ", tokens: make(map[string]bool, len(toks))}
	for _, t := range toks {
		m.tokens[t] = true
	}
	return m
}

// Score rates entry against a chat message: one point per matched keyword and
// half a point per meaningful word shared with the entry's question.
func Score(e models.KBEntry, msg string) (score float64, keywordHits int) {
	return score1(e, parse(msg))
}

func score1(e models.KBEntry, m message) (float64, int) {
	hits := 0
	for _, kw := range e.Keywords {
		toks := moderation.Tokens(kw)
		switch len(toks) {
		case 0:
			continue
		case 1:
			if m.tokens[toks[0]] {
				hits++
			}
		default:
			if strings.Contains(m.text, " "+strings.Join(toks, " ")+" ") {
				hits++
			}
		}
	}

	shared := 0
	seen := map[string]bool{}
	for _, t := range moderation.Tokens(e.Question) {
		if stopwords[t] || seen[t] {
			continue
		}
		seen[t] = true
		if m.tokens[t] {
			shared++
		}
	}
	return float64(hits) + questionWeight*float64(shared), hits
}

// Rank scores every entry and returns those with a positive score, best first.
// Ties go to more keyword hits, then the newer entry.
func Rank(entries []models.KBEntry, msg string) []scored {
	m := parse(msg)
	var out []scored
	for i := range entries {
		s, hits := score1(entries[i], m)
		if s > 0 {
			out = append(out, scored{entry: &entries[i], score: s, hits: hits})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.hits != b.hits {
			return a.hits > b.hits
		}
		return a.entry.CreatedAt.After(b.entry.CreatedAt)
	})
	return out
}

// Answer picks the best entry for msg, or a fallback pointing to support.
func Answer(entries []models.KBEntry, msg, supportEmail string) Reply {
	ranked := Rank(entries, msg)
	reply := Reply{Suggestions: []Suggestion{}}

	rest := ranked
	if len(ranked) > 0 && ranked[0].score >= minScore {
		best := ranked[0]
		id := best.entry.ID
		reply.Answer = best.entry.Answer
		reply.EntryID = &id
		reply.Question = best.entry.Question
		reply.Score = best.score
		rest = ranked[1:]
	} else {
		reply.Answer = fallback(supportEmail)
	}

	for _, s := range rest {
		if len(reply.Suggestions) == maxSuggestions {
			break
		}
		reply.Suggestions = append(reply.Suggestions, Suggestion{ID: s.entry.ID, Question: s.entry.Question})
	}
	return reply
}

func fallback(supportEmail string) string {
	if supportEmail == "" {
		return "Sorry, I don't have an answer for that yet."
	}
	return fmt.Sprintf("Sorry, I don't have an answer for that yet. Please contact %s and the team will help.", supportEmail)
}
