package scout

import (
	"strings"
	"unicode/utf8"
)

// MaxQueryRunes bounds the free-text query.
const MaxQueryRunes = 256

// validate returns a cleaned copy of q or a *QueryError. Limit 0 becomes the
// default; limits above the ceiling are clamped.
func (s *Service) validate(q Query) (Query, error) {
	q.Text = strings.Join(strings.Fields(q.Text), " ")
	switch {
	case q.Text == "":
		return q, &QueryError{Field: "query", Reason: "must not be empty"}
	case utf8.RuneCountInString(q.Text) > MaxQueryRunes:
		return q, &QueryError{Field: "query", Reason: "is longer than 256 characters"}
	case q.Filters.MinSeeders < 0:
		return q, &QueryError{Field: "min_seeders", Reason: "must not be negative"}
	case q.Filters.MaxAge < 0:
		return q, &QueryError{Field: "max_age", Reason: "must not be negative"}
	case q.Filters.Limit < 0:
		return q, &QueryError{Field: "limit", Reason: "must not be negative"}
	}
	q.Filters.Category = strings.TrimSpace(q.Filters.Category)

	if q.Filters.Limit == 0 {
		q.Filters.Limit = s.cfg.Search.DefaultLimit
	}
	if q.Filters.Limit > s.cfg.Search.MaxLimit {
		q.Filters.Limit = s.cfg.Search.MaxLimit
	}

	if len(q.Sources) > 0 {
		seen := make(map[string]bool, len(q.Sources))
		var ids []string
		for _, id := range q.Sources {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			if _, ok := s.byID[id]; !ok {
				return q, &QueryError{Field: "sources", Reason: "unknown or disabled site " + id}
			}
			seen[id] = true
			ids = append(ids, id)
		}
		q.Sources = ids
	}
	return q, nil
}
