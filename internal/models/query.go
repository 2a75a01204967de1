package models

import "errors"

// ErrEmptyQuery is returned when a search or answer request has no query text.
var ErrEmptyQuery = errors.New("query cannot be empty")

const (
	defaultLimit = 5
	maxLimit     = 50
)

// SearchQuery represents a semantic search request.
type SearchQuery struct {
	Query     string  `json:"query"`
	Limit     int     `json:"limit,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// Validate ensures the search query has valid fields and sets defaults.
// Returns an error if the query is empty; otherwise normalizes limit and clamps threshold to [0,1].
func (q *SearchQuery) Validate() error {
	if q.Query == "" {
		return ErrEmptyQuery
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Threshold < 0 {
		q.Threshold = 0
	}
	if q.Threshold > 1 {
		q.Threshold = 1
	}
	return nil
}

// AnswerRequest asks for a grounded answer to a natural-language question.
type AnswerRequest struct {
	Query      string  `json:"query"`
	MaxResults int     `json:"max_results,omitempty"`
	Threshold  float64 `json:"threshold,omitempty"`
}

// SearchQuery converts the request into the retrieval query used to gather sources.
func (r *AnswerRequest) SearchQuery() *SearchQuery {
	return &SearchQuery{Query: r.Query, Limit: r.MaxResults, Threshold: r.Threshold}
}
