package models

// SearchResult is a single retrieved chunk with its similarity score.
type SearchResult struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// SearchResponse is the response for a search request. Results are ordered by descending score.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
}

// AnswerResponse is a generated answer together with the chunks it was grounded in.
type AnswerResponse struct {
	Answer    string          `json:"answer"`
	Sources   []*SearchResult `json:"sources"`
	Grounded  bool            `json:"grounded"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
}
