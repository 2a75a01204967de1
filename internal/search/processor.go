package search

import (
	"strings"

	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/models"
)

// processQuery trims the query text, fills a missing limit and threshold from cfg and
// caps the limit at cfg.MaxLimit before validating.
func processQuery(query *models.SearchQuery, cfg config.SearchConfig) error {
	query.Query = strings.TrimSpace(query.Query)
	if query.Limit <= 0 {
		query.Limit = cfg.DefaultLimit
	}
	if cfg.MaxLimit > 0 && query.Limit > cfg.MaxLimit {
		query.Limit = cfg.MaxLimit
	}
	if query.Threshold == 0 {
		query.Threshold = cfg.DefaultThreshold
	}
	return query.Validate()
}
