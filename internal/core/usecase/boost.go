package usecase

import (
	"sort"
	"strings"
	"time"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

const (
	boostDocType = "doc_type"
	boostRecency = "recency"
)

// applyDocTypeBoost adds boost to results whose document type the query
// type prefers, then restores descending order. Ties keep upstream order.
func applyDocTypeBoost(results []domain.SearchResult, queryType domain.QueryType, boost float64) {
	preferred := queryType.PreferredDocTypes()
	if len(preferred) == 0 || boost == 0 {
		return
	}
	for i := range results {
		if containsFold(preferred, results[i].Metadata.DocType) {
			results[i].Similarity += boost
			results[i].Metadata.Boosts = append(results[i].Metadata.Boosts, boostDocType)
		}
	}
	sortBySimilarity(results)
}

// applyRecencyBoost rewards documents updated within window of now.
func applyRecencyBoost(results []domain.SearchResult, now time.Time, window time.Duration, boost float64) {
	if boost == 0 || window <= 0 {
		return
	}
	cutoff := now.Add(-window)
	for i := range results {
		updated := results[i].Metadata.DocUpdatedAt
		if updated.IsZero() || updated.Before(cutoff) {
			continue
		}
		results[i].Similarity += boost
		results[i].Metadata.Boosts = append(results[i].Metadata.Boosts, boostRecency)
	}
	sortBySimilarity(results)
}

func sortBySimilarity(results []domain.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
