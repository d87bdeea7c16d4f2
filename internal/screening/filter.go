package screening

import (
	"strings"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/models"
)

// RecencyWindow is how old an item may be and still be screened
const RecencyWindow = 24 * time.Hour

// Criteria are the job-level settings the content filter applies
type Criteria struct {
	MinEngagement int
	Keywords      []string
}

// Filter selects the items worth scoring. Input order is preserved and the
// input slice is never modified.
func Filter(items []models.ContentItem, criteria Criteria, now time.Time) []models.ContentItem {
	var filtered []models.ContentItem

	for _, item := range items {
		if Passes(item, criteria, now) {
			filtered = append(filtered, item)
		}
	}

	return filtered
}

// Passes reports whether a single item satisfies the criteria
func Passes(item models.ContentItem, criteria Criteria, now time.Time) bool {
	if item.ReactionCount() < criteria.MinEngagement {
		return false
	}

	if item.PostedAt.Before(now.Add(-RecencyWindow)) {
		return false
	}

	if len(criteria.Keywords) == 0 {
		return true
	}

	return HasRiskMarker(item.Text) || matchesKeyword(item.Text, criteria.Keywords)
}

func matchesKeyword(text string, keywords []string) bool {
	text = strings.ToLower(text)
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" && strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
