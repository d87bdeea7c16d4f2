package monitoring

import (
	"fmt"

	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/azure/deepfake-watch-bot/internal/screening"
)

const excerptLength = 100

// buildDetection turns a FAKE classification into the incident payload
func buildDetection(j *job, item models.ContentItem, assessment screening.Assessment, result *models.Classification) models.Detection {
	author := item.Author
	if author == "" {
		author = "unknown"
	}

	return models.Detection{
		Title:       fmt.Sprintf("Deepfake detected: @%s post", author),
		Description: fmt.Sprintf("Deepfake content detected in %s post by @%s. Content: %s...", item.Platform, author, excerpt(item.Text, excerptLength)),
		Platform:    item.Platform,
		SourceURL:   item.URL,
		MediaRef:    item.MediaRef,
		Confidence:  result.Confidence,
		Verdict:     result.Verdict,
		RiskScore:   assessment.Score,
		SourceType:  item.Platform + "_monitor",
		SourceID:    item.ID,
		Likes:       item.Likes,
		Comments:    item.Comments,
		Shares:      item.Shares,
		Topics:      item.Topics,
		Metadata: map[string]any{
			"post":           item,
			"analysis":       *result,
			"monitoring_job": j.id,
			"hashtags":       item.Topics,
			"risk_signals":   assessment.Signals,
			"engagement": map[string]any{
				"likes":    item.Likes,
				"comments": item.Comments,
				"rate":     screening.EngagementRate(item),
			},
		},
	}
}

// excerpt returns the first n runes of text
func excerpt(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
