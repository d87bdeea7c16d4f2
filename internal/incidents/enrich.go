package incidents

import (
	"fmt"
	"strings"

	"github.com/azure/deepfake-watch-bot/internal/models"
)

// minimumReach is the reach assumed for any detected post
const minimumReach = 100

const defaultReachMultiplier = 10

// reach multipliers per engagement, per platform
var reachMultipliers = map[string]int{
	"instagram": 10,
	"twitter":   15,
	"x":         15,
	"tiktok":    20,
	"youtube":   25,
}

// EstimateReach approximates how many people saw the content
func EstimateReach(platform string, likes, comments int) int {
	multiplier, ok := reachMultipliers[strings.ToLower(strings.TrimSpace(platform))]
	if !ok {
		multiplier = defaultReachMultiplier
	}

	reach := (likes + comments) * multiplier
	if reach < minimumReach {
		return minimumReach
	}
	return reach
}

// NetworkSize counts the accounts involved in spreading the content: the
// origin plus every reshare we know of
func NetworkSize(d models.Detection) int {
	if d.Shares <= 0 {
		return 1
	}
	return 1 + d.Shares
}

// GenerateTags builds the searchable tag list for a detection
func GenerateTags(d models.Detection) []string {
	var tags []string

	if platform := strings.ToLower(d.Platform); platform != "" {
		tags = append(tags, "platform:"+platform)
	}

	if d.SourceType != "" {
		tags = append(tags, "source:"+d.SourceType)
	}

	switch {
	case d.Confidence > 0.9:
		tags = append(tags, "high-confidence")
	case d.Confidence > 0.75:
		tags = append(tags, "medium-confidence")
	default:
		tags = append(tags, "low-confidence")
	}

	for i, topic := range d.Topics {
		if i >= 3 {
			break
		}
		tags = append(tags, fmt.Sprintf("hashtag:%s", strings.ToLower(topic)))
	}

	switch engagement := d.Engagement(); {
	case engagement > 10000:
		tags = append(tags, "viral")
	case engagement > 1000:
		tags = append(tags, "high-engagement")
	}

	if verdict := strings.ToLower(string(d.Verdict)); verdict != "" {
		tags = append(tags, "verdict:"+verdict)
	}

	return tags
}
