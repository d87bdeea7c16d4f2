package sources

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const userAgent = "Deepfake-Watch-Bot/1.0"

var hashtagPattern = regexp.MustCompile(`#(\w+)`)

// ExtractHashtags returns the lowercased hashtags in text, in order of first appearance
func ExtractHashtags(text string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, match := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		tag := strings.ToLower(match[1])
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags
}

// normalizeTopic strips a leading '#' and whitespace
func normalizeTopic(topic string) string {
	return strings.TrimPrefix(strings.TrimSpace(topic), "#")
}

// newLimiter paces requests to perMinute with no bursting; zero disables pacing
func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
