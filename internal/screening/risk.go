package screening

import (
	"regexp"
	"strings"

	"github.com/azure/deepfake-watch-bot/internal/models"
)

const (
	// baselineAudience stands in for the author's audience when the follower count is unknown
	baselineAudience = 1000.0

	// anomalousEngagementRate is the reactions-per-audience ratio treated as abnormal
	anomalousEngagementRate = 10.0

	engagementAnomalyWeight  = 0.2
	unverifiedSensationalism = 0.3
	suspiciousAuthorWeight   = 0.4
)

// Signal names reported by Assess
const (
	SignalEngagementAnomaly   = "engagement_anomaly"
	SignalUnverifiedSensation = "unverified_sensational"
	SignalSuspiciousAuthor    = "suspicious_author"
)

type markerCategory struct {
	name    string
	weight  float64
	markers []string
}

// Lexical markers of synthetic or fabricated media. Each category counts once.
var highRiskCategories = []markerCategory{
	{
		name:   "synthetic",
		weight: 0.3,
		markers: []string{
			"deepfake", "deep fake", "ai-generated", "ai generated", "ai-made",
			"generated", "synthetic", "artificial", "computer-generated", "cgi",
		},
	},
	{
		name:    "fabricated",
		weight:  0.3,
		markers: []string{"fake", "not real", "fabricated", "doctored", "manipulated"},
	},
}

// Sensationalism markers
var mediumRiskCategories = []markerCategory{
	{name: "breaking", weight: 0.2, markers: []string{"breaking", "just in"}},
	{name: "exclusive", weight: 0.2, markers: []string{"exclusive", "leaked"}},
	{name: "scandal", weight: 0.2, markers: []string{"scandal", "shocking"}},
}

var sensationalWords = []string{"breaking", "news", "exclusive"}

var suspiciousHandleParts = []string{"viral", "fake", "leak"}

// handles ending in a long run of digits are typical of throwaway accounts
var generatedHandle = regexp.MustCompile(`\d{5,}$`)

// Assessment is a risk score together with the signals that produced it
type Assessment struct {
	Score   float64  `json:"score"`
	Signals []string `json:"signals"`
}

// Score returns the risk score of an item in [0,1]
func Score(item models.ContentItem) float64 {
	return Assess(item).Score
}

// Assess scores an item and reports which signals contributed.
// The score is additive over independent signals and saturates at 1.0.
func Assess(item models.ContentItem) Assessment {
	text := strings.ToLower(item.Text)
	var a Assessment
	var sum float64

	for _, category := range highRiskCategories {
		if category.matches(text) {
			sum += category.weight
			a.Signals = append(a.Signals, "high_risk:"+category.name)
		}
	}

	for _, category := range mediumRiskCategories {
		if category.matches(text) {
			sum += category.weight
			a.Signals = append(a.Signals, "medium_risk:"+category.name)
		}
	}

	if EngagementRate(item) > anomalousEngagementRate {
		sum += engagementAnomalyWeight
		a.Signals = append(a.Signals, SignalEngagementAnomaly)
	}

	if !item.AuthorVerified && containsAny(text, sensationalWords) {
		sum += unverifiedSensationalism
		a.Signals = append(a.Signals, SignalUnverifiedSensation)
	}

	if SuspiciousAuthor(item.Author) {
		sum += suspiciousAuthorWeight
		a.Signals = append(a.Signals, SignalSuspiciousAuthor)
	}

	if sum > 1.0 {
		sum = 1.0
	}
	a.Score = sum
	return a
}

// EngagementRate is the reaction count relative to the author's audience
func EngagementRate(item models.ContentItem) float64 {
	audience := baselineAudience
	if item.AuthorFollowers > 0 {
		audience = float64(item.AuthorFollowers)
	}
	return float64(item.ReactionCount()) / audience
}

// SuspiciousAuthor applies handle heuristics associated with impersonation and spam accounts
func SuspiciousAuthor(author string) bool {
	handle := strings.ToLower(strings.TrimPrefix(author, "@"))
	if handle == "" {
		return false
	}
	return containsAny(handle, suspiciousHandleParts) || generatedHandle.MatchString(handle)
}

// HasRiskMarker reports whether text contains any high or medium risk marker
func HasRiskMarker(text string) bool {
	text = strings.ToLower(text)
	for _, category := range highRiskCategories {
		if category.matches(text) {
			return true
		}
	}
	for _, category := range mediumRiskCategories {
		if category.matches(text) {
			return true
		}
	}
	return false
}

func (c markerCategory) matches(text string) bool {
	return containsAny(text, c.markers)
}

func containsAny(text string, words []string) bool {
	for _, word := range words {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}
