package incidents

import "github.com/azure/deepfake-watch-bot/internal/models"

type threshold struct {
	severity models.Severity
	min      float64
}

// Threshold tables, most severe first
var (
	confidenceThresholds = []threshold{
		{models.SeverityCritical, 0.95},
		{models.SeverityHigh, 0.85},
		{models.SeverityMedium, 0.75},
		{models.SeverityLow, 0.60},
	}
	riskScoreThresholds = []threshold{
		{models.SeverityCritical, 0.9},
		{models.SeverityHigh, 0.7},
		{models.SeverityMedium, 0.5},
		{models.SeverityLow, 0.3},
	}
	engagementThresholds = []threshold{
		{models.SeverityCritical, 50000},
		{models.SeverityHigh, 10000},
		{models.SeverityMedium, 1000},
		{models.SeverityLow, 100},
	}
)

// ComputeSeverity ranks a detection by the worst of its three signals.
// A signal below every threshold contributes low.
func ComputeSeverity(confidence, riskScore float64, engagement int) models.Severity {
	result := models.SeverityLow
	for _, level := range []models.Severity{
		levelFor(confidence, confidenceThresholds),
		levelFor(riskScore, riskScoreThresholds),
		levelFor(float64(engagement), engagementThresholds),
	} {
		if level.Rank() > result.Rank() {
			result = level
		}
	}
	return result
}

func levelFor(value float64, table []threshold) models.Severity {
	for _, t := range table {
		if value >= t.min {
			return t.severity
		}
	}
	return models.SeverityLow
}
