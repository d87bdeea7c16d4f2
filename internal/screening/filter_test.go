package screening

import (
	"testing"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestFilter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	items := []models.ContentItem{
		{ID: "low-engagement", Text: "breaking", Likes: 10, PostedAt: now},
		{ID: "stale", Text: "breaking", Likes: 500, PostedAt: now.Add(-25 * time.Hour)},
		{ID: "keyword", Text: "Rally downtown tonight", Likes: 500, PostedAt: now.Add(-time.Hour)},
		{ID: "risk-marker", Text: "this clip is fake", Likes: 80, Comments: 20, PostedAt: now.Add(-2 * time.Hour)},
		{ID: "unrelated", Text: "my breakfast", Likes: 900, PostedAt: now.Add(-3 * time.Hour)},
		{ID: "edge-of-window", Text: "rally", Likes: 100, PostedAt: now.Add(-RecencyWindow)},
	}

	tests := []struct {
		name     string
		criteria Criteria
		expected []string
	}{
		{
			name:     "Keywords restrict to keyword or risk marker matches",
			criteria: Criteria{MinEngagement: 100, Keywords: []string{"RALLY"}},
			expected: []string{"keyword", "risk-marker", "edge-of-window"},
		},
		{
			name:     "No keywords passes everything recent and engaged",
			criteria: Criteria{MinEngagement: 100},
			expected: []string{"keyword", "risk-marker", "unrelated", "edge-of-window"},
		},
		{
			name:     "Zero minimum engagement",
			criteria: Criteria{MinEngagement: 0, Keywords: []string{"nothing-matches"}},
			expected: []string{"low-engagement", "risk-marker"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, item := range Filter(items, tt.criteria, now) {
				ids = append(ids, item.ID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	now := time.Now()
	items := []models.ContentItem{
		{ID: "a", Text: "fake", Likes: 1000, PostedAt: now, Topics: []string{"x"}},
		{ID: "b", Text: "calm", Likes: 1, PostedAt: now},
	}
	snapshot := make([]models.ContentItem, len(items))
	copy(snapshot, items)

	out := Filter(items, Criteria{MinEngagement: 100}, now)

	assert.Len(t, out, 1)
	assert.Equal(t, snapshot, items)
}

func TestFilter_Empty(t *testing.T) {
	assert.Empty(t, Filter(nil, Criteria{}, time.Now()))
}
