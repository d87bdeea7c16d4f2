package sources

import (
	"context"

	"github.com/azure/deepfake-watch-bot/internal/models"
)

// Fetcher returns a bounded batch of recent content for a topic
type Fetcher interface {
	Fetch(ctx context.Context, topic string, limit int) ([]models.ContentItem, error)
}

// Source is a content platform that can be polled by topic
type Source interface {
	Fetcher
	GetName() string
	IsEnabled() bool
}
