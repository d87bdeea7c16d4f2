package sources

import (
	"context"
	"errors"
	"fmt"

	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/sirupsen/logrus"
)

// Combined fans a topic out to every enabled source in turn
type Combined struct {
	sources []Source
}

// Ensure Combined implements Fetcher
var _ Fetcher = (*Combined)(nil)

// NewCombined keeps only the enabled sources
func NewCombined(srcs ...Source) *Combined {
	c := &Combined{}
	for _, src := range srcs {
		if src.IsEnabled() {
			c.sources = append(c.sources, src)
		} else {
			logrus.Infof("Content source %s disabled (missing credentials)", src.GetName())
		}
	}
	return c
}

// Names lists the enabled sources
func (c *Combined) Names() []string {
	names := make([]string, 0, len(c.sources))
	for _, src := range c.sources {
		names = append(names, src.GetName())
	}
	return names
}

// Fetch asks each source for up to limit items and merges the results in
// source order, dropping duplicates. It fails only when every source failed.
func (c *Combined) Fetch(ctx context.Context, topic string, limit int) ([]models.ContentItem, error) {
	var items []models.ContentItem
	var errs []error
	seen := make(map[string]bool)

	for _, src := range c.sources {
		fetched, err := src.Fetch(ctx, topic, limit)
		if err != nil {
			logrus.Warnf("Fetching #%s from %s failed: %v", topic, src.GetName(), err)
			errs = append(errs, fmt.Errorf("%s: %w", src.GetName(), err))
			continue
		}

		for _, item := range fetched {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			items = append(items, item)
		}
	}

	if len(errs) > 0 && len(errs) == len(c.sources) {
		return nil, fmt.Errorf("%w: %w", models.ErrCollaborator, errors.Join(errs...))
	}

	return items, nil
}
