package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/classifier"
	"github.com/azure/deepfake-watch-bot/internal/config"
	"github.com/azure/deepfake-watch-bot/internal/metrics"
	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/azure/deepfake-watch-bot/internal/sources"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrShuttingDown is returned by Start once Shutdown has been called
var ErrShuttingDown = errors.New("monitoring service is shutting down")

// IncidentCreator records confirmed detections
type IncidentCreator interface {
	Create(d models.Detection) (string, error)
}

// Service runs one poll loop per monitoring job
type Service struct {
	config     *config.Config
	fetcher    sources.Fetcher
	classifier classifier.Classifier
	incidents  IncidentCreator
	now        func() time.Time

	mu       sync.RWMutex
	jobs     map[string]*job
	draining bool

	// ctx is cancelled by Shutdown
	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup
}

// NewService creates a new monitoring service
func NewService(cfg *config.Config, fetcher sources.Fetcher, clf classifier.Classifier, incidents IncidentCreator) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		config:     cfg,
		fetcher:    fetcher,
		classifier: clf,
		incidents:  incidents,
		now:        time.Now,
		jobs:       make(map[string]*job),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start registers an active job for the topics and launches its poll loop.
// Keywords narrow the filter; none means every engaging recent item qualifies.
func (s *Service) Start(topics, keywords []string) (string, error) {
	cleanTopics := normalizeList(topics, true)
	if len(cleanTopics) == 0 {
		return "", fmt.Errorf("%w: at least one topic is required", models.ErrInvalidConfig)
	}
	if s.config.FetchBatchSize <= 0 || s.config.MaxItemsPerCycle <= 0 {
		return "", fmt.Errorf("%w: fetch batch size and per-cycle item budget must be positive", models.ErrInvalidConfig)
	}

	j := &job{
		id:        "job_" + uuid.NewString(),
		topics:    cleanTopics,
		keywords:  normalizeList(keywords, false),
		createdAt: s.now(),
		active:    true,
		stop:      make(chan struct{}),
	}

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return "", ErrShuttingDown
	}
	s.jobs[j.id] = j
	s.loops.Add(1)
	s.mu.Unlock()
	metrics.SetActiveJobs(s.activeCount())

	logrus.WithFields(logrus.Fields{
		"job_id":   j.id,
		"topics":   j.topics,
		"keywords": j.keywords,
	}).Info("Started monitoring job")

	go func() {
		defer s.loops.Done()
		s.run(j)
	}()

	return j.id, nil
}

// Stop deactivates a job. The loop exits at its next pause or item boundary.
// It returns false only for unknown ids; stopping a stopped job is a no-op.
func (s *Service) Stop(id string) bool {
	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	if j.deactivate() {
		logrus.WithField("job_id", id).Info("Stopped monitoring job")
		metrics.SetActiveJobs(s.activeCount())
	}
	return true
}

// Status returns a snapshot aggregated over the active jobs
func (s *Service) Status() models.MonitoringStatus {
	s.mu.RLock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.RUnlock()

	status := models.MonitoringStatus{Jobs: []models.JobSummary{}}
	for _, j := range jobs {
		summary := j.summary()
		if !summary.Active {
			continue
		}
		status.ActiveJobs++
		status.TotalTopics += len(summary.Topics)
		status.ItemsScanned += summary.ItemsScanned
		status.DetectionsConfirmed += summary.DetectionsConfirmed
		status.Jobs = append(status.Jobs, summary)
	}

	if status.ItemsScanned > 0 {
		status.DetectionRate = float64(status.DetectionsConfirmed) / float64(status.ItemsScanned) * 100
	}

	sort.Slice(status.Jobs, func(a, b int) bool {
		if status.Jobs[a].CreatedAt.Equal(status.Jobs[b].CreatedAt) {
			return status.Jobs[a].ID < status.Jobs[b].ID
		}
		return status.Jobs[a].CreatedAt.Before(status.Jobs[b].CreatedAt)
	})

	return status
}

// Shutdown stops every job and waits for the loops to exit. When ctx expires
// first, in-flight collaborator calls are cancelled and ctx's error returned.
// Start is rejected with ErrShuttingDown from then on.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	for _, j := range s.jobs {
		j.deactivate()
	}
	s.mu.Unlock()
	metrics.SetActiveJobs(0)

	done := make(chan struct{})
	go func() {
		s.loops.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		logrus.Info("All monitoring loops stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		logrus.Warn("Monitoring loops did not stop in time, cancelling in-flight calls")
		return ctx.Err()
	}
}

func (s *Service) activeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, j := range s.jobs {
		if j.isActive() {
			count++
		}
	}
	return count
}

// normalizeList trims entries, drops blanks and duplicates. Topics also lose a leading '#'.
func normalizeList(values []string, topics bool) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, v := range values {
		v = strings.TrimSpace(v)
		if topics {
			v = strings.TrimSpace(strings.TrimPrefix(v, "#"))
		}
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		out = append(out, v)
	}
	return out
}
