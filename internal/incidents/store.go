package incidents

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/metrics"
	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/azure/deepfake-watch-bot/internal/storage"
	"github.com/sirupsen/logrus"
)

// DefaultQueryLimit applies when a query does not set a positive limit
const DefaultQueryLimit = 50

// investigateAbove is the confidence above which new incidents skip pending
const investigateAbove = 0.9

// Alerter is notified about high and critical incidents
type Alerter interface {
	SendAlert(alert *models.Alert) error
}

// Query selects incidents; zero-valued fields match everything
type Query struct {
	Status   models.Status
	Platform string
	Severity models.Severity
	Limit    int
}

// Store owns the incident collection. All mutations are serialized; reads
// return copies so callers never see a partially written record.
type Store struct {
	mu          sync.RWMutex
	incidents   map[string]*models.Incident
	sequence    uint64
	lastCreated time.Time

	now     func() time.Time
	alerter Alerter
	archive *archiver
	alerts  sync.WaitGroup
}

// Option configures a Store
type Option func(*Store)

// WithAlerter sets the immediate-alert hook for high and critical incidents
func WithAlerter(a Alerter) Option {
	return func(s *Store) {
		s.alerter = a
	}
}

// WithArchive persists every incident snapshot to durable storage
func WithArchive(st storage.StorageInterface) Option {
	return func(s *Store) {
		if st != nil {
			s.archive = newArchiver(st)
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty incident store
func NewStore(opts ...Option) *Store {
	s := &Store{
		incidents: make(map[string]*models.Incident),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create turns a detection into a stored incident and returns its id
func (s *Store) Create(d models.Detection) (string, error) {
	if err := validateDetection(d); err != nil {
		return "", err
	}
	if d.Verdict == "" {
		d.Verdict = models.VerdictFake
	}

	severity := ComputeSeverity(d.Confidence, d.RiskScore, d.Engagement())

	status := models.StatusPending
	if d.Confidence > investigateAbove {
		status = models.StatusInvestigating
	}

	platform := d.Platform
	if platform == "" {
		platform = "Unknown"
	}

	incident := &models.Incident{
		Title:          d.Title,
		Description:    d.Description,
		Severity:       severity,
		Status:         status,
		Platform:       platform,
		SourceURL:      d.SourceURL,
		Confidence:     d.Confidence,
		Verdict:        d.Verdict,
		RiskScore:      d.RiskScore,
		SourceType:     d.SourceType,
		SourceID:       d.SourceID,
		Metadata:       make(map[string]any, len(d.Metadata)+1),
		Tags:           GenerateTags(d),
		EstimatedReach: EstimateReach(d.Platform, d.Likes, d.Comments),
		NetworkSize:    NetworkSize(d),
	}
	if incident.Title == "" {
		incident.Title = fmt.Sprintf("Deepfake Detection - %s", platform)
	}
	if incident.Description == "" {
		incident.Description = "Automated deepfake detection"
	}
	if incident.SourceType == "" {
		incident.SourceType = "manual"
	}
	if d.MediaRef != "" {
		ref := d.MediaRef
		incident.MediaRef = &ref
	}
	for k, v := range d.Metadata {
		incident.Metadata[k] = v
	}
	// history is owned by the store
	delete(incident.Metadata, models.MetadataStatusUpdates)

	s.mu.Lock()
	now := s.now()
	if now.Before(s.lastCreated) {
		now = s.lastCreated
	}
	s.lastCreated = now
	s.sequence++
	incident.Sequence = s.sequence
	incident.CreatedAt = now
	// zero padding only covers six digits; order by Sequence, not by id
	incident.ID = fmt.Sprintf("INC-%s-%06d", now.UTC().Format("20060102"), s.sequence)
	s.incidents[incident.ID] = incident
	created := incident.Clone()
	if s.archive != nil {
		s.archive.enqueue(created)
	}
	s.mu.Unlock()

	metrics.ObserveIncident(string(created.Severity))

	logrus.WithFields(logrus.Fields{
		"incident_id":     created.ID,
		"severity":        created.Severity,
		"platform":        created.Platform,
		"confidence":      fmt.Sprintf("%.2f%%", created.Confidence*100),
		"estimated_reach": created.EstimatedReach,
	}).Warnf("Incident created: %s", created.Title)

	if created.Severity == models.SeverityHigh || created.Severity == models.SeverityCritical {
		s.sendImmediateAlert(created)
	}

	return created.ID, nil
}

func validateDetection(d models.Detection) error {
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", models.ErrInvalidDetection, d.Confidence)
	}
	if math.IsNaN(d.RiskScore) || d.RiskScore < 0 || d.RiskScore > 1 {
		return fmt.Errorf("%w: risk score %v outside [0,1]", models.ErrInvalidDetection, d.RiskScore)
	}
	if d.Likes < 0 || d.Comments < 0 || d.Shares < 0 {
		return fmt.Errorf("%w: negative engagement counts", models.ErrInvalidDetection)
	}
	if d.Verdict != "" && d.Verdict != models.VerdictFake {
		return fmt.Errorf("%w: incidents are only raised for %s verdicts, got %s", models.ErrInvalidDetection, models.VerdictFake, d.Verdict)
	}
	return nil
}

// sendImmediateAlert notifies without blocking Create; failures are only logged
func (s *Store) sendImmediateAlert(incident models.Incident) {
	logrus.WithFields(logrus.Fields{
		"incident_id":     incident.ID,
		"severity":        incident.Severity,
		"platform":        incident.Platform,
		"estimated_reach": incident.EstimatedReach,
		"url":             incident.SourceURL,
	}).Errorf("HIGH PRIORITY ALERT: %s", incident.Title)

	if s.alerter == nil {
		return
	}

	alert := &models.Alert{
		ID:    "ALERT-" + incident.ID,
		Type:  string(incident.Severity),
		Title: fmt.Sprintf("%s deepfake incident on %s", strings.ToUpper(string(incident.Severity)), incident.Platform),
		Message: fmt.Sprintf("%s (confidence %.0f%%, estimated reach %d): %s",
			incident.Title, incident.Confidence*100, incident.EstimatedReach, incident.SourceURL),
		Incident:  &incident,
		CreatedAt: incident.CreatedAt,
	}

	s.alerts.Add(1)
	go func() {
		defer s.alerts.Done()
		defer func() {
			if r := recover(); r != nil {
				logrus.Errorf("Alert hook panicked for incident %s: %v", incident.ID, r)
			}
		}()
		if err := s.alerter.SendAlert(alert); err != nil {
			logrus.WithField("incident_id", incident.ID).Errorf("Failed to send immediate alert: %v", err)
		}
	}()
}

// Get returns a copy of one incident
func (s *Store) Get(id string) (models.Incident, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	incident, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, false
	}
	return incident.Clone(), true
}

// Query returns matching incidents, newest first
func (s *Store) Query(q Query) []models.Incident {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	s.mu.RLock()
	matched := make([]*models.Incident, 0, len(s.incidents))
	for _, incident := range s.incidents {
		if q.Status != "" && incident.Status != q.Status {
			continue
		}
		if q.Platform != "" && !strings.EqualFold(incident.Platform, q.Platform) {
			continue
		}
		if q.Severity != "" && incident.Severity != q.Severity {
			continue
		}
		matched = append(matched, incident)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Sequence > matched[j].Sequence
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}

	result := make([]models.Incident, len(matched))
	for i, incident := range matched {
		result[i] = incident.Clone()
	}
	s.mu.RUnlock()

	return result
}

// UpdateStatus moves an incident to a new status and records the change.
// Any status may move to any other status. Returns false for unknown ids and
// for statuses outside models.Statuses, leaving the incident untouched.
func (s *Store) UpdateStatus(id string, status models.Status, note string) bool {
	if !status.Valid() {
		logrus.WithField("incident_id", id).Warnf("Rejected unknown incident status %q", status)
		return false
	}

	s.mu.Lock()
	incident, ok := s.incidents[id]
	if !ok {
		s.mu.Unlock()
		return false
	}

	old := incident.Status
	incident.Status = status

	updates := incident.StatusUpdates()
	// copy on append so snapshots handed out earlier keep their view
	history := make([]models.StatusUpdate, len(updates), len(updates)+1)
	copy(history, updates)
	history = append(history, models.StatusUpdate{
		Timestamp: s.now(),
		OldStatus: old,
		NewStatus: status,
		Note:      note,
	})
	if incident.Metadata == nil {
		incident.Metadata = make(map[string]any)
	}
	incident.Metadata[models.MetadataStatusUpdates] = history
	if s.archive != nil {
		s.archive.enqueue(incident.Clone())
	}
	s.mu.Unlock()

	logrus.WithField("incident_id", id).Infof("Updated incident status: %s -> %s", old, status)
	return true
}

// Stats computes aggregate statistics over the live incident set
func (s *Store) Stats() models.AggregateStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.AggregateStats{
		Total:      len(s.incidents),
		BySeverity: make(map[models.Severity]int),
		ByPlatform: make(map[string]int),
		ByStatus:   make(map[models.Status]int),
	}

	cutoff := s.now().Add(-24 * time.Hour)
	var confidenceSum float64

	for _, incident := range s.incidents {
		if incident.CreatedAt.After(cutoff) {
			stats.Recent24h++
		}
		stats.BySeverity[incident.Severity]++
		stats.ByPlatform[incident.Platform]++
		stats.ByStatus[incident.Status]++
		confidenceSum += incident.Confidence
		stats.TotalEstimatedReach += incident.EstimatedReach
	}

	if stats.Total > 0 {
		stats.AvgConfidence = confidenceSum / float64(stats.Total)
	}

	return stats
}

// Restore loads archived incidents into the store. Ids already present are
// kept, and the id sequence continues after the highest restored one.
func (s *Store) Restore(st storage.StorageInterface) (int, error) {
	if st == nil {
		return 0, nil
	}

	archived, err := loadArchived(st)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for i := range archived {
		incident := archived[i]
		if _, exists := s.incidents[incident.ID]; exists {
			continue
		}
		s.incidents[incident.ID] = &incident
		if incident.Sequence > s.sequence {
			s.sequence = incident.Sequence
		}
		if incident.CreatedAt.After(s.lastCreated) {
			s.lastCreated = incident.CreatedAt
		}
		restored++
	}

	logrus.Infof("Restored %d incidents from archive", restored)
	return restored, nil
}

// Close waits for in-flight alerts and flushes pending archive writes
func (s *Store) Close() {
	s.alerts.Wait()
	if s.archive != nil {
		s.archive.close()
	}
}
