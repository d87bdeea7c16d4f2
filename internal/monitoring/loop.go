package monitoring

import (
	"fmt"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/metrics"
	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/azure/deepfake-watch-bot/internal/screening"
	"github.com/sirupsen/logrus"
)

// run is the poll loop of one job. It returns once the job is stopped.
func (s *Service) run(j *job) {
	log := logrus.WithField("job_id", j.id)
	log.Info("Starting monitoring loop")

	for j.isActive() {
		if err := s.runCycle(j); err != nil {
			metrics.ObserveCycleFault()
			log.Errorf("Poll cycle aborted, retrying in %s: %v", s.config.FaultCooldown, err)
			if !j.pause(s.config.FaultCooldown) {
				break
			}
			continue
		}

		j.markPolled(s.now())

		log.Infof("Waiting %s before next scan cycle", s.config.CycleInterval)
		if !j.pause(s.config.CycleInterval) {
			break
		}
	}

	log.Info("Monitoring loop exited")
}

// runCycle makes one pass over the job's topics, turning a panic into ErrInternalFault
func (s *Service) runCycle(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", models.ErrInternalFault, r)
		}
	}()

	start := time.Now()
	budget := s.config.MaxItemsPerCycle

	for _, topic := range j.topics {
		if !j.isActive() {
			return nil
		}
		if budget <= 0 {
			logrus.WithField("job_id", j.id).Infof("Item budget of %d reached, skipping remaining topics", s.config.MaxItemsPerCycle)
			break
		}

		budget = s.scanTopic(j, topic, budget)

		// Rate limiting between topics
		if !j.pause(s.config.TopicPause) {
			return nil
		}
	}

	metrics.ObservePollCycle(time.Since(start))
	return nil
}

// scanTopic examines the filtered items of one topic and returns the remaining budget
func (s *Service) scanTopic(j *job, topic string, budget int) int {
	log := logrus.WithFields(logrus.Fields{"job_id": j.id, "topic": topic})
	log.Infof("Scanning #%s", topic)

	items, err := s.fetcher.Fetch(s.ctx, topic, s.config.FetchBatchSize)
	if err != nil {
		metrics.ObserveFetchError()
		log.Warnf("Fetch failed, skipping topic: %v", err)
		return budget
	}
	if len(items) == 0 {
		log.Info("No items found")
		return budget
	}

	filtered := screening.Filter(items, screening.Criteria{
		MinEngagement: s.config.MinEngagement,
		Keywords:      j.keywords,
	}, s.now())
	log.Infof("%d of %d items passed filters", len(filtered), len(items))

	for _, item := range filtered {
		if !j.isActive() {
			return budget
		}
		if budget <= 0 {
			return budget
		}
		budget--

		s.examine(j, item)
		j.addScanned()
		metrics.ObserveItemScanned()

		// Rate limiting between items
		if !j.pause(s.config.ItemPause) {
			return budget
		}
	}

	return budget
}

// examine scores one item and escalates it to the classifier when warranted
func (s *Service) examine(j *job, item models.ContentItem) {
	log := logrus.WithFields(logrus.Fields{"job_id": j.id, "item_id": item.ID})

	assessment := screening.Assess(item)
	log.Debugf("Risk score %.2f %v", assessment.Score, assessment.Signals)

	if assessment.Score <= s.config.EscalationThreshold {
		return
	}
	if !item.MediaKind.Analyzable() {
		log.Debugf("Skipping %s media", item.MediaKind)
		return
	}

	result, err := s.classifier.Classify(s.ctx, item.MediaRef)
	if err != nil {
		metrics.ObserveClassification(metrics.OutcomeError)
		log.Warnf("Classification failed, skipping item: %v", err)
		return
	}

	if result.Verdict != models.VerdictFake {
		metrics.ObserveClassification(metrics.OutcomeReal)
		log.Debugf("Classified REAL (%.2f)", result.Confidence)
		return
	}
	metrics.ObserveClassification(metrics.OutcomeFake)

	incidentID, err := s.incidents.Create(buildDetection(j, item, assessment, result))
	if err != nil {
		log.Errorf("Failed to create incident: %v", err)
		return
	}

	j.addDetection()
	log.WithField("incident_id", incidentID).Warnf("Deepfake confirmed (confidence %.2f%%)", result.Confidence*100)
}
