package scheduler

import (
	"fmt"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/config"
	"github.com/azure/deepfake-watch-bot/internal/incidents"
	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/azure/deepfake-watch-bot/internal/notifications"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	digestIncidentLimit = 10
	backlogPeriod       = "critical backlog"
)

// IncidentReader is the read side of the incident store
type IncidentReader interface {
	Query(q incidents.Query) []models.Incident
	Stats() models.AggregateStats
}

// Service handles scheduling of incident digests
type Service struct {
	config    *config.Config
	incidents IncidentReader
	notifier  notifications.NotificationInterface
	cron      *cron.Cron
	now       func() time.Time
}

// NewService creates a new scheduler service. An unknown TIMEZONE falls back to UTC.
func NewService(cfg *config.Config, reader IncidentReader, notifier notifications.NotificationInterface) *Service {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		logrus.Warnf("Unknown timezone %q, scheduling in UTC", cfg.TimeZone)
		loc = time.UTC
	}

	return &Service{
		config:    cfg,
		incidents: reader,
		notifier:  notifier,
		cron:      cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		now:       time.Now,
	}
}

func digestExpression(schedule string) string {
	switch schedule {
	case "daily":
		// Run daily at 9 AM
		return "0 0 9 * * *"
	default:
		// Run weekly on Monday at 9 AM
		return "0 0 9 * * MON"
	}
}

// Start begins the scheduled digests
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(digestExpression(s.config.ReportSchedule), func() {
		logrus.Info("Sending scheduled incident digest")
		if err := s.RunDigest(); err != nil {
			logrus.Errorf("Scheduled incident digest failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	// Also remind about untriaged critical incidents every 4 hours
	_, err = s.cron.AddFunc("0 0 */4 * * *", func() {
		logrus.Info("Checking critical incident backlog (4-hour frequency)")
		if err := s.RunBacklogReminder(); err != nil {
			logrus.Errorf("Critical backlog reminder failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with %s digest (plus backlog checks every 4 hours)", s.config.ReportSchedule)
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}

// RunDigest sends the stats and newest incidents through the notifier
func (s *Service) RunDigest() error {
	report := &models.Report{
		GeneratedAt: s.now().UTC(),
		Period:      s.config.ReportSchedule,
		Stats:       s.incidents.Stats(),
		Incidents:   s.incidents.Query(incidents.Query{Limit: digestIncidentLimit}),
	}

	if err := s.notifier.SendReport(report); err != nil {
		return fmt.Errorf("failed to send %s digest: %w", report.Period, err)
	}

	logrus.Infof("Sent %s digest covering %d incidents", report.Period, report.Stats.Total)
	return nil
}

// RunBacklogReminder reports critical incidents still pending triage. Nothing is sent when there are none.
func (s *Service) RunBacklogReminder() error {
	backlog := s.incidents.Query(incidents.Query{
		Status:   models.StatusPending,
		Severity: models.SeverityCritical,
	})
	if len(backlog) == 0 {
		logrus.Debug("No pending critical incidents")
		return nil
	}

	report := &models.Report{
		GeneratedAt: s.now().UTC(),
		Period:      backlogPeriod,
		Stats:       s.incidents.Stats(),
		Incidents:   backlog,
	}

	if err := s.notifier.SendReport(report); err != nil {
		return fmt.Errorf("failed to send backlog reminder: %w", err)
	}

	logrus.Warnf("%d critical incidents are still pending", len(backlog))
	return nil
}
