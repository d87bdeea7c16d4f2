package notifications

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/config"
	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type recordingMailer struct {
	mu       sync.Mutex
	messages []*gomail.Message
	err      error
}

func (r *recordingMailer) DialAndSend(m ...*gomail.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m...)
	return r.err
}

func sampleIncident() models.Incident {
	return models.Incident{
		ID:             "INC-20260301-000001",
		Title:          "Deepfake detected: @viral_clips post",
		Description:    "Deepfake video detected on instagram",
		Severity:       models.SeverityCritical,
		Status:         models.StatusInvestigating,
		Platform:       "instagram",
		SourceURL:      "https://instagram.com/p/abc",
		Confidence:     0.96,
		RiskScore:      0.9,
		CreatedAt:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Tags:           []string{"platform:instagram", "viral"},
		EstimatedReach: 600000,
	}
}

func sampleReport() *models.Report {
	inc := sampleIncident()
	return &models.Report{
		GeneratedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Period:      "daily",
		Stats: models.AggregateStats{
			Total:               3,
			Recent24h:           2,
			BySeverity:          map[models.Severity]int{models.SeverityCritical: 1, models.SeverityLow: 2},
			AvgConfidence:       0.82,
			TotalEstimatedReach: 601000,
		},
		Incidents: []models.Incident{inc},
	}
}

func TestBuildTeamsAlert(t *testing.T) {
	s := NewService(&config.Config{})
	inc := sampleIncident()

	message := s.buildTeamsAlert(&models.Alert{Title: "CRITICAL deepfake incident on instagram", Message: "details", Incident: &inc})

	assert.Equal(t, "MessageCard", message.Type)
	assert.Equal(t, "A4262C", message.ThemeColor)
	require.Len(t, message.Sections, 1)
	assert.Equal(t, inc.ID, message.Sections[0].ActivityTitle)
	assert.Contains(t, message.Sections[0].Facts, TeamsFact{Name: "Severity", Value: "CRITICAL"})
	assert.Contains(t, message.Sections[0].Facts, TeamsFact{Name: "Confidence", Value: "96.0%"})
}

func TestBuildTeamsReport(t *testing.T) {
	s := NewService(&config.Config{})

	message := s.buildTeamsReport(sampleReport())

	assert.Equal(t, "Deepfake Incident Report - Daily", message.Title)
	assert.Contains(t, message.Text, "3 incidents")
	require.Len(t, message.Sections, 2)
	assert.Contains(t, message.Sections[0].Facts, TeamsFact{Name: "Critical Severity", Value: "1"})
	assert.Contains(t, message.Sections[0].Facts, TeamsFact{Name: "High Severity", Value: "0"})
	assert.Contains(t, message.Sections[1].ActivityText, "INC-20260301-000001")
}

func TestBuildEmailBodies(t *testing.T) {
	s := NewService(&config.Config{})
	report := sampleReport()

	html, err := s.buildEmailHTML(report)
	require.NoError(t, err)
	assert.Contains(t, html, "Daily report generated")
	assert.Contains(t, html, "INC-20260301-000001")
	assert.Contains(t, html, "82.0%")

	text := s.buildEmailText(report)
	assert.Contains(t, text, "Total Incidents: 3")
	assert.Contains(t, text, "Critical: 1")
	assert.Contains(t, text, "https://instagram.com/p/abc")
}

func TestSendAlert_Teams(t *testing.T) {
	var received TeamsMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewService(&config.Config{TeamsWebhookURL: server.URL})
	inc := sampleIncident()

	err := s.SendAlert(&models.Alert{Title: "CRITICAL deepfake incident on instagram", Incident: &inc})
	require.NoError(t, err)
	assert.Equal(t, "CRITICAL deepfake incident on instagram", received.Title)
}

func TestSendReport_TeamsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	s := NewService(&config.Config{TeamsWebhookURL: server.URL})

	err := s.SendReport(sampleReport())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrCollaborator))
}

func TestSendAlert_Email(t *testing.T) {
	mailer := &recordingMailer{}
	s := NewService(&config.Config{NotificationEmail: "soc@example.com", SMTPUsername: "bot@example.com"})
	s.mailer = mailer
	inc := sampleIncident()

	require.NoError(t, s.SendAlert(&models.Alert{Title: "CRITICAL deepfake incident on instagram", Incident: &inc}))
	require.Len(t, mailer.messages, 1)
	assert.Equal(t, []string{"[ALERT] CRITICAL deepfake incident on instagram"}, mailer.messages[0].GetHeader("Subject"))
	assert.Equal(t, []string{"soc@example.com"}, mailer.messages[0].GetHeader("To"))
}

func TestSendReport_EmailFailure(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("connection refused")}
	s := NewService(&config.Config{NotificationEmail: "soc@example.com"})
	s.mailer = mailer

	err := s.SendReport(sampleReport())
	assert.Error(t, err)
	assert.Len(t, mailer.messages, 1)
}

func TestSendAlert_NoChannels(t *testing.T) {
	s := NewService(&config.Config{})
	assert.False(t, s.Enabled())
	assert.NoError(t, s.SendAlert(&models.Alert{Title: "x"}))
}
