package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/config"
	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

const (
	reportIncidentLimit = 10
	teamsIncidentLimit  = 5
)

// mailSender is satisfied by *gomail.Dialer
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Service handles sending notifications via various channels
type Service struct {
	config *config.Config
	client *resty.Client
	mailer mailSender
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
		mailer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
	}
}

// Enabled reports whether any delivery channel is configured
func (s *Service) Enabled() bool {
	return s.config.TeamsWebhookURL != "" || s.config.NotificationEmail != ""
}

// SendReport sends an incident digest via configured notification channels
func (s *Service) SendReport(report *models.Report) error {
	return s.deliver("report",
		func() error { return s.postToTeams(s.buildTeamsReport(report)) },
		func() error { return s.sendReportEmail(report) },
	)
}

// SendAlert sends an urgent notification for a single high-severity incident
func (s *Service) SendAlert(alert *models.Alert) error {
	if !s.Enabled() {
		logrus.Infof("Alert not delivered, no channels configured: %s - %s", alert.Type, alert.Title)
		return nil
	}

	return s.deliver("alert",
		func() error { return s.postToTeams(s.buildTeamsAlert(alert)) },
		func() error { return s.sendAlertEmail(alert) },
	)
}

func (s *Service) deliver(kind string, teams, email func() error) error {
	var errors []string

	// Send to Teams if configured
	if s.config.TeamsWebhookURL != "" {
		if err := teams(); err != nil {
			logrus.Errorf("Failed to send Teams %s: %v", kind, err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Infof("Successfully sent %s to Teams", kind)
		}
	}

	// Send via email if configured
	if s.config.NotificationEmail != "" {
		if err := email(); err != nil {
			logrus.Errorf("Failed to send %s email: %v", kind, err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Infof("Successfully sent %s via email", kind)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("%w: notification errors: %s", models.ErrCollaborator, strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) postToTeams(message *TeamsMessage) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func severityColor(sev models.Severity) string {
	switch sev {
	case models.SeverityCritical:
		return "A4262C"
	case models.SeverityHigh:
		return "D83B01"
	case models.SeverityMedium:
		return "FFB900"
	default:
		return "0078D4"
	}
}

func (s *Service) buildTeamsAlert(alert *models.Alert) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   alert.Title,
		Text:    alert.Message,
	}

	if inc := alert.Incident; inc != nil {
		message.ThemeColor = severityColor(inc.Severity)
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle:    inc.ID,
			ActivitySubtitle: inc.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
			Facts: []TeamsFact{
				{Name: "Severity", Value: strings.ToUpper(string(inc.Severity))},
				{Name: "Platform", Value: inc.Platform},
				{Name: "Confidence", Value: fmt.Sprintf("%.1f%%", inc.Confidence*100)},
				{Name: "Risk Score", Value: fmt.Sprintf("%.2f", inc.RiskScore)},
				{Name: "Estimated Reach", Value: fmt.Sprintf("%d", inc.EstimatedReach)},
				{Name: "Source", Value: fmt.Sprintf("[%s](%s)", inc.SourceURL, inc.SourceURL)},
			},
			Markdown: true,
		})
	}

	return message
}

func (s *Service) buildTeamsReport(report *models.Report) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("Deepfake Incident Report - %s", strings.Title(report.Period)),
		Text:    fmt.Sprintf("%d incidents on record, %d in the last 24 hours", report.Stats.Total, report.Stats.Recent24h),
	}

	facts := []TeamsFact{
		{Name: "Total Incidents", Value: fmt.Sprintf("%d", report.Stats.Total)},
		{Name: "Average Confidence", Value: fmt.Sprintf("%.1f%%", report.Stats.AvgConfidence*100)},
		{Name: "Estimated Reach", Value: fmt.Sprintf("%d", report.Stats.TotalEstimatedReach)},
		{Name: "Generated", Value: report.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
	}
	for i := len(models.Severities) - 1; i >= 0; i-- {
		sev := models.Severities[i]
		facts = append(facts, TeamsFact{
			Name:  fmt.Sprintf("%s Severity", strings.Title(string(sev))),
			Value: fmt.Sprintf("%d", report.Stats.BySeverity[sev]),
		})
	}

	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts:         facts,
		Markdown:      true,
	})

	if len(report.Incidents) > 0 {
		var lines []string
		for i, inc := range report.Incidents {
			if i >= teamsIncidentLimit {
				break
			}
			lines = append(lines, fmt.Sprintf("**[%s](%s)** - %s on %s (%s, %s)",
				inc.ID, inc.SourceURL, strings.ToUpper(string(inc.Severity)), inc.Platform, inc.Status, inc.CreatedAt.Format("Jan 2")))
		}

		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Recent Incidents",
			ActivityText:  strings.Join(lines, "\n\n"),
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) sendAlertEmail(alert *models.Alert) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", "[ALERT] "+alert.Title)
	m.SetBody("text/plain", s.buildAlertText(alert))

	if err := s.mailer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *Service) buildAlertText(alert *models.Alert) string {
	var text strings.Builder

	text.WriteString(alert.Title + "\n\n")
	text.WriteString(alert.Message + "\n")

	if inc := alert.Incident; inc != nil {
		text.WriteString(fmt.Sprintf("\nIncident: %s\n", inc.ID))
		text.WriteString(fmt.Sprintf("Severity: %s\n", strings.ToUpper(string(inc.Severity))))
		text.WriteString(fmt.Sprintf("Platform: %s\n", inc.Platform))
		text.WriteString(fmt.Sprintf("Confidence: %.1f%%\n", inc.Confidence*100))
		text.WriteString(fmt.Sprintf("Estimated reach: %d\n", inc.EstimatedReach))
		text.WriteString(fmt.Sprintf("URL: %s\n", inc.SourceURL))
		if len(inc.Tags) > 0 {
			text.WriteString(fmt.Sprintf("Tags: %s\n", strings.Join(inc.Tags, ", ")))
		}
	}

	text.WriteString("\n---\nThis alert was generated automatically by the Deepfake Watch Bot.\n")
	return text.String()
}

func (s *Service) sendReportEmail(report *models.Report) error {
	subject := fmt.Sprintf("Deepfake Incident Report - %s (%d incidents)",
		strings.Title(report.Period), report.Stats.Total)

	htmlBody, err := s.buildEmailHTML(report)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", s.buildEmailText(report))
	m.AddAlternative("text/html", htmlBody)

	if err := s.mailer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func (s *Service) buildEmailHTML(report *models.Report) (string, error) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Deepfake Incident Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #0078d4; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        .incident { border-left: 4px solid #0078d4; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .incident-title { font-weight: bold; margin-bottom: 5px; }
        .incident-meta { color: #666; font-size: 0.9em; }
        .critical { border-left-color: #a4262c; }
        .high { border-left-color: #d83b01; }
        .medium { border-left-color: #ffb900; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Deepfake Incident Report</h1>
        <p>{{.Period | title}} report generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    <div class="summary">
        <h2>Summary</h2>
        <p><strong>Total Incidents:</strong> {{.Stats.Total}} ({{.Stats.Recent24h}} in the last 24 hours)</p>
        <p><strong>Average Confidence:</strong> {{percent .Stats.AvgConfidence}}</p>
        <p><strong>Estimated Reach:</strong> {{.Stats.TotalEstimatedReach}}</p>
        {{range $sev, $count := .Stats.BySeverity}}
            <p><strong>{{$sev | title}}:</strong> {{$count}}</p>
        {{end}}
    </div>

    {{if .Incidents}}
    <h2>Recent Incidents</h2>
    {{range $index, $incident := .Incidents}}
        {{if lt $index 10}}
        <div class="incident {{$incident.Severity}}">
            <div class="incident-title">
                <a href="{{$incident.SourceURL}}" target="_blank">{{$incident.ID}}: {{$incident.Title}}</a>
            </div>
            <div class="incident-meta">
                {{$incident.Severity}} | {{$incident.Platform}} | {{$incident.Status}} | {{$incident.CreatedAt.Format "Jan 2, 2006 15:04"}} | confidence {{percent $incident.Confidence}}
            </div>
            {{if $incident.Description}}
            <p>{{$incident.Description | truncate 200}}</p>
            {{end}}
        </div>
        {{end}}
    {{end}}
    {{end}}

    <hr>
    <p><small>This report was generated automatically by the Deepfake Watch Bot.</small></p>
</body>
</html>
`

	// Create template with custom functions
	t := template.New("email").Funcs(template.FuncMap{
		"title": func(v any) string { return strings.Title(fmt.Sprint(v)) },
		"percent": func(f float64) string {
			return fmt.Sprintf("%.1f%%", f*100)
		},
		"truncate": func(length int, s string) string {
			if len(s) <= length {
				return s
			}
			return s[:length] + "..."
		},
	})

	t, err := t.Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, report); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *Service) buildEmailText(report *models.Report) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("Deepfake Incident Report - %s\n", strings.Title(report.Period)))
	text.WriteString(fmt.Sprintf("Generated: %s\n\n", report.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")))

	text.WriteString("SUMMARY\n")
	text.WriteString("=======\n")
	text.WriteString(fmt.Sprintf("Total Incidents: %d\n", report.Stats.Total))
	text.WriteString(fmt.Sprintf("Last 24 Hours: %d\n", report.Stats.Recent24h))
	text.WriteString(fmt.Sprintf("Average Confidence: %.1f%%\n", report.Stats.AvgConfidence*100))
	for i := len(models.Severities) - 1; i >= 0; i-- {
		sev := models.Severities[i]
		text.WriteString(fmt.Sprintf("%s: %d\n", strings.Title(string(sev)), report.Stats.BySeverity[sev]))
	}

	if len(report.Incidents) > 0 {
		text.WriteString("\nRECENT INCIDENTS\n")
		text.WriteString("================\n")

		for i, inc := range report.Incidents {
			if i >= reportIncidentLimit {
				break
			}
			text.WriteString(fmt.Sprintf("\n%d. %s - %s\n", i+1, inc.ID, inc.Title))
			text.WriteString(fmt.Sprintf("   Severity: %s | Platform: %s | Status: %s | Date: %s\n",
				inc.Severity, inc.Platform, inc.Status, inc.CreatedAt.Format("Jan 2, 2006 15:04")))
			text.WriteString(fmt.Sprintf("   URL: %s\n", inc.SourceURL))
		}
	}

	text.WriteString("\n---\nThis report was generated automatically by the Deepfake Watch Bot.\n")

	return text.String()
}
