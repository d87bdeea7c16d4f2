package models

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the ordinal urgency of an incident
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity from least to most urgent
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank returns the ordinal position of the severity, -1 if unknown
func (s Severity) Rank() int {
	for i, sev := range Severities {
		if sev == s {
			return i
		}
	}
	return -1
}

// ParseSeverity converts a case-insensitive string into a Severity
func ParseSeverity(value string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(value)))
	if s.Rank() < 0 {
		return "", fmt.Errorf("unknown severity %q", value)
	}
	return s, nil
}

// Status is the lifecycle state of an incident
type Status string

const (
	StatusPending       Status = "pending"
	StatusInvestigating Status = "investigating"
	StatusConfirmed     Status = "confirmed"
	StatusResolved      Status = "resolved"
	StatusFalsePositive Status = "false_positive"
)

// Statuses lists every incident status
var Statuses = []Status{StatusPending, StatusInvestigating, StatusConfirmed, StatusResolved, StatusFalsePositive}

// Valid reports whether s is one of Statuses
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus converts a case-insensitive string into a Status
func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", value)
	}
	return s, nil
}

// MetadataStatusUpdates is the metadata key that holds the status history
const MetadataStatusUpdates = "status_updates"

// StatusUpdate is one entry of an incident's append-only status history
type StatusUpdate struct {
	Timestamp time.Time `json:"timestamp"`
	OldStatus Status    `json:"old_status"`
	NewStatus Status    `json:"new_status"`
	Note      string    `json:"notes,omitempty"`
}

// Detection is a positive classifier result ready to become an incident
type Detection struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Platform    string         `json:"platform"`
	SourceURL   string         `json:"url"`
	MediaRef    string         `json:"media_ref,omitempty"`
	Confidence  float64        `json:"confidence"`
	Verdict     Verdict        `json:"verdict"`
	RiskScore   float64        `json:"risk_score"`
	SourceType  string         `json:"source_type"`
	SourceID    string         `json:"source_id"`
	Likes       int            `json:"likes"`
	Comments    int            `json:"comments"`
	Shares      int            `json:"shares"`
	Topics      []string       `json:"topics"`
	Metadata    map[string]any `json:"metadata"`
}

// Engagement is the like+comment total used for severity and reach
func (d Detection) Engagement() int {
	return d.Likes + d.Comments
}

// Incident is a stored, severity-ranked record of a confirmed detection
type Incident struct {
	ID             string         `json:"id"`
	Sequence       uint64         `json:"sequence"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Severity       Severity       `json:"severity"`
	Status         Status         `json:"status"`
	Platform       string         `json:"platform"`
	SourceURL      string         `json:"source_url"`
	MediaRef       *string        `json:"media_ref"`
	Confidence     float64        `json:"confidence"`
	Verdict        Verdict        `json:"verdict"`
	RiskScore      float64        `json:"risk_score"`
	CreatedAt      time.Time      `json:"created_at"`
	SourceType     string         `json:"source_type"`
	SourceID       string         `json:"source_id"`
	Metadata       map[string]any `json:"metadata"`
	Tags           []string       `json:"tags"`
	EstimatedReach int            `json:"estimated_reach"`
	NetworkSize    int            `json:"network_size"`
}

// StatusUpdates returns the recorded status history, oldest first
func (i *Incident) StatusUpdates() []StatusUpdate {
	if i.Metadata == nil {
		return nil
	}
	updates, _ := i.Metadata[MetadataStatusUpdates].([]StatusUpdate)
	return updates
}

// Clone returns a copy that shares no mutable state with the receiver.
// Nested metadata values other than the status history are treated as immutable.
func (i *Incident) Clone() Incident {
	out := *i
	out.Tags = append([]string(nil), i.Tags...)
	if i.MediaRef != nil {
		ref := *i.MediaRef
		out.MediaRef = &ref
	}
	out.Metadata = make(map[string]any, len(i.Metadata))
	for k, v := range i.Metadata {
		out.Metadata[k] = v
	}
	if updates := i.StatusUpdates(); updates != nil {
		out.Metadata[MetadataStatusUpdates] = append([]StatusUpdate(nil), updates...)
	}
	return out
}

// AggregateStats summarizes the live incident set
type AggregateStats struct {
	Total               int              `json:"total"`
	Recent24h           int              `json:"recent_24h"`
	BySeverity          map[Severity]int `json:"by_severity"`
	ByPlatform          map[string]int   `json:"by_platform"`
	ByStatus            map[Status]int   `json:"by_status"`
	AvgConfidence       float64          `json:"avg_confidence"`
	TotalEstimatedReach int              `json:"total_estimated_reach"`
}
