package models

import "time"

// MediaKind describes what kind of media a content item carries
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaMixed MediaKind = "mixed" // carousel / multi-asset posts
)

// Analyzable reports whether the classifier can inspect this kind of media
func (k MediaKind) Analyzable() bool {
	return k == MediaVideo || k == MediaMixed
}

// ContentItem represents a post fetched from a content source
type ContentItem struct {
	ID              string    `json:"id"`
	Platform        string    `json:"platform"` // "instagram", "twitter", etc.
	URL             string    `json:"url"`
	MediaRef        string    `json:"media_ref"`
	MediaKind       MediaKind `json:"media_kind"`
	Text            string    `json:"text"`
	Author          string    `json:"author"`
	AuthorVerified  bool      `json:"author_verified"`
	AuthorFollowers int       `json:"author_followers,omitempty"` // 0 when unknown
	PostedAt        time.Time `json:"posted_at"`
	Likes           int       `json:"likes"`
	Comments        int       `json:"comments"`
	Shares          int       `json:"shares,omitempty"`
	Topics          []string  `json:"topics"` // hashtags extracted from text
}

// ReactionCount is the combined reaction count used for engagement checks
func (c ContentItem) ReactionCount() int {
	return c.Likes + c.Comments + c.Shares
}

// Verdict is the classifier's decision for a piece of media
type Verdict string

const (
	VerdictFake Verdict = "FAKE"
	VerdictReal Verdict = "REAL"
)

// Classification is the result returned by the content classifier
type Classification struct {
	Verdict       Verdict            `json:"verdict"`
	Confidence    float64            `json:"confidence"`
	Model         string             `json:"model,omitempty"`
	FrameCount    int                `json:"frame_count,omitempty"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
}

// Alert represents an urgent notification
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // severity of the incident that raised it
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Incident  *Incident `json:"incident,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Report represents a periodic incident digest
type Report struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Period      string         `json:"period"` // "daily", "weekly" or "critical backlog"
	Stats       AggregateStats `json:"stats"`
	Incidents   []Incident     `json:"incidents"`
}

// JobSummary is a point-in-time view of one monitoring job
type JobSummary struct {
	ID                  string     `json:"id"`
	Topics              []string   `json:"topics"`
	Keywords            []string   `json:"keywords"`
	Active              bool       `json:"active"`
	CreatedAt           time.Time  `json:"created_at"`
	LastPolledAt        *time.Time `json:"last_polled_at"`
	ItemsScanned        int64      `json:"items_scanned"`
	DetectionsConfirmed int64      `json:"detections_confirmed"`
}

// MonitoringStatus aggregates the state of all active jobs
type MonitoringStatus struct {
	ActiveJobs          int          `json:"active_jobs"`
	TotalTopics         int          `json:"total_topics"`
	ItemsScanned        int64        `json:"items_scanned"`
	DetectionsConfirmed int64        `json:"detections_confirmed"`
	DetectionRate       float64      `json:"detection_rate"` // percent
	Jobs                []JobSummary `json:"jobs"`
}
