package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	analyzePath = "/analyze/video-url"

	// DefaultTimeout covers frame extraction plus inference on the detector side
	DefaultTimeout = 60 * time.Second

	failureThreshold = 5
	openTimeout      = 2 * time.Minute
)

var (
	// ErrClassifierUnavailable is returned without calling the detector while the breaker is open
	ErrClassifierUnavailable = fmt.Errorf("%w: classifier unavailable", models.ErrCollaborator)

	// ErrMediaRejected means the detector refused one item, e.g. it could not
	// download the video. It does not count against the breaker.
	ErrMediaRejected = fmt.Errorf("%w: classifier rejected media", models.ErrCollaborator)
)

// Classifier decides whether the media behind a reference is synthetic
type Classifier interface {
	Classify(ctx context.Context, mediaRef string) (*models.Classification, error)
}

// HTTPClassifier calls the deepfake detection API
type HTTPClassifier struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker[*models.Classification]
}

// Ensure HTTPClassifier implements Classifier
var _ Classifier = (*HTTPClassifier)(nil)

type analyzeRequest struct {
	URL string `json:"url"`
}

type analyzeResponse struct {
	Verdict        string             `json:"verdict"`
	Confidence     float64            `json:"confidence"`
	ProcessingTime float64            `json:"processing_time"`
	Model          string             `json:"model"`
	FrameCount     int                `json:"frame_count"`
	Probabilities  map[string]float64 `json:"probabilities"`
}

// NewHTTPClassifier creates a client for the detection API rooted at baseURL.
// apiKey is optional; a zero timeout uses DefaultTimeout.
func NewHTTPClassifier(baseURL, apiKey string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "Deepfake-Watch-Bot/1.0")
	if apiKey != "" {
		client.SetHeader("X-API-Key", apiKey)
	}

	settings := gobreaker.Settings{
		Name:        "classifier",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrMediaRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Classifier circuit breaker changed state")
		},
	}

	return &HTTPClassifier{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[*models.Classification](settings),
	}
}

// Classify submits mediaRef for analysis. Every failure wraps models.ErrCollaborator.
func (c *HTTPClassifier) Classify(ctx context.Context, mediaRef string) (*models.Classification, error) {
	if mediaRef == "" {
		return nil, fmt.Errorf("%w: empty media reference", models.ErrCollaborator)
	}

	result, err := c.breaker.Execute(func() (*models.Classification, error) {
		return c.analyze(ctx, mediaRef)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
		}
		return nil, err
	}

	return result, nil
}

// State reports the breaker state for status pages
func (c *HTTPClassifier) State() string {
	return c.breaker.State().String()
}

func (c *HTTPClassifier) analyze(ctx context.Context, mediaRef string) (*models.Classification, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(analyzeRequest{URL: mediaRef}).
		Post(analyzePath)
	if err != nil {
		return nil, fmt.Errorf("%w: classifier request failed: %v", models.ErrCollaborator, err)
	}

	if rejectedItem(resp.StatusCode()) {
		return nil, fmt.Errorf("%w: status %d: %s", ErrMediaRejected, resp.StatusCode(), string(resp.Body()))
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("%w: classifier returned status %d: %s", models.ErrCollaborator, resp.StatusCode(), string(resp.Body()))
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse classifier response: %v", models.ErrCollaborator, err)
	}

	verdict := models.Verdict(strings.ToUpper(parsed.Verdict))
	if verdict != models.VerdictFake && verdict != models.VerdictReal {
		return nil, fmt.Errorf("%w: unknown verdict %q", models.ErrCollaborator, parsed.Verdict)
	}
	if math.IsNaN(parsed.Confidence) || parsed.Confidence < 0 || parsed.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range", models.ErrCollaborator, parsed.Confidence)
	}

	logrus.Debugf("Classifier: %s (%.2f) for %s in %.2fs", verdict, parsed.Confidence, mediaRef, parsed.ProcessingTime)

	return &models.Classification{
		Verdict:       verdict,
		Confidence:    parsed.Confidence,
		Model:         parsed.Model,
		FrameCount:    parsed.FrameCount,
		Probabilities: parsed.Probabilities,
	}, nil
}

// rejectedItem reports whether status is a per-item client error. 429 is
// throttling of the whole client and counts as a failure.
func rejectedItem(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}
