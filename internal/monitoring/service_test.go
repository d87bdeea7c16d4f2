package monitoring

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/config"
	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/azure/deepfake-watch-bot/internal/screening"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeFetcher serves canned items per topic and records the call order
type fakeFetcher struct {
	mu     sync.Mutex
	items  map[string][]models.ContentItem
	errs   map[string]error
	panics int
	calls  []string
	block  bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, topic string, limit int) ([]models.ContentItem, error) {
	f.mu.Lock()
	f.calls = append(f.calls, topic)
	if f.panics > 0 {
		f.panics--
		f.mu.Unlock()
		panic("unexpected payload shape")
	}
	items, err, block := f.items[topic], f.errs[topic], f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return items, err
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// MockClassifier is a mock implementation of the classifier
type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, mediaRef string) (*models.Classification, error) {
	args := m.Called(ctx, mediaRef)
	result, _ := args.Get(0).(*models.Classification)
	return result, args.Error(1)
}

// recordingIncidents captures the detections handed to the incident store
type recordingIncidents struct {
	mu         sync.Mutex
	detections []models.Detection
}

func (r *recordingIncidents) Create(d models.Detection) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detections = append(r.detections, d)
	return "INC-TEST", nil
}

func (r *recordingIncidents) Detections() []models.Detection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Detection(nil), r.detections...)
}

func testConfig() *config.Config {
	return &config.Config{
		MinEngagement:       100,
		MaxItemsPerCycle:    50,
		FetchBatchSize:      20,
		EscalationThreshold: 0.6,
		TopicPause:          time.Millisecond,
		ItemPause:           time.Millisecond,
		CycleInterval:       time.Hour,
		FaultCooldown:       5 * time.Millisecond,
	}
}

func contentItem(id, ref string, kind models.MediaKind, text, author string) models.ContentItem {
	return models.ContentItem{
		ID:        id,
		Platform:  "instagram",
		URL:       "https://instagram.com/p/" + id,
		MediaRef:  ref,
		MediaKind: kind,
		Text:      text,
		Author:    author,
		PostedAt:  time.Now().Add(-time.Hour),
		Likes:     400,
		Comments:  50,
		Topics:    []string{"election"},
	}
}

// suspicious saturates the risk score: synthetic, fabricated and scandal markers plus a suspicious handle
func suspicious(id, ref string, kind models.MediaKind) models.ContentItem {
	return contentItem(id, ref, kind, "Shocking deepfake of the senator #election", "viral_clips")
}

func harmless(id string) models.ContentItem {
	item := contentItem(id, "https://cdn/"+id+".mp4", models.MediaVideo, "Debate recap #election", "city_news")
	item.AuthorVerified = true
	return item
}

func fakeVerdict(confidence float64) *models.Classification {
	return &models.Classification{Verdict: models.VerdictFake, Confidence: confidence, Model: "videomae"}
}

func newTestService(cfg *config.Config, fetcher *fakeFetcher, clf *MockClassifier, incidents IncidentCreator) *Service {
	return NewService(cfg, fetcher, clf, incidents)
}

// jobSummary reads a job directly, including stopped ones Status leaves out
func jobSummary(t *testing.T, s *Service, id string) models.JobSummary {
	t.Helper()
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		t.Errorf("unknown job %s", id)
		return models.JobSummary{}
	}
	return j.summary()
}

func shutdown(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestService_StartRejectsEmptyTopics(t *testing.T) {
	s := newTestService(testConfig(), &fakeFetcher{}, &MockClassifier{}, &recordingIncidents{})

	tests := []struct {
		name   string
		topics []string
	}{
		{name: "Nil topics", topics: nil},
		{name: "Empty topics", topics: []string{}},
		{name: "Blank topics", topics: []string{" ", "#", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := s.Start(tt.topics, nil)
			assert.Empty(t, id)
			assert.True(t, errors.Is(err, models.ErrInvalidConfig))
		})
	}

	assert.Equal(t, 0, s.Status().ActiveJobs)
	assert.Empty(t, s.jobs)
}

func TestService_StartRejectsNonPositiveLimits(t *testing.T) {
	cfg := testConfig()
	cfg.FetchBatchSize = 0
	s := newTestService(cfg, &fakeFetcher{}, &MockClassifier{}, &recordingIncidents{})

	_, err := s.Start([]string{"election"}, nil)
	assert.True(t, errors.Is(err, models.ErrInvalidConfig))
}

func TestService_StopUnknownAndTwice(t *testing.T) {
	s := newTestService(testConfig(), &fakeFetcher{}, &MockClassifier{}, &recordingIncidents{})
	defer shutdown(t, s)

	id, err := s.Start([]string{"election"}, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "job_"))

	assert.False(t, s.Stop("job_missing"))
	assert.True(t, jobSummary(t, s, id).Active, "unknown id must not touch other jobs")

	assert.True(t, s.Stop(id))
	assert.True(t, s.Stop(id))
	assert.False(t, jobSummary(t, s, id).Active)
	assert.Equal(t, 0, s.Status().ActiveJobs)
}

func TestService_PollCycleEscalatesOnlyRiskyAnalyzableItems(t *testing.T) {
	stale := suspicious("stale", "https://cdn/stale.mp4", models.MediaVideo)
	stale.PostedAt = time.Now().Add(-48 * time.Hour)
	quiet := suspicious("quiet", "https://cdn/quiet.mp4", models.MediaVideo)
	quiet.Likes, quiet.Comments = 10, 2

	fetcher := &fakeFetcher{items: map[string][]models.ContentItem{
		"election": {
			suspicious("fake", "https://cdn/fake.mp4", models.MediaVideo),
			suspicious("real", "https://cdn/real.mp4", models.MediaMixed),
			suspicious("photo", "https://cdn/photo.jpg", models.MediaImage),
			harmless("recap"),
			stale,
			quiet,
		},
	}}

	clf := &MockClassifier{}
	clf.On("Classify", mock.Anything, "https://cdn/fake.mp4").Return(fakeVerdict(0.93), nil)
	clf.On("Classify", mock.Anything, "https://cdn/real.mp4").Return(&models.Classification{Verdict: models.VerdictReal, Confidence: 0.8}, nil)

	incidents := &recordingIncidents{}
	s := newTestService(testConfig(), fetcher, clf, incidents)
	defer shutdown(t, s)

	id, err := s.Start([]string{"#election"}, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return jobSummary(t, s, id).LastPolledAt != nil
	}, waitFor, tick)

	summary := jobSummary(t, s, id)
	assert.Equal(t, int64(4), summary.ItemsScanned, "filtered-out items are not counted")
	assert.Equal(t, int64(1), summary.DetectionsConfirmed)

	clf.AssertNumberOfCalls(t, "Classify", 2)
	clf.AssertNotCalled(t, "Classify", mock.Anything, "https://cdn/photo.jpg")
	clf.AssertNotCalled(t, "Classify", mock.Anything, "https://cdn/recap.mp4")

	detections := incidents.Detections()
	require.Len(t, detections, 1)
	d := detections[0]
	assert.Equal(t, "Deepfake detected: @viral_clips post", d.Title)
	assert.Equal(t, "instagram_monitor", d.SourceType)
	assert.Equal(t, "fake", d.SourceID)
	assert.Equal(t, 0.93, d.Confidence)
	assert.Equal(t, 1.0, d.RiskScore)
	assert.Equal(t, id, d.Metadata["monitoring_job"])

	status := s.Status()
	assert.Equal(t, 1, status.ActiveJobs)
	assert.Equal(t, 1, status.TotalTopics)
	assert.Equal(t, 25.0, status.DetectionRate)
}

func TestService_KeywordsNarrowTheFilter(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]models.ContentItem{
		"news": {harmless("recap"), contentItem("senate", "", models.MediaImage, "Senate vote tonight", "city_news")},
	}}
	s := newTestService(testConfig(), fetcher, &MockClassifier{}, &recordingIncidents{})
	defer shutdown(t, s)

	id, err := s.Start([]string{"news"}, []string{"SENATE"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return jobSummary(t, s, id).LastPolledAt != nil
	}, waitFor, tick)
	assert.Equal(t, int64(1), jobSummary(t, s, id).ItemsScanned)
}

func TestService_TopicsProcessedInOrder(t *testing.T) {
	fetcher := &fakeFetcher{}
	s := newTestService(testConfig(), fetcher, &MockClassifier{}, &recordingIncidents{})
	defer shutdown(t, s)

	_, err := s.Start([]string{"alpha", "beta", "gamma"}, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(fetcher.Calls()) == 3 }, waitFor, tick)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, fetcher.Calls())
}

func TestService_CollaboratorFailuresAreContained(t *testing.T) {
	fetcher := &fakeFetcher{
		items: map[string][]models.ContentItem{
			"ok": {
				suspicious("first", "https://cdn/first.mp4", models.MediaVideo),
				suspicious("second", "https://cdn/second.mp4", models.MediaVideo),
			},
		},
		errs: map[string]error{"broken": errors.New("upstream timeout")},
	}

	clf := &MockClassifier{}
	clf.On("Classify", mock.Anything, "https://cdn/first.mp4").Return(nil, models.ErrCollaborator)
	clf.On("Classify", mock.Anything, "https://cdn/second.mp4").Return(fakeVerdict(0.88), nil)

	incidents := &recordingIncidents{}
	s := newTestService(testConfig(), fetcher, clf, incidents)
	defer shutdown(t, s)

	id, err := s.Start([]string{"broken", "ok"}, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return jobSummary(t, s, id).LastPolledAt != nil
	}, waitFor, tick)

	summary := jobSummary(t, s, id)
	assert.True(t, summary.Active)
	assert.Equal(t, int64(2), summary.ItemsScanned)
	assert.Equal(t, int64(1), summary.DetectionsConfirmed)
	assert.Len(t, incidents.Detections(), 1)
}

func TestService_InternalFaultRetriesCycle(t *testing.T) {
	fetcher := &fakeFetcher{
		panics: 1,
		items: map[string][]models.ContentItem{
			"election": {suspicious("fake", "https://cdn/fake.mp4", models.MediaVideo)},
		},
	}
	clf := &MockClassifier{}
	clf.On("Classify", mock.Anything, "https://cdn/fake.mp4").Return(fakeVerdict(0.97), nil)

	s := newTestService(testConfig(), fetcher, clf, &recordingIncidents{})
	defer shutdown(t, s)

	id, err := s.Start([]string{"election"}, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return jobSummary(t, s, id).DetectionsConfirmed == 1
	}, waitFor, tick)
	assert.True(t, jobSummary(t, s, id).Active)
	assert.Equal(t, []string{"election", "election"}, fetcher.Calls())
}

func TestService_StopTakesEffectAtItemBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.ItemPause = time.Hour

	fetcher := &fakeFetcher{items: map[string][]models.ContentItem{
		"election": {harmless("a"), harmless("b"), harmless("c")},
	}}
	s := newTestService(cfg, fetcher, &MockClassifier{}, &recordingIncidents{})

	id, err := s.Start([]string{"election"}, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return jobSummary(t, s, id).ItemsScanned == 1
	}, waitFor, tick)

	require.True(t, s.Stop(id))
	shutdown(t, s)

	assert.Equal(t, int64(1), jobSummary(t, s, id).ItemsScanned)
}

func TestService_ItemBudgetPerCycle(t *testing.T) {
	cfg := testConfig()
	cfg.MaxItemsPerCycle = 2

	fetcher := &fakeFetcher{items: map[string][]models.ContentItem{
		"alpha": {harmless("a1"), harmless("a2"), harmless("a3")},
		"beta":  {harmless("b1")},
	}}
	s := newTestService(cfg, fetcher, &MockClassifier{}, &recordingIncidents{})
	defer shutdown(t, s)

	id, err := s.Start([]string{"alpha", "beta"}, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return jobSummary(t, s, id).LastPolledAt != nil
	}, waitFor, tick)
	assert.Equal(t, int64(2), jobSummary(t, s, id).ItemsScanned)
	assert.Equal(t, []string{"alpha"}, fetcher.Calls())
}

func TestService_StatusAggregatesActiveJobs(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]models.ContentItem{
		"alpha": {harmless("a1"), harmless("a2")},
		"beta":  {harmless("b1")},
	}}
	s := newTestService(testConfig(), fetcher, &MockClassifier{}, &recordingIncidents{})
	defer shutdown(t, s)

	first, err := s.Start([]string{"alpha"}, nil)
	require.NoError(t, err)
	second, err := s.Start([]string{"beta", "gamma"}, nil)
	require.NoError(t, err)
	third, err := s.Start([]string{"delta"}, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return jobSummary(t, s, first).LastPolledAt != nil && jobSummary(t, s, second).LastPolledAt != nil
	}, waitFor, tick)
	s.Stop(third)

	status := s.Status()
	assert.Equal(t, 2, status.ActiveJobs)
	assert.Equal(t, 3, status.TotalTopics)
	assert.Equal(t, int64(3), status.ItemsScanned)
	assert.Equal(t, 0.0, status.DetectionRate)
	require.Len(t, status.Jobs, 2)
	for _, job := range status.Jobs {
		assert.NotEqual(t, third, job.ID)
	}
}

func TestService_ShutdownStopsAllJobs(t *testing.T) {
	s := newTestService(testConfig(), &fakeFetcher{}, &MockClassifier{}, &recordingIncidents{})

	a, err := s.Start([]string{"alpha"}, nil)
	require.NoError(t, err)
	b, err := s.Start([]string{"beta"}, nil)
	require.NoError(t, err)

	shutdown(t, s)

	assert.False(t, jobSummary(t, s, a).Active)
	assert.False(t, jobSummary(t, s, b).Active)
	assert.Equal(t, 0, s.Status().ActiveJobs)
}

func TestService_StartAfterShutdownIsRejected(t *testing.T) {
	fetcher := &fakeFetcher{}
	s := newTestService(testConfig(), fetcher, &MockClassifier{}, &recordingIncidents{})

	shutdown(t, s)

	id, err := s.Start([]string{"election"}, nil)
	assert.ErrorIs(t, err, ErrShuttingDown)
	assert.Empty(t, id)
	assert.Equal(t, 0, s.Status().ActiveJobs)
	assert.Empty(t, fetcher.Calls())
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestService_ShutdownTimeoutCancelsInFlightCalls(t *testing.T) {
	fetcher := &fakeFetcher{block: true}
	s := newTestService(testConfig(), fetcher, &MockClassifier{}, &recordingIncidents{})

	_, err := s.Start([]string{"alpha"}, nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(fetcher.Calls()) == 1 }, waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)

	// the blocked fetch saw the cancellation, so the loop can exit
	done := make(chan struct{})
	go func() {
		s.loops.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("monitoring loop did not exit after cancellation")
	}
}

func TestBuildDetection(t *testing.T) {
	item := suspicious("post1", "https://cdn/post1.mp4", models.MediaVideo)
	item.Text = strings.Repeat("é", 150)
	j := &job{id: "job_1"}

	d := buildDetection(j, item, screening.Assessment{Score: 0.7}, fakeVerdict(0.91))

	assert.Equal(t, "Deepfake content detected in instagram post by @viral_clips. Content: "+strings.Repeat("é", 100)+"...", d.Description)
	assert.Equal(t, models.VerdictFake, d.Verdict)
	assert.Equal(t, item.URL, d.SourceURL)
	assert.Equal(t, []string{"election"}, d.Metadata["hashtags"])

	engagement, ok := d.Metadata["engagement"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 400, engagement["likes"])
	assert.Equal(t, 50, engagement["comments"])
	assert.InDelta(t, 0.45, engagement["rate"], 1e-9)

	anonymous := item
	anonymous.Author = ""
	assert.Equal(t, "Deepfake detected: @unknown post", buildDetection(j, anonymous, screening.Assessment{Score: 0.7}, fakeVerdict(0.91)).Title)
}

func TestNormalizeList(t *testing.T) {
	assert.Equal(t, []string{"election", "News"}, normalizeList([]string{" #election", "News", "news", "", "#"}, true))
	assert.Equal(t, []string{"#tag"}, normalizeList([]string{"#tag"}, false))
	assert.Equal(t, []string{}, normalizeList(nil, false))
}
