package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClassifier_Classify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/analyze/video-url", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://cdn/clip.mp4", body["url"])

		fmt.Fprint(w, `{"verdict":"FAKE","confidence":0.9312,"processing_time":4.2,"model":"videomae","frame_count":16,"probabilities":{"fake":0.9312,"real":0.0688}}`)
	}))
	defer server.Close()

	c := NewHTTPClassifier(server.URL+"/api", "secret", time.Second)

	result, err := c.Classify(context.Background(), "https://cdn/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictFake, result.Verdict)
	assert.InDelta(t, 0.9312, result.Confidence, 1e-9)
	assert.Equal(t, "videomae", result.Model)
	assert.Equal(t, 16, result.FrameCount)
	assert.InDelta(t, 0.0688, result.Probabilities["real"], 1e-9)
}

func TestHTTPClassifier_InvalidResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "Server error", status: http.StatusInternalServerError, body: `{"detail":"model not loaded"}`},
		{name: "Malformed body", status: http.StatusOK, body: `not json`},
		{name: "Unknown verdict", status: http.StatusOK, body: `{"verdict":"MAYBE","confidence":0.5}`},
		{name: "Confidence out of range", status: http.StatusOK, body: `{"verdict":"FAKE","confidence":1.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			_, err := NewHTTPClassifier(server.URL, "", time.Second).Classify(context.Background(), "https://cdn/clip.mp4")
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrCollaborator))
		})
	}
}

func TestHTTPClassifier_LowercaseVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"verdict":"real","confidence":0.8}`)
	}))
	defer server.Close()

	result, err := NewHTTPClassifier(server.URL, "", time.Second).Classify(context.Background(), "ref")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictReal, result.Verdict)
}

func TestHTTPClassifier_EmptyMediaRef(t *testing.T) {
	_, err := NewHTTPClassifier("http://127.0.0.1:1", "", time.Second).Classify(context.Background(), "")
	assert.True(t, errors.Is(err, models.ErrCollaborator))
}

func TestHTTPClassifier_BreakerOpens(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewHTTPClassifier(server.URL, "", time.Second)

	for i := 0; i < failureThreshold; i++ {
		_, err := c.Classify(context.Background(), "ref")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrClassifierUnavailable))
	}
	assert.Equal(t, "open", c.State())

	_, err := c.Classify(context.Background(), "ref")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClassifierUnavailable))
	assert.True(t, errors.Is(err, models.ErrCollaborator))
	assert.Equal(t, int32(failureThreshold), atomic.LoadInt32(&calls), "open breaker must not reach the detector")
}

func TestHTTPClassifier_RejectedMediaDoesNotOpenBreaker(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		atomic.AddInt32(&calls, 1)

		if body["url"] == "https://cdn/private.mp4" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"detail":"Failed to download video"}`)
			return
		}
		fmt.Fprint(w, `{"verdict":"FAKE","confidence":0.91}`)
	}))
	defer server.Close()

	c := NewHTTPClassifier(server.URL, "", time.Second)

	for i := 0; i < failureThreshold; i++ {
		_, err := c.Classify(context.Background(), "https://cdn/private.mp4")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMediaRejected))
		assert.True(t, errors.Is(err, models.ErrCollaborator))
	}
	assert.Equal(t, "closed", c.State())

	result, err := c.Classify(context.Background(), "https://cdn/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictFake, result.Verdict)
	assert.Equal(t, int32(failureThreshold+1), atomic.LoadInt32(&calls))
}

func TestHTTPClassifier_ThrottlingCountsAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewHTTPClassifier(server.URL, "", time.Second)
	for i := 0; i < failureThreshold; i++ {
		_, err := c.Classify(context.Background(), "ref")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrMediaRejected))
	}
	assert.Equal(t, "open", c.State())
}
