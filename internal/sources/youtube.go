package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultYouTubeAPI is the Data API root used when no override is configured
const DefaultYouTubeAPI = "https://www.googleapis.com/youtube/v3"

// YouTubeSource finds recent videos tagged with a hashtag through the YouTube Data API
type YouTubeSource struct {
	apiKey  string
	client  *resty.Client
	limiter *rate.Limiter
}

// Ensure YouTubeSource implements Source
var _ Source = (*YouTubeSource)(nil)

type youTubeSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type youTubeVideosResponse struct {
	Items []youTubeVideo `json:"items"`
}

type youTubeVideo struct {
	ID      string `json:"id"`
	Snippet struct {
		Title        string `json:"title"`
		Description  string `json:"description"`
		ChannelTitle string `json:"channelTitle"`
		PublishedAt  string `json:"publishedAt"`
	} `json:"snippet"`
	Statistics struct {
		LikeCount    string `json:"likeCount"`
		CommentCount string `json:"commentCount"`
	} `json:"statistics"`
}

// NewYouTubeSource creates a new YouTube source. baseURL may be empty.
func NewYouTubeSource(apiKey, baseURL string, requestsPerMinute int) *YouTubeSource {
	if baseURL == "" {
		baseURL = DefaultYouTubeAPI
	}
	return &YouTubeSource{
		apiKey: apiKey,
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetTimeout(30*time.Second).
			SetHeader("User-Agent", userAgent),
		limiter: newLimiter(requestsPerMinute),
	}
}

func (y *YouTubeSource) GetName() string {
	return "youtube"
}

func (y *YouTubeSource) IsEnabled() bool {
	return y.apiKey != ""
}

// Fetch returns the newest videos for the hashtag with their engagement statistics
func (y *YouTubeSource) Fetch(ctx context.Context, topic string, limit int) ([]models.ContentItem, error) {
	if !y.IsEnabled() {
		logrus.Debug("YouTube source disabled - missing API key")
		return nil, nil
	}

	hashtag := normalizeTopic(topic)
	ids, err := y.searchVideoIDs(ctx, hashtag, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// search results carry no statistics, so look the videos up in one batch
	resp, err := y.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"part": "snippet,statistics",
			"id":   strings.Join(ids, ","),
			"key":  y.apiKey,
		}).
		Get("/videos")
	if err != nil {
		return nil, fmt.Errorf("youtube videos request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("youtube API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var videos youTubeVideosResponse
	if err := json.Unmarshal(resp.Body(), &videos); err != nil {
		return nil, fmt.Errorf("failed to parse YouTube videos response: %w", err)
	}

	items := make([]models.ContentItem, 0, len(videos.Items))
	for _, video := range videos.Items {
		publishedAt, err := time.Parse(time.RFC3339, video.Snippet.PublishedAt)
		if err != nil {
			logrus.Errorf("Failed to parse YouTube timestamp: %v", err)
			continue
		}

		text := video.Snippet.Title + "\n" + video.Snippet.Description
		watchURL := "https://www.youtube.com/watch?v=" + video.ID

		items = append(items, models.ContentItem{
			ID:        "youtube_" + video.ID,
			Platform:  "youtube",
			URL:       watchURL,
			MediaRef:  watchURL,
			MediaKind: models.MediaVideo,
			Text:      text,
			Author:    video.Snippet.ChannelTitle,
			PostedAt:  publishedAt,
			Likes:     atoiOrZero(video.Statistics.LikeCount),
			Comments:  atoiOrZero(video.Statistics.CommentCount),
			Topics:    ExtractHashtags(text),
		})
	}

	logrus.Debugf("YouTube returned %d videos for #%s", len(items), hashtag)
	return items, nil
}

func (y *YouTubeSource) searchVideoIDs(ctx context.Context, hashtag string, limit int) ([]string, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := y.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"part":           "id",
			"q":              "#" + hashtag,
			"type":           "video",
			"order":          "date",
			"publishedAfter": time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339),
			"maxResults":     strconv.Itoa(clamp(limit, 1, 50)),
			"key":            y.apiKey,
		}).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("youtube search request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("youtube API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var search youTubeSearchResponse
	if err := json.Unmarshal(resp.Body(), &search); err != nil {
		return nil, fmt.Errorf("failed to parse YouTube search response: %w", err)
	}

	var ids []string
	for _, item := range search.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	return ids, nil
}

func atoiOrZero(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}
