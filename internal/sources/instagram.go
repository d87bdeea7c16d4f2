package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultInstagramAPI is the Graph API root used when no override is configured
const DefaultInstagramAPI = "https://graph.facebook.com/v19.0"

// InstagramSource polls hashtag media through the Instagram Graph API
type InstagramSource struct {
	accessToken string
	userID      string
	client      *resty.Client
	limiter     *rate.Limiter

	mu         sync.Mutex
	hashtagIDs map[string]string
}

// Ensure InstagramSource implements Source
var _ Source = (*InstagramSource)(nil)

type instagramHashtagSearchResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

type instagramMediaResponse struct {
	Data []instagramMedia `json:"data"`
}

type instagramMedia struct {
	ID            string `json:"id"`
	Caption       string `json:"caption"`
	MediaType     string `json:"media_type"` // IMAGE, VIDEO, CAROUSEL_ALBUM
	MediaURL      string `json:"media_url"`
	Permalink     string `json:"permalink"`
	Timestamp     string `json:"timestamp"`
	LikeCount     int    `json:"like_count"`
	CommentsCount int    `json:"comments_count"`
	Username      string `json:"username"`
}

// NewInstagramSource creates a new Instagram source. baseURL may be empty.
func NewInstagramSource(accessToken, userID, baseURL string, requestsPerMinute int) *InstagramSource {
	if baseURL == "" {
		baseURL = DefaultInstagramAPI
	}
	return &InstagramSource{
		accessToken: accessToken,
		userID:      userID,
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetTimeout(30*time.Second).
			SetHeader("User-Agent", userAgent),
		limiter:    newLimiter(requestsPerMinute),
		hashtagIDs: make(map[string]string),
	}
}

func (s *InstagramSource) GetName() string {
	return "instagram"
}

func (s *InstagramSource) IsEnabled() bool {
	return s.accessToken != "" && s.userID != ""
}

// Fetch returns the most recent media posted under the hashtag
func (s *InstagramSource) Fetch(ctx context.Context, topic string, limit int) ([]models.ContentItem, error) {
	if !s.IsEnabled() {
		logrus.Debug("Instagram source disabled - missing access token or user id")
		return nil, nil
	}

	hashtag := strings.ToLower(normalizeTopic(topic))
	hashtagID, err := s.lookupHashtag(ctx, hashtag)
	if err != nil {
		return nil, err
	}
	if hashtagID == "" {
		logrus.Infof("Instagram has no hashtag #%s", hashtag)
		return nil, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"user_id":      s.userID,
			"fields":       "id,caption,media_type,media_url,permalink,timestamp,like_count,comments_count",
			"limit":        fmt.Sprintf("%d", clamp(limit, 1, 50)),
			"access_token": s.accessToken,
		}).
		Get("/" + hashtagID + "/recent_media")
	if err != nil {
		return nil, fmt.Errorf("instagram recent media request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("instagram API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var media instagramMediaResponse
	if err := json.Unmarshal(resp.Body(), &media); err != nil {
		return nil, fmt.Errorf("failed to parse Instagram response: %w", err)
	}

	items := make([]models.ContentItem, 0, len(media.Data))
	for _, m := range media.Data {
		postedAt, err := time.Parse("2006-01-02T15:04:05-0700", m.Timestamp)
		if err != nil {
			logrus.Debugf("Skipping Instagram media %s with bad timestamp %q", m.ID, m.Timestamp)
			continue
		}

		items = append(items, models.ContentItem{
			ID:        "instagram_" + m.ID,
			Platform:  "instagram",
			URL:       m.Permalink,
			MediaRef:  m.MediaURL,
			MediaKind: instagramMediaKind(m.MediaType),
			Text:      m.Caption,
			Author:    m.Username,
			PostedAt:  postedAt,
			Likes:     m.LikeCount,
			Comments:  m.CommentsCount,
			Topics:    ExtractHashtags(m.Caption),
		})

		if len(items) >= limit {
			break
		}
	}

	logrus.Debugf("Instagram returned %d posts for #%s", len(items), hashtag)
	return items, nil
}

// lookupHashtag resolves and caches the Graph API id of a hashtag
func (s *InstagramSource) lookupHashtag(ctx context.Context, hashtag string) (string, error) {
	s.mu.Lock()
	id, ok := s.hashtagIDs[hashtag]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"user_id":      s.userID,
			"q":            hashtag,
			"access_token": s.accessToken,
		}).
		Get("/ig_hashtag_search")
	if err != nil {
		return "", fmt.Errorf("instagram hashtag search failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("instagram hashtag search returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var search instagramHashtagSearchResponse
	if err := json.Unmarshal(resp.Body(), &search); err != nil {
		return "", fmt.Errorf("failed to parse Instagram hashtag search: %w", err)
	}

	if len(search.Data) > 0 {
		id = search.Data[0].ID
	}

	s.mu.Lock()
	s.hashtagIDs[hashtag] = id
	s.mu.Unlock()

	return id, nil
}

func instagramMediaKind(mediaType string) models.MediaKind {
	switch strings.ToUpper(mediaType) {
	case "VIDEO", "REELS":
		return models.MediaVideo
	case "CAROUSEL_ALBUM":
		return models.MediaMixed
	default:
		return models.MediaImage
	}
}
