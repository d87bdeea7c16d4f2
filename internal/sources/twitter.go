package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultTwitterAPI is the API root used when no override is configured
const DefaultTwitterAPI = "https://api.twitter.com"

// TwitterSource implements a Twitter/X hashtag source over the v2 recent search API
type TwitterSource struct {
	bearerToken string
	client      *resty.Client
	limiter     *rate.Limiter
}

// Ensure TwitterSource implements Source
var _ Source = (*TwitterSource)(nil)

type twitterSearchResponse struct {
	Data     []twitterTweet `json:"data"`
	Includes struct {
		Users []twitterUser  `json:"users"`
		Media []twitterMedia `json:"media"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

type twitterTweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	AuthorID      string `json:"author_id"`
	CreatedAt     string `json:"created_at"`
	PublicMetrics struct {
		RetweetCount int `json:"retweet_count"`
		LikeCount    int `json:"like_count"`
		ReplyCount   int `json:"reply_count"`
		QuoteCount   int `json:"quote_count"`
	} `json:"public_metrics"`
	Attachments struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

type twitterUser struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Verified      bool   `json:"verified"`
	PublicMetrics struct {
		FollowersCount int `json:"followers_count"`
	} `json:"public_metrics"`
}

type twitterMedia struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"` // photo, video, animated_gif
	URL             string `json:"url"`
	PreviewImageURL string `json:"preview_image_url"`
	Variants        []struct {
		BitRate     int    `json:"bit_rate"`
		ContentType string `json:"content_type"`
		URL         string `json:"url"`
	} `json:"variants"`
}

// NewTwitterSource creates a new Twitter source. baseURL may be empty.
func NewTwitterSource(bearerToken, baseURL string, requestsPerMinute int) *TwitterSource {
	if baseURL == "" {
		baseURL = DefaultTwitterAPI
	}
	return &TwitterSource{
		bearerToken: bearerToken,
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetTimeout(30*time.Second).
			SetHeader("User-Agent", userAgent),
		limiter: newLimiter(requestsPerMinute),
	}
}

func (t *TwitterSource) GetName() string {
	return "twitter"
}

func (t *TwitterSource) IsEnabled() bool {
	return t.bearerToken != ""
}

// Fetch searches recent original tweets with media under the hashtag
func (t *TwitterSource) Fetch(ctx context.Context, topic string, limit int) ([]models.ContentItem, error) {
	if !t.IsEnabled() {
		logrus.Debug("Twitter source disabled - missing bearer token")
		return nil, nil
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	hashtag := normalizeTopic(topic)
	resp, err := t.client.R().
		SetContext(ctx).
		SetAuthToken(t.bearerToken).
		SetQueryParams(map[string]string{
			"query":        t.buildSearchQuery(hashtag),
			"max_results":  fmt.Sprintf("%d", clamp(limit, 10, 100)),
			"tweet.fields": "created_at,author_id,public_metrics,attachments,referenced_tweets",
			"expansions":   "author_id,attachments.media_keys",
			"user.fields":  "username,verified,public_metrics",
			"media.fields": "type,url,preview_image_url,variants",
		}).
		Get("/2/tweets/search/recent")
	if err != nil {
		return nil, fmt.Errorf("twitter search request failed: %w", err)
	}

	// Rate limited: report nothing rather than stall the poll loop
	if resp.StatusCode() == 429 {
		logrus.Warnf("Twitter API rate limit hit for #%s, reset at %s", hashtag, resp.Header().Get("x-rate-limit-reset"))
		return []models.ContentItem{}, nil
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("twitter API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var searchResp twitterSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse Twitter response: %w", err)
	}

	users := make(map[string]twitterUser, len(searchResp.Includes.Users))
	for _, u := range searchResp.Includes.Users {
		users[u.ID] = u
	}
	media := make(map[string]twitterMedia, len(searchResp.Includes.Media))
	for _, m := range searchResp.Includes.Media {
		media[m.MediaKey] = m
	}

	var items []models.ContentItem
	for _, tweet := range searchResp.Data {
		if t.isRetweet(tweet) {
			continue
		}

		createdAt, err := time.Parse(time.RFC3339, tweet.CreatedAt)
		if err != nil {
			logrus.Errorf("Failed to parse Twitter timestamp: %v", err)
			continue
		}

		kind, ref := tweetMedia(tweet, media)
		author := users[tweet.AuthorID]

		items = append(items, models.ContentItem{
			ID:              "twitter_" + tweet.ID,
			Platform:        "twitter",
			URL:             fmt.Sprintf("https://twitter.com/i/status/%s", tweet.ID),
			MediaRef:        ref,
			MediaKind:       kind,
			Text:            tweet.Text,
			Author:          author.Username,
			AuthorVerified:  author.Verified,
			AuthorFollowers: author.PublicMetrics.FollowersCount,
			PostedAt:        createdAt,
			Likes:           tweet.PublicMetrics.LikeCount,
			Comments:        tweet.PublicMetrics.ReplyCount,
			Shares:          tweet.PublicMetrics.RetweetCount + tweet.PublicMetrics.QuoteCount,
			Topics:          ExtractHashtags(tweet.Text),
		})

		if len(items) >= limit {
			break
		}
	}

	logrus.Debugf("Twitter returned %d tweets for #%s", len(items), hashtag)
	return items, nil
}

func (t *TwitterSource) buildSearchQuery(hashtag string) string {
	return fmt.Sprintf("#%s has:media -is:retweet", hashtag)
}

func (t *TwitterSource) isRetweet(tweet twitterTweet) bool {
	for _, ref := range tweet.ReferencedTweets {
		if ref.Type == "retweeted" {
			return true
		}
	}
	return false
}

// tweetMedia picks the media kind and the best reference for the classifier
func tweetMedia(tweet twitterTweet, media map[string]twitterMedia) (models.MediaKind, string) {
	var kinds []models.MediaKind
	var ref string

	for _, key := range tweet.Attachments.MediaKeys {
		m, ok := media[key]
		if !ok {
			continue
		}
		switch m.Type {
		case "video", "animated_gif":
			kinds = append(kinds, models.MediaVideo)
			if url := bestVariant(m); url != "" && ref == "" {
				ref = url
			}
		default:
			kinds = append(kinds, models.MediaImage)
			if ref == "" {
				ref = m.URL
			}
		}
	}

	switch {
	case len(kinds) == 0:
		return models.MediaImage, ""
	case len(kinds) > 1:
		return models.MediaMixed, ref
	default:
		return kinds[0], ref
	}
}

func bestVariant(m twitterMedia) string {
	best := ""
	bestRate := -1
	for _, v := range m.Variants {
		if v.ContentType == "video/mp4" && v.BitRate > bestRate {
			best = v.URL
			bestRate = v.BitRate
		}
	}
	if best == "" {
		return m.PreviewImageURL
	}
	return best
}
