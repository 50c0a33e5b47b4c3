// Package social fetches an owner's platform activity and reduces it to
// the signal summary the trait engine consumes. Signals are best-effort:
// any failure here degrades to "no data" and evolution falls back to
// bounded drift.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andrejs2008/evomint/internal/logging"
	"github.com/andrejs2008/evomint/internal/server/models"
	"github.com/andrejs2008/evomint/internal/traits"
)

// Source yields the owner's signal summary over a window. A nil summary
// with a nil error means no usable signals.
type Source interface {
	FetchSummary(ctx context.Context, owner string, since time.Time) (*traits.SignalSummary, error)
}

// TokenProvider hands out a decrypted credential for an owner+platform
// pair. Satisfied by the credentials service.
type TokenProvider interface {
	Get(ctx context.Context, owner, platform string) (*models.Credential, *models.TokenPair, error)
}

const (
	defaultPlatform    = "x"
	defaultMaxPosts    = 100
	defaultFeedTimeout = 15 * time.Second
)

// Config holds the feed endpoint settings.
type Config struct {
	BaseURL  string
	Platform string
	MaxPosts int
	Timeout  time.Duration
}

// FeedSource reads the owner's recent posts from an X-compatible API and
// aggregates them. Tokens are decrypted per call and not retained.
type FeedSource struct {
	creds    TokenProvider
	baseURL  string
	platform string
	maxPosts int
	client   *http.Client
	logger   logging.Logger
}

func NewFeedSource(creds TokenProvider, cfg Config, logger logging.Logger) *FeedSource {
	platform := cfg.Platform
	if platform == "" {
		platform = defaultPlatform
	}
	maxPosts := cfg.MaxPosts
	if maxPosts <= 0 || maxPosts > defaultMaxPosts {
		maxPosts = defaultMaxPosts
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFeedTimeout
	}
	return &FeedSource{
		creds:    creds,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		platform: platform,
		maxPosts: maxPosts,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type feedPost struct {
	Text          string `json:"text"`
	PublicMetrics struct {
		RetweetCount    int `json:"retweet_count"`
		ReplyCount      int `json:"reply_count"`
		LikeCount       int `json:"like_count"`
		QuoteCount      int `json:"quote_count"`
		ImpressionCount int `json:"impression_count"`
	} `json:"public_metrics"`
}

type feedReply struct {
	Data []feedPost `json:"data"`
}

// FetchSummary pulls posts created after since and aggregates them. Every
// failure path returns (nil, nil): a missing credential, an unreachable
// feed or a malformed reply must never block evolution.
func (s *FeedSource) FetchSummary(ctx context.Context, owner string, since time.Time) (*traits.SignalSummary, error) {
	cred, tokens, err := s.creds.Get(ctx, owner, s.platform)
	if err != nil {
		s.logger.Debug(ctx, "no usable credential, skipping signals", "owner", owner, "platform", s.platform, "error", err)
		return nil, nil
	}
	if cred.ExternalUserID == "" {
		s.logger.Debug(ctx, "credential has no external user id", "owner", owner)
		return nil, nil
	}

	posts, ok := s.fetchPosts(ctx, cred.ExternalUserID, tokens.AccessToken, since)
	if !ok || len(posts) == 0 {
		return nil, nil
	}

	summary := aggregate(posts, since, time.Now().UTC())
	s.logger.Debug(ctx, "signals aggregated",
		"owner", owner, "posts", len(posts), "engagement", summary.Engagement)
	return summary, nil
}

func (s *FeedSource) fetchPosts(ctx context.Context, userID, accessToken string, since time.Time) ([]feedPost, bool) {
	q := url.Values{}
	q.Set("max_results", fmt.Sprintf("%d", s.maxPosts))
	q.Set("tweet.fields", "created_at,public_metrics,text")
	if !since.IsZero() {
		q.Set("start_time", since.UTC().Format(time.RFC3339))
	}
	endpoint := fmt.Sprintf("%s/2/users/%s/tweets?%s", s.baseURL, url.PathEscape(userID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		s.logger.Warn(ctx, "failed to build feed request", "error", err)
		return nil, false
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn(ctx, "feed fetch failed", "error", err)
		return nil, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.logger.Warn(ctx, "failed to read feed reply", "error", err)
		return nil, false
	}
	if resp.StatusCode != http.StatusOK {
		s.logger.Warn(ctx, "feed replied with error", "status", resp.StatusCode)
		return nil, false
	}

	var reply feedReply
	if err := json.Unmarshal(body, &reply); err != nil {
		s.logger.Warn(ctx, "failed to decode feed reply", "error", err)
		return nil, false
	}
	return reply.Data, true
}

// trackedKeywords count toward the keyword-match signal.
var trackedKeywords = []string{
	"nft", "art", "digital", "collectible", "crypto",
	"evolution", "ai", "future", "metaverse",
}

// aggregate folds posts into the summary: summed engagement across all
// public metrics, mean lexicon sentiment, keyword hits and posts per day
// over the window.
func aggregate(posts []feedPost, since, now time.Time) *traits.SignalSummary {
	var engagement float64
	var sentimentSum float64
	var keywordHits float64

	for _, p := range posts {
		m := p.PublicMetrics
		engagement += float64(m.LikeCount + m.RetweetCount + m.ReplyCount + m.QuoteCount + m.ImpressionCount)

		sentimentSum += scoreSentiment(p.Text)

		lower := strings.ToLower(p.Text)
		for _, kw := range trackedKeywords {
			if strings.Contains(lower, kw) {
				keywordHits++
			}
		}
	}

	days := now.Sub(since).Hours() / 24
	if days < 1 {
		days = 1
	}

	return &traits.SignalSummary{
		MeanSentiment:  sentimentSum / float64(len(posts)),
		SentimentCount: len(posts),
		Engagement:     engagement,
		Frequency:      float64(len(posts)) / days,
		KeywordMatches: keywordHits,
	}
}
