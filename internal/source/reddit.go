// Package source fetches candidate items and their top-level comments from a
// Reddit-compatible listing API.
package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ricirt/community-digest/internal/ratelimiter"
)

const (
	DefaultPublicBaseURL = "https://www.reddit.com"
	DefaultOAuthBaseURL  = "https://oauth.reddit.com"
	DefaultTokenURL      = "https://www.reddit.com/api/v1/access_token"
)

// Post is one candidate item as returned by the listing endpoint.
type Post struct {
	ID           string
	FullName     string
	Community    string
	Title        string
	Body         string
	Author       string
	CreatedAt    time.Time
	URL          string
	Score        int
	CommentCount int
}

// Config selects the endpoints and credentials. When ClientID is empty the
// client reads the public JSON listings without authentication.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	UserAgent    string
	Timeout      time.Duration
}

// RedditClient implements the producer's item source.
type RedditClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *ratelimiter.Limiters
}

func NewRedditClient(cfg Config, limiter *ratelimiter.Limiters) *RedditClient {
	base := &http.Client{Timeout: cfg.Timeout}
	httpClient := base
	baseURL := cfg.BaseURL

	if cfg.ClientID != "" {
		tokenURL := cfg.TokenURL
		if tokenURL == "" {
			tokenURL = DefaultTokenURL
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		// the token fetch goes through base so it honours the timeout
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = cc.Client(ctx)
		httpClient.Timeout = cfg.Timeout
		if baseURL == "" {
			baseURL = DefaultOAuthBaseURL
		}
	}
	if baseURL == "" {
		baseURL = DefaultPublicBaseURL
	}

	return &RedditClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: httpClient,
		limiter:    limiter,
	}
}

type listing struct {
	Data struct {
		Children []struct {
			Kind string          `json:"kind"`
			Data json.RawMessage `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type postData struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Subreddit   string  `json:"subreddit"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	CreatedUTC  float64 `json:"created_utc"`
	URL         string  `json:"url"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
}

type commentData struct {
	Body string `json:"body"`
}

// HotPosts returns up to limit items from the community's hot listing, in
// listing order.
func (c *RedditClient) HotPosts(ctx context.Context, community string, limit int) ([]Post, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("raw_json", "1")

	var l listing
	if err := c.get(ctx, "/r/"+url.PathEscape(community)+"/hot.json", q, &l); err != nil {
		return nil, fmt.Errorf("fetch hot listing for %s: %w", community, err)
	}

	posts := make([]Post, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		var d postData
		if err := json.Unmarshal(child.Data, &d); err != nil {
			return nil, fmt.Errorf("decode post in %s: %w", community, err)
		}
		if d.Subreddit == "" {
			d.Subreddit = community
		}
		posts = append(posts, Post{
			ID:           d.ID,
			FullName:     d.Name,
			Community:    d.Subreddit,
			Title:        d.Title,
			Body:         d.Selftext,
			Author:       d.Author,
			CreatedAt:    time.Unix(int64(d.CreatedUTC), 0).UTC(),
			URL:          d.URL,
			Score:        d.Score,
			CommentCount: d.NumComments,
		})
		if len(posts) == limit {
			break
		}
	}
	return posts, nil
}

// TopComments returns the bodies of up to limit top-level comments of p.
// Collapsed "more" stubs are skipped.
func (c *RedditClient) TopComments(ctx context.Context, p Post, limit int) ([]string, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("depth", "1")
	q.Set("raw_json", "1")

	path := "/r/" + url.PathEscape(p.Community) + "/comments/" + url.PathEscape(p.ID) + ".json"
	var pages []listing
	if err := c.get(ctx, path, q, &pages); err != nil {
		return nil, fmt.Errorf("fetch comments for %s: %w", p.ID, err)
	}
	if len(pages) < 2 {
		return nil, fmt.Errorf("fetch comments for %s: expected 2 listings, got %d", p.ID, len(pages))
	}

	var out []string
	for _, child := range pages[1].Data.Children {
		if child.Kind != "t1" {
			continue
		}
		var d commentData
		if err := json.Unmarshal(child.Data, &d); err != nil {
			return nil, fmt.Errorf("decode comment on %s: %w", p.ID, err)
		}
		out = append(out, d.Body)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (c *RedditClient) get(ctx context.Context, path string, q url.Values, dst any) error {
	if err := c.limiter.Wait(ctx, ratelimiter.UpstreamSource); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
