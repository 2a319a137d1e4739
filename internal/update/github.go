// Package update looks up the latest yt-dlp release on GitHub.
package update

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/justchokingaround/reel/internal/httpx"
	"github.com/justchokingaround/reel/internal/ytdlp"
)

// DefaultCacheTTL keeps the unauthenticated API rate limit out of reach
const DefaultCacheTTL = 10 * time.Minute

type githubRelease struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	HTMLURL     string    `json:"html_url"`
	PublishedAt time.Time `json:"published_at"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
}

// GitHubFetcher implements ytdlp.ReleaseFetcher against the GitHub
// releases API
type GitHubFetcher struct {
	client *httpx.Client
	url    string
	ttl    time.Duration

	mu      sync.Mutex
	cached  *ytdlp.Release
	fetched time.Time
	now     func() time.Time
}

// NewGitHubFetcher creates a fetcher for the "latest release" endpoint at
// url. A ttl of zero uses DefaultCacheTTL; a negative ttl disables caching.
func NewGitHubFetcher(client *httpx.Client, url string, ttl time.Duration) *GitHubFetcher {
	if client == nil {
		client = httpx.NewClient(httpx.DefaultClientConfig())
	}
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	return &GitHubFetcher{client: client, url: url, ttl: ttl, now: time.Now}
}

// LatestRelease implements ytdlp.ReleaseFetcher
func (f *GitHubFetcher) LatestRelease(ctx context.Context) (ytdlp.Release, error) {
	f.mu.Lock()
	if f.cached != nil && f.ttl > 0 && f.now().Sub(f.fetched) < f.ttl {
		rel := *f.cached
		f.mu.Unlock()
		return rel, nil
	}
	f.mu.Unlock()

	var gr githubRelease
	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if err := f.client.GetJSON(ctx, f.url, headers, &gr); err != nil {
		return ytdlp.Release{}, fmt.Errorf("failed to fetch latest release: %w", err)
	}

	tag := strings.TrimSpace(gr.TagName)
	if tag == "" {
		return ytdlp.Release{}, fmt.Errorf("release response from %s has no tag", f.url)
	}
	rel := ytdlp.Release{
		Tag:         tag,
		Name:        gr.Name,
		URL:         gr.HTMLURL,
		PublishedAt: gr.PublishedAt,
	}

	f.mu.Lock()
	f.cached = &rel
	f.fetched = f.now()
	f.mu.Unlock()

	return rel, nil
}
