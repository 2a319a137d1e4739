package update

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justchokingaround/reel/internal/httpx"
)

const latestJSON = `{
  "tag_name": "2024.10.22",
  "name": "yt-dlp 2024.10.22",
  "html_url": "https://github.com/yt-dlp/yt-dlp/releases/tag/2024.10.22",
  "published_at": "2024-10-22T21:56:19Z",
  "draft": false,
  "prerelease": false
}`

func testClient() *httpx.Client {
	return httpx.NewClient(httpx.ClientConfig{MaxRetries: -1, Timeout: 2 * time.Second})
}

func TestGitHubFetcher_LatestRelease(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(latestJSON))
	}))
	defer server.Close()

	f := NewGitHubFetcher(testClient(), server.URL, 0)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	rel, err := f.LatestRelease(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024.10.22", rel.Tag)
	assert.Equal(t, "yt-dlp 2024.10.22", rel.Name)
	assert.Equal(t, "https://github.com/yt-dlp/yt-dlp/releases/tag/2024.10.22", rel.URL)
	assert.Equal(t, 2024, rel.PublishedAt.Year())

	_, err = f.LatestRelease(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second call served from cache")

	now = now.Add(DefaultCacheTTL + time.Second)
	_, err = f.LatestRelease(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "cache expired")
}

func TestGitHubFetcher_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"rate limited", http.StatusForbidden, `{"message":"API rate limit exceeded"}`, "HTTP error 403"},
		{"missing tag", http.StatusOK, `{"name":"nothing"}`, "has no tag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			f := NewGitHubFetcher(testClient(), server.URL, -1)
			_, err := f.LatestRelease(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
