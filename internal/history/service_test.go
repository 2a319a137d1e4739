package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justchokingaround/reel/internal/database"
	"github.com/justchokingaround/reel/internal/ytdlp"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return NewService(db)
}

func TestService_AddAndList(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Add(ctx, Entry{
		DownloadID:   "a",
		URL:          "https://example.com/a",
		Metadata:     &ytdlp.VideoMetadata{ID: "vid-a", Title: "Alpha", Uploader: "Uploader", Duration: 90},
		OutputPath:   "/tmp/Alpha.mp4",
		PresetHeight: 720,
		DownloadedAt: base,
	}))
	require.NoError(t, s.Add(ctx, Entry{
		DownloadID:   "b",
		URL:          "https://example.com/b",
		Title:        "Beta",
		IsAudio:      true,
		DownloadedAt: base.Add(time.Hour),
	}))

	items, err := s.List(ctx, FilterOptions{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Beta", items[0].Title, "recent first by default")
	assert.Equal(t, "Alpha", items[1].Title, "title falls back to metadata")
	assert.Equal(t, "vid-a", items[1].VideoID)
	assert.Equal(t, 90*time.Second, items[1].Duration)
	assert.Equal(t, 720, items[1].PresetHeight)

	audio := true
	items, err = s.List(ctx, FilterOptions{AudioOnly: &audio})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].DownloadID)

	items, err = s.List(ctx, FilterOptions{SearchQuery: "alp", SortBy: SortTitleAsc})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].DownloadID)

	items, err = s.List(ctx, FilterOptions{SortBy: SortOldestFirst, Limit: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].DownloadID)
}

func TestService_AddIsIdempotentPerDownload(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, Entry{DownloadID: "a", URL: "u", Title: "First"}))
	require.NoError(t, s.Add(ctx, Entry{DownloadID: "a", URL: "u", Title: "Second"}))

	items, err := s.List(ctx, FilterOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Second", items[0].Title)

	assert.Error(t, s.Add(ctx, Entry{URL: "u"}), "download id is required")
}

func TestService_GetMetadataDelete(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, Entry{
		DownloadID: "a",
		URL:        "u",
		Metadata:   &ytdlp.VideoMetadata{ID: "xyz", Title: "T", Tags: []string{"music"}},
	}))
	items, err := s.List(ctx, FilterOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)

	item, err := s.Get(ctx, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "T", item.Title)

	meta, err := s.Metadata(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, []string{"music"}, meta.Tags)

	require.NoError(t, s.Delete(ctx, item.ID))
	_, err = s.Get(ctx, item.ID)
	assert.Error(t, err)
}

func TestService_StatsAndClear(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, Entry{DownloadID: "a", URL: "u1", Metadata: &ytdlp.VideoMetadata{Duration: 60}}))
	require.NoError(t, s.Add(ctx, Entry{DownloadID: "b", URL: "u2", IsAudio: true, Metadata: &ytdlp.VideoMetadata{Duration: 30}}))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalItems)
	assert.Equal(t, int64(1), stats.AudioCount)
	assert.Equal(t, int64(1), stats.VideoCount)
	assert.Equal(t, 90*time.Second, stats.TotalDuration)

	n, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestService_SaveState(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.SaveState(ctx, State{ID: "q1", URL: "u", Status: "running", Progress: 10}))
	require.NoError(t, s.SaveState(ctx, State{ID: "q1", URL: "u", Status: "running", Progress: 55.5}))
	require.NoError(t, s.SaveState(ctx, State{ID: "q2", URL: "u2", Status: "pending"}))

	states, err := s.States(ctx, "running")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.InDelta(t, 55.5, states[0].Progress, 0.001)

	now := time.Now()
	require.NoError(t, s.SaveState(ctx, State{ID: "q1", URL: "u", Status: "completed", Progress: 100, FilePath: "/tmp/x.mp4", CompletedAt: &now}))

	states, err = s.States(ctx, "")
	require.NoError(t, err)
	assert.Len(t, states, 2)

	states, err = s.States(ctx, "completed")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "/tmp/x.mp4", states[0].FilePath)
	assert.NotNil(t, states[0].CompletedAt)
}
