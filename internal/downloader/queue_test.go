package downloader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justchokingaround/reel/internal/history"
	"github.com/justchokingaround/reel/internal/settings"
	"github.com/justchokingaround/reel/internal/ytdlp"
)

// fakeRun is one Download call on fakeStarter. Tests drive it by calling
// emit themselves.
type fakeRun struct {
	url       string
	opts      ytdlp.DownloadOptions
	fn        ytdlp.EventFunc
	handle    *ytdlp.Handle
	cancelled atomic.Bool
}

func (r *fakeRun) emit(evs ...ytdlp.Event) {
	for _, ev := range evs {
		r.fn(ev)
	}
}

type fakeStarter struct {
	mu   sync.Mutex
	runs []*fakeRun
}

func (f *fakeStarter) Download(_ context.Context, url string, opts ytdlp.DownloadOptions, fn ytdlp.EventFunc) *ytdlp.Handle {
	r := &fakeRun{url: url, opts: opts, fn: fn}
	r.handle = ytdlp.NewHandle(func() { r.cancelled.Store(true) })

	f.mu.Lock()
	f.runs = append(f.runs, r)
	f.mu.Unlock()
	return r.handle
}

func (f *fakeStarter) started() []*fakeRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeRun, len(f.runs))
	copy(out, f.runs)
	return out
}

func (f *fakeStarter) urls() []string {
	var out []string
	for _, r := range f.started() {
		out = append(out, r.url)
	}
	return out
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []history.Entry
	err     error
}

func (h *fakeHistory) Add(_ context.Context, e history.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return h.err
}

type fakeStates struct {
	mu     sync.Mutex
	states []history.State
}

func (s *fakeStates) SaveState(_ context.Context, st history.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
	return nil
}

func (s *fakeStates) count(status string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.states {
		if st.Status == status {
			n++
		}
	}
	return n
}

func succeed(r *fakeRun, dest string) {
	r.emit(
		ytdlp.Started{Attempt: 1},
		ytdlp.Progress{Percent: 50, SpeedBytesPerSec: 2048},
		ytdlp.Log{Line: "[download] Destination: " + dest},
		ytdlp.Completed{ExitCode: 0, Success: true},
	)
}

func TestQueue_AdmitsUpToLimitAndBackfills(t *testing.T) {
	starter := &fakeStarter{}
	q := NewQueue(starter, Config{})
	t.Cleanup(q.Close)

	a, err := q.Enqueue(Request{URL: "https://example.com/a"})
	require.NoError(t, err)
	_, err = q.Enqueue(Request{URL: "https://example.com/b"})
	require.NoError(t, err)
	c, err := q.Enqueue(Request{URL: "https://example.com/c"})
	require.NoError(t, err)

	assert.Equal(t, StatusRunning, a.Status)
	assert.Equal(t, StatusPending, c.Status)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, starter.urls())
	assert.Equal(t, 2, q.Running())

	succeed(starter.started()[0], "/tmp/a.mp4")

	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}, starter.urls())
	assert.Equal(t, 2, q.Running())

	got, ok := q.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100.0, got.Progress)
	assert.Equal(t, "/tmp/a.mp4", got.OutputPath)
	assert.NotNil(t, got.CompletedAt)

	got, ok = q.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, StatusRunning, got.Status)
}

func TestQueue_MaxParallelFromSettings(t *testing.T) {
	tests := []struct {
		name     string
		settings settings.Provider
		want     int
	}{
		{"default", settings.Static{}, DefaultMaxParallel},
		{"configured", settings.Static{KeyMaxParallel: 3}, 3},
		{"too low", settings.Static{KeyMaxParallel: 0}, 1},
		{"too high", settings.Static{KeyMaxParallel: 50}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starter := &fakeStarter{}
			q := NewQueue(starter, Config{Settings: tt.settings})
			t.Cleanup(q.Close)

			for i := 0; i < 12; i++ {
				_, err := q.Enqueue(Request{URL: "https://example.com/v"})
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, q.MaxParallel())
			assert.Len(t, starter.started(), tt.want)
		})
	}
}

func TestQueue_LimitChangeAppliesOnNextAdmission(t *testing.T) {
	starter := &fakeStarter{}
	s := settings.Static{KeyMaxParallel: 1}
	q := NewQueue(starter, Config{Settings: s})
	t.Cleanup(q.Close)

	for i := 0; i < 4; i++ {
		_, err := q.Enqueue(Request{URL: "https://example.com/v"})
		require.NoError(t, err)
	}
	require.Len(t, starter.started(), 1)

	s[KeyMaxParallel] = 3
	succeed(starter.started()[0], "/tmp/v.mp4")

	assert.Len(t, starter.started(), 4)
	assert.Equal(t, 3, q.Running())
}

func TestQueue_CancelPendingNeverStarts(t *testing.T) {
	starter := &fakeStarter{}
	q := NewQueue(starter, Config{Settings: settings.Static{KeyMaxParallel: 1}})
	t.Cleanup(q.Close)

	_, err := q.Enqueue(Request{URL: "https://example.com/a"})
	require.NoError(t, err)
	b, err := q.Enqueue(Request{URL: "https://example.com/b"})
	require.NoError(t, err)
	_, err = q.Enqueue(Request{URL: "https://example.com/c"})
	require.NoError(t, err)

	require.NoError(t, q.Cancel(b.ID))
	got, _ := q.Get(b.ID)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Nil(t, got.StartedAt)

	succeed(starter.started()[0], "/tmp/a.mp4")

	assert.Equal(t, []string{"https://example.com/a", "https://example.com/c"}, starter.urls())
}

func TestQueue_CancelRunningFreesSlot(t *testing.T) {
	starter := &fakeStarter{}
	hist := &fakeHistory{}
	q := NewQueue(starter, Config{Settings: settings.Static{KeyMaxParallel: 1}, History: hist})
	t.Cleanup(q.Close)

	a, err := q.Enqueue(Request{URL: "https://example.com/a"})
	require.NoError(t, err)
	_, err = q.Enqueue(Request{URL: "https://example.com/b"})
	require.NoError(t, err)

	first := starter.started()[0]
	first.emit(ytdlp.Started{Attempt: 1}, ytdlp.Progress{Percent: 10})

	require.NoError(t, q.Cancel(a.ID))
	assert.True(t, first.cancelled.Load(), "handle cancelled")
	assert.Len(t, starter.started(), 2, "freed slot is backfilled at once")

	// the engine finishing late must not change the cancelled status
	first.emit(ytdlp.Cancelled{}, ytdlp.Completed{ExitCode: -1, Success: false})
	first.emit(ytdlp.Completed{ExitCode: 0, Success: true})

	got, _ := q.Get(a.ID)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 10.0, got.Progress)
	assert.Equal(t, 1, q.Running())
	assert.Empty(t, hist.entries)

	// cancelling again is a no-op
	require.NoError(t, q.Cancel(a.ID))
	assert.ErrorIs(t, q.Cancel("missing"), ErrNotFound)
}

func TestQueue_StaleSnapshotNotPublishedAfterCancel(t *testing.T) {
	starter := &fakeStarter{}
	states := &fakeStates{}
	q := NewQueue(starter, Config{Settings: settings.Static{KeyMaxParallel: 1}, States: states})
	t.Cleanup(q.Close)

	var mu sync.Mutex
	var seen []DownloadStatus
	q.OnUpdate(func(it QueueItem) {
		mu.Lock()
		seen = append(seen, it.Status)
		mu.Unlock()
	})

	a, err := q.Enqueue(Request{URL: "https://example.com/a"})
	require.NoError(t, err)
	starter.started()[0].emit(ytdlp.Progress{Percent: 30})

	// a running snapshot taken before the cancel but published after it
	q.mu.Lock()
	stale, seq := q.snapshot(q.items[a.ID])
	q.mu.Unlock()
	require.NoError(t, q.Cancel(a.ID))
	q.publish(stale, seq, true)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, StatusCancelled, seen[len(seen)-1])

	states.mu.Lock()
	defer states.mu.Unlock()
	assert.Equal(t, "cancelled", states.states[len(states.states)-1].Status)
}

func TestQueue_ListenerMayCallBackIntoQueue(t *testing.T) {
	starter := &fakeStarter{}
	q := NewQueue(starter, Config{Settings: settings.Static{KeyMaxParallel: 1}})
	t.Cleanup(q.Close)

	var statuses []DownloadStatus
	q.OnUpdate(func(it QueueItem) {
		statuses = append(statuses, it.Status)
		if it.Status == StatusRunning && it.Progress >= 50 {
			_ = q.Cancel(it.ID)
		}
	})

	_, err := q.Enqueue(Request{URL: "https://example.com/a"})
	require.NoError(t, err)
	starter.started()[0].emit(ytdlp.Progress{Percent: 50})

	assert.Equal(t, []DownloadStatus{StatusPending, StatusRunning, StatusRunning, StatusCancelled}, statuses)
}

func TestQueue_FailureRecordsError(t *testing.T) {
	starter := &fakeStarter{}
	hist := &fakeHistory{}
	q := NewQueue(starter, Config{History: hist})
	t.Cleanup(q.Close)

	a, err := q.Enqueue(Request{URL: "https://example.com/a"})
	require.NoError(t, err)

	starter.started()[0].emit(
		ytdlp.Started{Attempt: 1},
		ytdlp.Error{Message: "HTTP 403: access denied"},
		ytdlp.Completed{ExitCode: 1},
	)

	got, _ := q.Get(a.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "HTTP 403: access denied", got.Error)
	assert.Empty(t, hist.entries, "history only records successes")
	assert.Zero(t, q.Running())

	b, err := q.Enqueue(Request{URL: "https://example.com/b"})
	require.NoError(t, err)
	starter.started()[1].emit(ytdlp.Completed{ExitCode: 2})
	got, _ = q.Get(b.ID)
	assert.Equal(t, "yt-dlp failed with exit code 2", got.Error)
}

func TestQueue_SuccessWritesHistory(t *testing.T) {
	starter := &fakeStarter{}
	hist := &fakeHistory{err: errors.New("disk full")}
	states := &fakeStates{}
	q := NewQueue(starter, Config{History: hist, States: states})
	t.Cleanup(q.Close)

	meta := &ytdlp.VideoMetadata{ID: "vid", Title: "From metadata"}
	item, err := q.Enqueue(Request{
		URL:          "https://example.com/watch?v=vid",
		Metadata:     meta,
		IsAudio:      true,
		PresetHeight: 720,
	})
	require.NoError(t, err)
	assert.Equal(t, "From metadata", item.Title)

	succeed(starter.started()[0], "/downloads/From metadata.m4a")

	require.Len(t, hist.entries, 1)
	e := hist.entries[0]
	assert.Equal(t, item.ID, e.DownloadID)
	assert.Equal(t, "https://example.com/watch?v=vid", e.URL)
	assert.Equal(t, "/downloads/From metadata.m4a", e.OutputPath)
	assert.Same(t, meta, e.Metadata)
	assert.True(t, e.IsAudio)
	assert.Equal(t, 720, e.PresetHeight)
	assert.False(t, e.DownloadedAt.IsZero())

	// a failing sink does not change the outcome
	got, _ := q.Get(item.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 1, states.count("completed"))
}

func TestQueue_ProgressPersistenceIsThrottled(t *testing.T) {
	starter := &fakeStarter{}
	states := &fakeStates{}
	var updates atomic.Int32
	q := NewQueue(starter, Config{States: states, ProgressInterval: time.Hour})
	t.Cleanup(q.Close)
	q.OnUpdate(func(QueueItem) { updates.Add(1) })

	_, err := q.Enqueue(Request{URL: "https://example.com/a"})
	require.NoError(t, err)
	run := starter.started()[0]

	before := states.count("running")
	for i := 1; i <= 20; i++ {
		run.emit(ytdlp.Progress{Percent: float64(i)})
	}

	assert.Equal(t, before+1, states.count("running"), "one snapshot per interval")
	assert.GreaterOrEqual(t, updates.Load(), int32(20), "listeners see every change")
}

func TestQueue_RemoveAndClearFinished(t *testing.T) {
	starter := &fakeStarter{}
	q := NewQueue(starter, Config{})
	t.Cleanup(q.Close)

	a, _ := q.Enqueue(Request{URL: "https://example.com/a"})
	b, _ := q.Enqueue(Request{URL: "https://example.com/b"})
	c, _ := q.Enqueue(Request{URL: "https://example.com/c"})

	assert.ErrorIs(t, q.Remove(a.ID), ErrItemActive)
	assert.ErrorIs(t, q.Remove("missing"), ErrNotFound)

	succeed(starter.started()[0], "/tmp/a.mp4")
	require.NoError(t, q.Remove(a.ID))
	_, ok := q.Get(a.ID)
	assert.False(t, ok)

	require.NoError(t, q.Cancel(b.ID))
	assert.Equal(t, 1, q.ClearFinished())

	list := q.List()
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)
}

func TestQueue_WaitReturnsWhenIdle(t *testing.T) {
	starter := &fakeStarter{}
	q := NewQueue(starter, Config{})
	t.Cleanup(q.Close)

	require.NoError(t, q.Wait(context.Background()))

	_, err := q.Enqueue(Request{URL: "https://example.com/a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- q.Wait(context.Background()) }()

	succeed(starter.started()[0], "/tmp/a.mp4")

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the queue drained")
	}
}

func TestQueue_EnqueueValidation(t *testing.T) {
	q := NewQueue(&fakeStarter{}, Config{})

	_, err := q.Enqueue(Request{URL: "   "})
	assert.ErrorIs(t, err, ErrEmptyURL)

	q.Close()
	_, err = q.Enqueue(Request{URL: "https://example.com/a"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_CloseCancelsEverything(t *testing.T) {
	starter := &fakeStarter{}
	q := NewQueue(starter, Config{Settings: settings.Static{KeyMaxParallel: 1}})

	a, _ := q.Enqueue(Request{URL: "https://example.com/a"})
	b, _ := q.Enqueue(Request{URL: "https://example.com/b"})

	q.Close()

	assert.True(t, starter.started()[0].cancelled.Load())
	assert.Len(t, starter.started(), 1, "pending item never starts")
	for _, id := range []string{a.ID, b.ID} {
		got, _ := q.Get(id)
		assert.Equal(t, StatusCancelled, got.Status)
	}
	assert.NoError(t, q.Wait(context.Background()))
}

func TestQueue_CancelBeforeDownloadReturns(t *testing.T) {
	starter := &cancellingStarter{inner: &fakeStarter{}}
	q := NewQueue(starter, Config{})
	starter.queue = q
	t.Cleanup(q.Close)

	item, err := q.Enqueue(Request{URL: "https://example.com/a"})
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, item.Status)
	assert.True(t, starter.inner.started()[0].cancelled.Load(), "handle is cancelled once it exists")
}

// cancellingStarter cancels the item while Download is still in progress
type cancellingStarter struct {
	inner *fakeStarter
	queue *Queue
}

func (c *cancellingStarter) Download(ctx context.Context, url string, opts ytdlp.DownloadOptions, fn ytdlp.EventFunc) *ytdlp.Handle {
	for _, it := range c.queue.List() {
		if it.Status == StatusRunning {
			_ = c.queue.Cancel(it.ID)
		}
	}
	return c.inner.Download(ctx, url, opts, fn)
}
