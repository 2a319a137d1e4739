package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/justchokingaround/reel/internal/history"
	"github.com/justchokingaround/reel/internal/settings"
	"github.com/justchokingaround/reel/internal/ytdlp"
)

// DefaultProgressInterval is the minimum gap between persisted progress
// snapshots of one item
const DefaultProgressInterval = 500 * time.Millisecond

var (
	ErrNotFound   = errors.New("download not found")
	ErrItemActive = errors.New("download is still pending or running")
	ErrClosed     = errors.New("queue is closed")
	ErrEmptyURL   = errors.New("download url is empty")
)

// Config wires a Queue to its collaborators. Every field is optional.
type Config struct {
	Settings         settings.Provider
	History          HistorySink
	States           StateSink
	Logger           *slog.Logger
	ProgressInterval time.Duration
	DownloadDir      string // checked for free space before each start
}

// Queue runs downloads in FIFO order with at most downloads.max_parallel
// of them running at once.
type Queue struct {
	starter Starter
	cfg     Config
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	items     map[string]*entry
	order     []string
	pending   []string
	running   int
	closed    bool
	changed   chan struct{}
	listeners []func(QueueItem)

	seq        uint64
	outbox     []update
	delivered  map[string]uint64
	delivering bool
}

// update is a snapshot waiting to be delivered. seq orders snapshots of
// the same item.
type update struct {
	item    QueueItem
	seq     uint64
	persist bool
}

type entry struct {
	item    QueueItem
	req     Request
	handle  *ytdlp.Handle
	slot    bool
	limiter *rate.Limiter
}

// NewQueue creates a queue that starts downloads through starter
func NewQueue(starter Starter, cfg Config) *Queue {
	if cfg.Settings == nil {
		cfg.Settings = settings.Static{}
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		starter: starter,
		cfg:     cfg,
		logger:  logger.With("component", "queue"),
		ctx:     ctx,
		cancel:  cancel,
		items:     make(map[string]*entry),
		changed:   make(chan struct{}),
		delivered: make(map[string]uint64),
	}
}

// MaxParallel returns the current parallelism limit
func (q *Queue) MaxParallel() int {
	return clampParallel(q.cfg.Settings.GetInt(KeyMaxParallel, DefaultMaxParallel))
}

// OnUpdate registers fn to receive a snapshot after every change of an
// item. Listeners are called one at a time and never see an older
// snapshot of an item after a newer one.
func (q *Queue) OnUpdate(fn func(QueueItem)) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.listeners = append(q.listeners, fn)
	q.mu.Unlock()
}

// Enqueue adds a download as pending and admits as many items as the
// limit allows
func (q *Queue) Enqueue(req Request) (QueueItem, error) {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return QueueItem{}, ErrEmptyURL
	}

	title := req.Title
	if title == "" && req.Metadata != nil {
		title = req.Metadata.Title
	}
	e := &entry{
		req: req,
		item: QueueItem{
			ID:        uuid.New().String(),
			URL:       req.URL,
			Title:     title,
			Options:   req.Options,
			Status:    StatusPending,
			CreatedAt: time.Now(),
		},
		limiter: rate.NewLimiter(rate.Every(q.cfg.ProgressInterval), 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return QueueItem{}, ErrClosed
	}
	q.items[e.item.ID] = e
	q.order = append(q.order, e.item.ID)
	q.pending = append(q.pending, e.item.ID)
	snap, seq := q.snapshot(e)
	q.signal()
	q.mu.Unlock()

	q.logger.Info("download queued", "id", snap.ID, "url", snap.URL)
	q.publish(snap, seq, true)
	q.admit()

	if cur, ok := q.Get(snap.ID); ok {
		return cur, nil
	}
	return snap, nil
}

// Cancel stops a download. A pending item never starts; a running item
// gives up its slot at once. Cancelling a finished item does nothing.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	e, ok := q.items[id]
	if !ok {
		q.mu.Unlock()
		return ErrNotFound
	}
	if e.item.Status.IsComplete() {
		q.mu.Unlock()
		return nil
	}

	var h *ytdlp.Handle
	if e.item.Status == StatusPending {
		q.pending = slices.DeleteFunc(q.pending, func(p string) bool { return p == id })
	} else {
		h = e.handle
	}
	q.finish(e, StatusCancelled)
	snap, seq := q.snapshot(e)
	q.mu.Unlock()

	// nil while Download has not returned yet; admit cancels it afterwards
	h.Cancel()

	q.logger.Info("download cancelled", "id", id)
	q.publish(snap, seq, true)
	q.admit()
	return nil
}

// CancelAll cancels every pending and running item
func (q *Queue) CancelAll() {
	q.mu.Lock()
	// pending first so freed slots cannot admit them
	ids := slices.Clone(q.pending)
	for _, id := range q.order {
		if q.items[id].item.Status.IsActive() {
			ids = append(ids, id)
		}
	}
	q.mu.Unlock()

	for _, id := range ids {
		_ = q.Cancel(id)
	}
}

// Close cancels everything and rejects further enqueues
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.CancelAll()
	q.cancel()
}

// Get returns a snapshot of one item
func (q *Queue) Get(id string) (QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.items[id]
	if !ok {
		return QueueItem{}, false
	}
	return e.item, true
}

// List returns snapshots of every known item in enqueue order
func (q *Queue) List() []QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]QueueItem, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.items[id].item)
	}
	return out
}

// Running returns how many items currently hold a slot
func (q *Queue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Remove forgets a finished item
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.items[id]
	if !ok {
		return ErrNotFound
	}
	if !e.item.Status.IsComplete() {
		return ErrItemActive
	}
	q.forget(id)
	return nil
}

// ClearFinished forgets every finished item and returns how many were removed
func (q *Queue) ClearFinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ids []string
	for _, id := range q.order {
		if q.items[id].item.Status.IsComplete() {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		q.forget(id)
	}
	return len(ids)
}

// Wait blocks until nothing is pending or running, or ctx is done
func (q *Queue) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		idle := q.running == 0 && len(q.pending) == 0
		ch := q.changed
		q.mu.Unlock()

		if idle {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// admit starts pending items until the limit is reached
func (q *Queue) admit() {
	for {
		limit := q.MaxParallel()
		spaceErr := q.checkFreeSpace()

		q.mu.Lock()
		if q.closed || q.running >= limit || len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		id := q.pending[0]
		q.pending = q.pending[1:]
		e := q.items[id]

		if spaceErr != nil {
			e.item.Error = spaceErr.Error()
			q.finish(e, StatusFailed)
			snap, seq := q.snapshot(e)
			q.mu.Unlock()

			q.logger.Warn("download not started", "id", id, "error", spaceErr)
			q.publish(snap, seq, true)
			continue
		}

		now := time.Now()
		e.item.Status = StatusRunning
		e.item.StartedAt = &now
		e.slot = true
		q.running++
		snap, seq := q.snapshot(e)
		opts := e.req.Options
		running := q.running
		q.signal()
		q.mu.Unlock()

		q.logger.Info("download starting", "id", id, "running", running, "limit", limit)
		q.publish(snap, seq, true)

		h := q.starter.Download(q.ctx, snap.URL, opts, func(ev ytdlp.Event) {
			q.handleEvent(id, ev)
		})

		q.mu.Lock()
		e.handle = h
		cancelled := e.item.Status == StatusCancelled
		q.mu.Unlock()
		if cancelled {
			h.Cancel()
		}
	}
}

// handleEvent folds one engine event into the item. Events arriving after
// the item reached a terminal status are dropped.
func (q *Queue) handleEvent(id string, ev ytdlp.Event) {
	q.mu.Lock()
	e, ok := q.items[id]
	if !ok || e.item.Status.IsComplete() {
		q.mu.Unlock()
		return
	}

	persist := false
	switch ev := ev.(type) {
	case ytdlp.Started:
		e.item.Attempt = ev.Attempt
		persist = true
	case ytdlp.Progress:
		e.item.Progress = ev.Percent
		if ev.SpeedBytesPerSec > 0 {
			e.item.Speed = ev.SpeedBytesPerSec
		}
		e.item.ETA = ev.ETA
		persist = e.limiter.Allow()
	case ytdlp.Log:
		path, ok := ytdlp.ParseDestination(ev.Line)
		if !ok {
			q.mu.Unlock()
			return
		}
		e.item.OutputPath = path
	case ytdlp.NetworkProblem:
		e.item.Error = ev.Detail
	case ytdlp.Error:
		e.item.Error = ev.Message
	case ytdlp.Cancelled:
		q.finish(e, StatusCancelled)
	case ytdlp.Completed:
		if ev.Success {
			e.item.Progress = 100
			e.item.Error = ""
			q.finish(e, StatusCompleted)
		} else {
			if e.item.Error == "" {
				e.item.Error = fmt.Sprintf("yt-dlp failed with exit code %d", ev.ExitCode)
			}
			q.finish(e, StatusFailed)
		}
	}
	snap, seq := q.snapshot(e)
	req := e.req
	q.mu.Unlock()

	terminal := snap.Status.IsComplete()
	q.publish(snap, seq, persist || terminal)
	if !terminal {
		return
	}

	switch snap.Status {
	case StatusCompleted:
		q.logger.Info("download completed", "id", id, "path", snap.OutputPath)
		q.recordHistory(snap, req)
	case StatusFailed:
		q.logger.Warn("download failed", "id", id, "error", snap.Error)
	default:
		q.logger.Info("download cancelled", "id", id)
	}
	q.admit()
}

// finish moves e to a terminal status and releases its slot. Caller holds q.mu.
func (q *Queue) finish(e *entry, status DownloadStatus) {
	now := time.Now()
	e.item.Status = status
	e.item.CompletedAt = &now
	if e.slot {
		e.slot = false
		q.running--
	}
	q.signal()
}

// forget drops a finished item. Caller holds q.mu.
func (q *Queue) forget(id string) {
	delete(q.items, id)
	delete(q.delivered, id)
	q.order = slices.DeleteFunc(q.order, func(o string) bool { return o == id })
}

// signal wakes every Wait call. Caller holds q.mu.
func (q *Queue) signal() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// publish hands snap to listeners and, when persist is set, to the state sink
func (q *Queue) publish(snap QueueItem, seq uint64, persist bool) {
	q.mu.Lock()
	q.outbox = append(q.outbox, update{item: snap, seq: seq, persist: persist})
	if q.delivering {
		// the active deliverer picks it up
		q.mu.Unlock()
		return
	}
	q.delivering = true

	for len(q.outbox) > 0 {
		u := q.outbox[0]
		q.outbox = q.outbox[1:]
		if u.seq <= q.delivered[u.item.ID] {
			continue
		}
		q.delivered[u.item.ID] = u.seq
		listeners := slices.Clone(q.listeners)
		q.mu.Unlock()

		for _, fn := range listeners {
			fn(u.item)
		}
		if u.persist && q.cfg.States != nil {
			if err := q.cfg.States.SaveState(context.Background(), u.item.state()); err != nil {
				q.logger.Warn("failed to persist download state", "id", u.item.ID, "error", err)
			}
		}

		q.mu.Lock()
	}
	q.delivering = false
	q.mu.Unlock()
}

// snapshot copies e for publishing. Caller holds q.mu.
func (q *Queue) snapshot(e *entry) (QueueItem, uint64) {
	q.seq++
	return e.item, q.seq
}

func (q *Queue) recordHistory(snap QueueItem, req Request) {
	if q.cfg.History == nil {
		return
	}
	err := q.cfg.History.Add(context.Background(), history.Entry{
		DownloadID:   snap.ID,
		URL:          snap.URL,
		Title:        snap.Title,
		Metadata:     req.Metadata,
		OutputPath:   snap.OutputPath,
		IsAudio:      req.IsAudio,
		PresetHeight: req.PresetHeight,
		DownloadedAt: time.Now(),
	})
	if err != nil {
		q.logger.Warn("failed to record history", "id", snap.ID, "error", err)
	}
}

// checkFreeSpace enforces downloads.min_free_space_mb on DownloadDir.
// Platforms without a free space query are let through.
func (q *Queue) checkFreeSpace() error {
	minMB := q.cfg.Settings.GetInt(KeyMinFreeSpace, 0)
	if minMB <= 0 || q.cfg.DownloadDir == "" {
		return nil
	}

	free, err := freeDiskSpace(q.cfg.DownloadDir)
	if err != nil {
		q.logger.Debug("skipping free space check", "dir", q.cfg.DownloadDir, "error", err)
		return nil
	}

	required := uint64(minMB) * 1024 * 1024
	if free < required {
		return fmt.Errorf("not enough disk space in %s: %s free, %s required",
			q.cfg.DownloadDir, humanize.IBytes(free), humanize.IBytes(required))
	}
	return nil
}
