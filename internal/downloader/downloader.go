// Package downloader schedules downloads on the engine with bounded
// parallelism.
package downloader

import (
	"context"
	"time"

	"github.com/justchokingaround/reel/internal/history"
	"github.com/justchokingaround/reel/internal/ytdlp"
)

// Settings keys read by the queue
const (
	KeyMaxParallel  = "downloads.max_parallel"
	KeyMinFreeSpace = "downloads.min_free_space_mb" // 0 disables the check
)

// Parallelism bounds
const (
	DefaultMaxParallel = 2
	MinParallel        = 1
	MaxParallel        = 10
)

// Starter starts one download and reports its events to fn.
// *ytdlp.Engine implements it.
type Starter interface {
	Download(ctx context.Context, url string, opts ytdlp.DownloadOptions, fn ytdlp.EventFunc) *ytdlp.Handle
}

// HistorySink receives successfully completed downloads
type HistorySink interface {
	Add(ctx context.Context, e history.Entry) error
}

// StateSink persists queue item snapshots
type StateSink interface {
	SaveState(ctx context.Context, s history.State) error
}

// Request describes a download to enqueue
type Request struct {
	URL          string
	Title        string
	Options      ytdlp.DownloadOptions
	Metadata     *ytdlp.VideoMetadata // optional, forwarded to history
	IsAudio      bool
	PresetHeight int
}

// QueueItem is a snapshot of one queued download
type QueueItem struct {
	ID          string                `json:"id"`
	URL         string                `json:"url"`
	Title       string                `json:"title,omitempty"`
	Options     ytdlp.DownloadOptions `json:"options"`
	Status      DownloadStatus        `json:"status"`
	Attempt     int                   `json:"attempt,omitempty"`
	Progress    float64               `json:"progress"` // 0.0 - 100.0
	Speed       int64                 `json:"speed"`    // bytes per second
	ETA         time.Duration         `json:"eta"`
	Error       string                `json:"error,omitempty"`
	OutputPath  string                `json:"output_path,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

// DownloadStatus represents the status of a queue item
type DownloadStatus string

const (
	StatusPending   DownloadStatus = "pending"
	StatusRunning   DownloadStatus = "running"
	StatusCompleted DownloadStatus = "completed"
	StatusFailed    DownloadStatus = "failed"
	StatusCancelled DownloadStatus = "cancelled"
)

// String returns the string representation of DownloadStatus
func (s DownloadStatus) String() string {
	return string(s)
}

// IsActive returns true if the download holds a concurrency slot
func (s DownloadStatus) IsActive() bool {
	return s == StatusRunning
}

// IsComplete returns true if the download is in a terminal state
func (s DownloadStatus) IsComplete() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// clampParallel keeps n within [MinParallel, MaxParallel]
func clampParallel(n int) int {
	switch {
	case n < MinParallel:
		return MinParallel
	case n > MaxParallel:
		return MaxParallel
	default:
		return n
	}
}

func (it QueueItem) state() history.State {
	return history.State{
		ID:          it.ID,
		URL:         it.URL,
		Title:       it.Title,
		Status:      it.Status.String(),
		Progress:    it.Progress,
		Speed:       it.Speed,
		Error:       it.Error,
		FilePath:    it.OutputPath,
		CreatedAt:   it.CreatedAt,
		StartedAt:   it.StartedAt,
		CompletedAt: it.CompletedAt,
	}
}
