package ytdlp

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultUpdateCooldown is how long a settled update satisfies later requests
const DefaultUpdateCooldown = 5 * time.Minute

const selfUpdateKey = "self-update"

// UpdateFunc performs one self-update of the downloader tool
type UpdateFunc func(ctx context.Context) error

// UpdateState is the lifecycle state of a SelfUpdater
type UpdateState int

const (
	UpdateNotRunning UpdateState = iota
	UpdateInFlight
	UpdateCooldown
)

// String returns the string representation of UpdateState
func (s UpdateState) String() string {
	switch s {
	case UpdateInFlight:
		return "in_flight"
	case UpdateCooldown:
		return "cooldown"
	default:
		return "not_running"
	}
}

// UpdateOutcome tells a requester how its request was served
type UpdateOutcome struct {
	Shared  bool // joined an execution started by another caller
	Skipped bool // served from the cooldown window without executing
}

// SelfUpdater runs at most one update at a time no matter how many
// downloads ask for it. Concurrent requesters share the in-flight result.
type SelfUpdater struct {
	run      UpdateFunc
	cooldown time.Duration
	now      func() time.Time
	logger   *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	inFlight bool
	until    time.Time
	lastErr  error

	executions atomic.Int64
}

// NewSelfUpdater wraps run with single-flight deduplication.
// cooldown <= 0 disables the cooldown window.
func NewSelfUpdater(run UpdateFunc, cooldown time.Duration, logger *slog.Logger) *SelfUpdater {
	if logger == nil {
		logger = slog.Default()
	}
	return &SelfUpdater{
		run:      run,
		cooldown: cooldown,
		now:      time.Now,
		logger:   logger.With("component", "self_update"),
	}
}

// Request asks for an update and waits for the shared result.
// The shared execution is detached from ctx so one requester giving up
// does not abort it for the others.
func (u *SelfUpdater) Request(ctx context.Context) (UpdateOutcome, error) {
	detached := context.WithoutCancel(ctx)

	ch := u.group.DoChan(selfUpdateKey, func() (any, error) {
		u.mu.Lock()
		if u.now().Before(u.until) {
			err := u.lastErr
			u.mu.Unlock()
			return true, err
		}
		u.inFlight = true
		u.mu.Unlock()

		n := u.executions.Add(1)
		u.logger.Info("running yt-dlp self-update", "execution", n)
		err := u.run(detached)

		u.mu.Lock()
		u.inFlight = false
		u.lastErr = err
		if u.cooldown > 0 {
			u.until = u.now().Add(u.cooldown)
		}
		u.mu.Unlock()

		if err != nil {
			u.logger.Warn("yt-dlp self-update failed", "error", err)
		} else {
			u.logger.Info("yt-dlp self-update finished")
		}
		return false, err
	})

	select {
	case res := <-ch:
		skipped, _ := res.Val.(bool)
		return UpdateOutcome{Shared: res.Shared, Skipped: skipped}, res.Err
	case <-ctx.Done():
		return UpdateOutcome{}, ctx.Err()
	}
}

// State reports the current lifecycle state
func (u *SelfUpdater) State() UpdateState {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch {
	case u.inFlight:
		return UpdateInFlight
	case u.now().Before(u.until):
		return UpdateCooldown
	default:
		return UpdateNotRunning
	}
}

// Executions returns how many times the update function actually ran
func (u *SelfUpdater) Executions() int64 {
	return u.executions.Load()
}
