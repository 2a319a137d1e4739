package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// AttemptRunner executes one physical attempt. attempt starts at 1.
type AttemptRunner func(ctx context.Context, attempt int, emit EventFunc) AttemptResult

// RetryCoordinator applies the recovery policy to one logical request:
// extractor-outdated failures trigger a shared self-update and exactly one
// retry; authentication failures and everything else are terminal.
type RetryCoordinator struct {
	preflight    Preflight
	updater      *SelfUpdater
	previewLines int
	logger       *slog.Logger
}

// NewRetryCoordinator creates a coordinator. A nil preflight skips checks;
// a nil updater retries without updating.
func NewRetryCoordinator(preflight Preflight, updater *SelfUpdater, logger *slog.Logger) *RetryCoordinator {
	if preflight == nil {
		preflight = noPreflight{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryCoordinator{
		preflight:    preflight,
		updater:      updater,
		previewLines: DefaultPreviewLines,
		logger:       logger.With("component", "retry"),
	}
}

// Execute runs the request to completion. emit receives exactly one
// Completed event as the last call.
func (rc *RetryCoordinator) Execute(ctx context.Context, rawURL string, run AttemptRunner, emit EventFunc) {
	logger := rc.logger.With("url", rawURL)

	if err := rc.preflight.CheckTool(ctx); err != nil {
		rc.failPreflight(emit, "yt-dlp is not available", err)
		return
	}
	if err := rc.preflight.CheckNetwork(ctx, rawURL); err != nil {
		rc.failPreflight(emit, "The target could not be reached", err)
		return
	}

	first := run(ctx, 1, emit)
	if first.Success() || first.Cancelled || first.TimedOut || first.SpawnErr != nil {
		rc.finish(first, emit)
		return
	}

	category := Classify(first.Lines)
	logger.Info("attempt failed", "attempt", 1, "exit_code", first.ExitCode, "category", category)

	switch category {
	case CategoryAuthRequired:
		emit(Error{
			Message: authMessage(first, rc.previewLines),
			Cause:   fmt.Errorf("%w: exit code %d", ErrAuthRequired, first.ExitCode),
		})
		emit(Completed{ExitCode: first.ExitCode, Success: false})

	case CategoryExtractorOutdated:
		emit(Log{Line: "yt-dlp extractor looks outdated, updating before retrying"})

		if rc.updater != nil {
			outcome, err := rc.updater.Request(ctx)
			switch {
			case errors.Is(err, context.Canceled) || ctx.Err() != nil:
				emit(Cancelled{})
				emit(Completed{ExitCode: first.ExitCode, Success: false})
				return
			case err != nil:
				// the binary may already be current from an earlier cycle, so retry anyway
				emit(Log{Line: fmt.Sprintf("yt-dlp self-update failed: %v", err)})
			case outcome.Skipped:
				emit(Log{Line: "yt-dlp was updated recently, retrying"})
			default:
				emit(Log{Line: "yt-dlp updated, retrying"})
			}
			logger.Info("self-update settled", "shared", outcome.Shared, "skipped", outcome.Skipped, "error", err)
		}

		second := run(ctx, 2, emit)
		if !second.Success() {
			logger.Info("retry failed", "attempt", 2, "exit_code", second.ExitCode)
		}
		rc.finish(second, emit)

	default:
		rc.finish(first, emit)
	}
}

func (rc *RetryCoordinator) finish(r AttemptResult, emit EventFunc) {
	for _, ev := range TerminalEvents(r, rc.previewLines) {
		emit(ev)
	}
}

func (rc *RetryCoordinator) failPreflight(emit EventFunc, summary string, err error) {
	rc.logger.Warn("preflight failed", "error", err)
	emit(NetworkProblem{Detail: err.Error()})
	emit(Error{Message: fmt.Sprintf("%s: %v", summary, err), Cause: err})
	emit(Completed{ExitCode: -1, Success: false})
}

func authMessage(r AttemptResult, previewLines int) string {
	msg := "Authentication required: the site asks you to sign in or confirm you are not a bot. " +
		"Pass cookies with the cookies-from-browser option and try again."
	if preview := Preview(r.Lines, previewLines); preview != "" {
		msg += "\n\nLast output:\n" + preview
	}
	return msg
}
