package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/justchokingaround/reel/internal/downloader/tools"
)

const (
	// DefaultUpdateTimeout bounds one `yt-dlp -U` run
	DefaultUpdateTimeout = 2 * time.Minute
	metadataTimeout      = 2 * time.Minute
)

// ErrNoReleaseSource means HasUpdate was called without a ReleaseFetcher
var ErrNoReleaseSource = errors.New("no release source configured")

// Release is the newest published version of the tool
type Release struct {
	Tag         string
	Name        string
	URL         string
	PublishedAt time.Time
}

// ReleaseFetcher looks up the latest published release
type ReleaseFetcher interface {
	LatestRelease(ctx context.Context) (Release, error)
}

// UpdateStatus compares the installed tool with the latest release
type UpdateStatus struct {
	Current   string
	Latest    string
	Available bool
}

// Runner executes short, non-streaming invocations and returns stdout
type Runner interface {
	Run(ctx context.Context, path string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	Dir string
}

// Run executes path with args. On failure the error carries the last
// lines of stderr.
func (r ExecRunner) Run(ctx context.Context, path string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8")
	setupProcessAttributes(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		lines := strings.Split(strings.TrimSpace(stderr.String()), "\n")
		if detail := Preview(lines, 5); detail != "" {
			return stdout.Bytes(), fmt.Errorf("%s failed: %w: %s", path, err, detail)
		}
		return stdout.Bytes(), fmt.Errorf("%s failed: %w", path, err)
	}
	return stdout.Bytes(), nil
}

// Config configures an Engine
type Config struct {
	ToolPath       string // defaults to "yt-dlp"
	TranscoderPath string
	WorkDir        string

	PreflightTimeout time.Duration
	UpdateTimeout    time.Duration
	UpdateCooldown   time.Duration // 0 = DefaultUpdateCooldown, negative disables

	Releases  ReleaseFetcher
	Preflight Preflight // nil = NetPreflight
	Runner    Runner    // nil = ExecRunner
	Logger    *slog.Logger
}

// Engine is the download facade. It owns exactly one SelfUpdater, which is
// shared by every handle it creates.
type Engine struct {
	toolPath       string
	transcoderPath string
	workDir        string
	updateTimeout  time.Duration

	releases   ReleaseFetcher
	runner     Runner
	supervisor *Supervisor
	updater    *SelfUpdater
	retry      *RetryCoordinator
	logger     *slog.Logger
}

// NewEngine creates an engine from cfg
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	toolPath := cfg.ToolPath
	if toolPath == "" {
		toolPath = tools.ToolYTDLP.String()
	}

	e := &Engine{
		toolPath:       toolPath,
		transcoderPath: cfg.TranscoderPath,
		workDir:        cfg.WorkDir,
		updateTimeout:  cfg.UpdateTimeout,
		releases:       cfg.Releases,
		runner:         cfg.Runner,
		supervisor:     NewSupervisor(logger),
		logger:         logger.With("component", "engine"),
	}
	if e.updateTimeout <= 0 {
		e.updateTimeout = DefaultUpdateTimeout
	}
	if e.runner == nil {
		e.runner = ExecRunner{Dir: cfg.WorkDir}
	}

	cooldown := cfg.UpdateCooldown
	switch {
	case cooldown == 0:
		cooldown = DefaultUpdateCooldown
	case cooldown < 0:
		cooldown = 0
	}
	e.updater = NewSelfUpdater(e.runSelfUpdate, cooldown, logger)

	preflight := cfg.Preflight
	if preflight == nil {
		preflight = &NetPreflight{ToolPath: toolPath, Timeout: cfg.PreflightTimeout}
	}
	e.retry = NewRetryCoordinator(preflight, e.updater, logger)

	return e
}

// ToolPath returns the configured downloader binary
func (e *Engine) ToolPath() string {
	return e.toolPath
}

// Updater exposes the shared self-updater
func (e *Engine) Updater() *SelfUpdater {
	return e.updater
}

// Download starts a download in the background. fn receives the event
// stream, ending with exactly one Completed. The returned handle is valid
// even if the process could not be started.
func (e *Engine) Download(ctx context.Context, url string, opts DownloadOptions, fn EventFunc) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := NewHandle(cancel)
	em := newEmitter(fn, h.Finish)

	args := BuildArgs(BuildInput{
		ToolPath:       e.toolPath,
		TranscoderPath: e.transcoderPath,
		URL:            url,
		Options:        opts,
		WorkDir:        e.workDir,
	})
	timeout := opts.EffectiveTimeout()

	run := func(ctx context.Context, attempt int, emit EventFunc) AttemptResult {
		return e.supervisor.Run(ctx, Command{
			Path:    e.toolPath,
			Args:    args,
			Dir:     e.workDir,
			Timeout: timeout,
			Attempt: attempt,
		}, emit)
	}

	e.logger.Info("starting download", "url", url, "timeout", timeout)

	go func() {
		defer cancel()
		e.retry.Execute(ctx, url, run, em.emit)
		// no-op unless the stream was left open
		em.emit(Completed{ExitCode: -1, Success: false})
	}()

	return h
}

// FetchMetadata dumps the info JSON of a single item
func (e *Engine) FetchMetadata(ctx context.Context, url string, opts DownloadOptions) (*VideoMetadata, error) {
	args := append(networkArgs(opts), "-J", "--no-warnings", "--no-playlist", url)

	out, err := e.query(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata: %w", err)
	}
	return ParseMetadata(out)
}

// FetchPlaylist lists the entries of a playlist without resolving each one
func (e *Engine) FetchPlaylist(ctx context.Context, url string, opts DownloadOptions) ([]VideoMetadata, error) {
	args := append(networkArgs(opts), "--flat-playlist", "-j", "--no-warnings", url)

	out, err := e.query(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	return ParseMetadataLines(bytes.NewReader(out))
}

// ResolveDirectURL fetches metadata and picks the best progressive format
// at or below maxHeight. The metadata is returned even when no format
// qualifies, together with ErrNoProgressive.
func (e *Engine) ResolveDirectURL(ctx context.Context, url string, maxHeight int, preferredExts []string, opts DownloadOptions) (*VideoMetadata, error) {
	meta, err := e.FetchMetadata(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	if err := meta.Resolve(maxHeight, preferredExts); err != nil {
		return meta, fmt.Errorf("failed to resolve %s: %w", url, err)
	}
	e.logger.Debug("resolved direct url", "url", url, "format", meta.DirectURLFormat)
	return meta, nil
}

// ResolveExactDirectURL asks the tool to print the URL chosen by selector.
// It fails with ErrSelectorNoMatch when nothing is printed and with
// ErrSelectorSplitStreams when more than one URL is printed.
func (e *Engine) ResolveExactDirectURL(ctx context.Context, url, selector string, opts DownloadOptions) (string, error) {
	args := append(networkArgs(opts), "-g", "-f", selector, "--no-warnings", "--no-playlist", url)

	out, err := e.query(ctx, args)
	if err != nil {
		if isNoFormatMatch(err.Error()) {
			return "", fmt.Errorf("%w: %q: %w", ErrSelectorNoMatch, selector, err)
		}
		return "", fmt.Errorf("failed to resolve selector %q: %w", selector, err)
	}

	var urls []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			urls = append(urls, line)
		}
	}

	switch len(urls) {
	case 0:
		return "", fmt.Errorf("%w: %q", ErrSelectorNoMatch, selector)
	case 1:
		return urls[0], nil
	default:
		return "", fmt.Errorf("%w: %q printed %d urls", ErrSelectorSplitStreams, selector, len(urls))
	}
}

var noFormatNeedles = []string{
	"requested format is not available",
	"no video formats found",
}

// isNoFormatMatch reports whether tool output says the selector matched nothing
func isNoFormatMatch(output string) bool {
	lower := strings.ToLower(output)
	for _, n := range noFormatNeedles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// Version returns the installed tool version
func (e *Engine) Version(ctx context.Context) (string, error) {
	out, err := e.runner.Run(ctx, e.toolPath, "--version")
	if err != nil {
		return "", fmt.Errorf("failed to get yt-dlp version: %w", err)
	}
	v := tools.ParseVersion(string(out))
	if v == "" {
		return "", fmt.Errorf("failed to parse yt-dlp version from %q", strings.TrimSpace(string(out)))
	}
	return v, nil
}

// HasUpdate compares the installed version with the latest release
func (e *Engine) HasUpdate(ctx context.Context) (UpdateStatus, error) {
	if e.releases == nil {
		return UpdateStatus{}, ErrNoReleaseSource
	}

	current, err := e.Version(ctx)
	if err != nil {
		return UpdateStatus{}, err
	}
	release, err := e.releases.LatestRelease(ctx)
	if err != nil {
		return UpdateStatus{Current: current}, fmt.Errorf("failed to fetch latest release: %w", err)
	}

	status := UpdateStatus{
		Current:   current,
		Latest:    strings.TrimPrefix(release.Tag, "v"),
		Available: tools.NeedsUpdate(current, release.Tag),
	}
	e.logger.Debug("checked for update", "current", status.Current, "latest", status.Latest, "available", status.Available)
	return status, nil
}

// SelfUpdate runs `yt-dlp -U` through the shared single-flight updater
func (e *Engine) SelfUpdate(ctx context.Context) (UpdateOutcome, error) {
	return e.updater.Request(ctx)
}

func (e *Engine) runSelfUpdate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.updateTimeout)
	defer cancel()

	out, err := e.runner.Run(ctx, e.toolPath, "-U")
	if err != nil {
		return fmt.Errorf("failed to update yt-dlp: %w", err)
	}
	e.logger.Info("yt-dlp self-update output", "output", strings.TrimSpace(string(out)))
	return nil
}

func (e *Engine) query(ctx context.Context, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	e.logger.Debug("querying yt-dlp", "command", ArgsString(e.toolPath, args))
	return e.runner.Run(ctx, e.toolPath, args...)
}
