package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultPreviewLines is how many tail lines an Error message carries
	DefaultPreviewLines = 15
	defaultWaitDelay    = 5 * time.Second
	maxLineSize         = 1024 * 1024
)

// Command is one physical invocation of a binary
type Command struct {
	Path    string
	Args    []string
	Dir     string
	Env     []string      // appended to the inherited environment
	Timeout time.Duration // 0 disables the watchdog
	Attempt int
}

// AttemptResult is the outcome of one physical attempt
type AttemptResult struct {
	ExitCode  int
	Lines     []string // most recent output, oldest first
	Cancelled bool
	TimedOut  bool
	Timeout   time.Duration
	SpawnErr  error
	ReadErr   error
	Duration  time.Duration
}

// Success reports whether the attempt ran to a zero exit code
func (r AttemptResult) Success() bool {
	return r.SpawnErr == nil && !r.Cancelled && !r.TimedOut && r.ExitCode == 0
}

// Supervisor runs single attempts of the downloader tool
type Supervisor struct {
	logger       *slog.Logger
	tailSize     int
	previewLines int
	waitDelay    time.Duration
	afterWait    func() // runs between process exit and watcher shutdown
}

// NewSupervisor creates a supervisor with the default tail and preview sizes
func NewSupervisor(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		logger:       logger.With("component", "supervisor"),
		tailSize:     DefaultTailSize,
		previewLines: DefaultPreviewLines,
		waitDelay:    defaultWaitDelay,
	}
}

// Run executes one attempt and blocks until it has fully finished.
// Started, Progress and Log go to emit; the terminal outcome is returned
// so the caller decides what to report (see TerminalEvents).
func (s *Supervisor) Run(ctx context.Context, c Command, emit EventFunc) AttemptResult {
	started := time.Now()
	logger := s.logger.With("attempt", c.Attempt)

	if ctx.Err() != nil {
		return AttemptResult{ExitCode: -1, Cancelled: true}
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1", "PYTHONIOENCODING=utf-8")
	cmd.Env = append(cmd.Env, c.Env...)
	cmd.WaitDelay = s.waitDelay
	setupProcessAttributes(cmd)

	// one writer for both streams keeps lines interleaved as produced
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	logger.Debug("invoking yt-dlp", "command", ArgsString(c.Path, c.Args), "dir", c.Dir)

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		logger.Error("failed to start yt-dlp", "error", err)
		return AttemptResult{
			ExitCode: -1,
			SpawnErr: fmt.Errorf("%w: %s: %v", ErrSpawn, c.Path, err),
			Duration: time.Since(started),
		}
	}
	emit(Started{Attempt: c.Attempt})

	var cancelled, timedOut atomic.Bool
	stop := make(chan struct{})
	var watchers sync.WaitGroup
	watchers.Add(1)
	go func() {
		defer watchers.Done()

		var expired <-chan time.Time
		if c.Timeout > 0 {
			timer := time.NewTimer(c.Timeout)
			defer timer.Stop()
			expired = timer.C
		}

		select {
		case <-ctx.Done():
			cancelled.Store(true)
			logger.Info("cancelling yt-dlp", "pid", cmd.Process.Pid)
			_ = cmd.Process.Kill()
		case <-expired:
			timedOut.Store(true)
			logger.Warn("yt-dlp timed out, killing", "pid", cmd.Process.Pid, "timeout", c.Timeout)
			_ = cmd.Process.Kill()
		case <-stop:
		}
	}()

	tail := newRingBuffer(s.tailSize)
	readDone := make(chan error, 1)
	go func() {
		readDone <- s.readOutput(pr, tail, emit)
	}()

	waitErr := cmd.Wait()
	if s.afterWait != nil {
		s.afterWait()
	}
	close(stop)
	watchers.Wait()

	// a kill that lands after a clean exit did not interrupt anything
	exitedCleanly := cmd.ProcessState != nil && cmd.ProcessState.Success()
	interrupted := (cancelled.Load() || timedOut.Load()) && !exitedCleanly

	_ = pw.Close()
	readErr := <-readDone

	result := AttemptResult{
		ExitCode:  -1,
		Lines:     tail.snapshot(),
		Cancelled: cancelled.Load() && !exitedCleanly,
		TimedOut:  timedOut.Load() && !exitedCleanly,
		Timeout:   c.Timeout,
		Duration:  time.Since(started),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	if readErr != nil && !interrupted {
		result.ReadErr = readErr
		logger.Warn("failed reading yt-dlp output", "error", readErr)
	}

	logger.Debug("yt-dlp exited",
		"exit_code", result.ExitCode,
		"wait_error", waitErr,
		"cancelled", result.Cancelled,
		"timed_out", result.TimedOut,
		"lines", tail.len(),
		"duration", result.Duration)

	return result
}

// Start runs a single attempt in the background and emits its terminal
// events itself. Useful for one-shot invocations without retry policy.
func (s *Supervisor) Start(ctx context.Context, c Command, fn EventFunc) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := NewHandle(cancel)
	em := newEmitter(fn, h.Finish)

	go func() {
		defer cancel()
		res := s.Run(ctx, c, em.emit)
		for _, ev := range TerminalEvents(res, s.previewLines) {
			em.emit(ev)
		}
	}()

	return h
}

func (s *Supervisor) readOutput(r io.Reader, tail *ringBuffer, emit EventFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(scanLines)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		tail.add(line)

		if percent, ok := ParseProgress(line); ok {
			speed, _ := ParseSpeed(line)
			eta, _ := ParseETA(line)
			emit(Progress{Percent: percent, SpeedBytesPerSec: speed, ETA: eta, RawLine: line})
			continue
		}
		emit(Log{Line: line})
	}

	err := scanner.Err()
	if err != nil {
		// keep the writer side unblocked so the process can exit
		_, _ = io.Copy(io.Discard, r)
	}
	return err
}

// scanLines splits on \n and on bare \r, which yt-dlp uses to redraw progress
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// TerminalEvents derives the closing events of an attempt: an optional
// Cancelled or Error, then exactly one Completed.
func TerminalEvents(r AttemptResult, previewLines int) []Event {
	var events []Event

	switch {
	case r.SpawnErr != nil:
		events = append(events, Error{
			Message: fmt.Sprintf("Could not start yt-dlp: %v", r.SpawnErr),
			Cause:   r.SpawnErr,
		})
	case r.Cancelled:
		events = append(events, Cancelled{})
	case r.TimedOut:
		events = append(events, Error{
			Message: fmt.Sprintf("Download timed out after %s and was stopped", r.Timeout),
			Cause:   ErrTimeout,
		})
	case !r.Success():
		events = append(events, Error{
			Message: FailureMessage(r, previewLines),
			Cause:   fmt.Errorf("%w: exit code %d", categoryError(Classify(r.Lines)), r.ExitCode),
		})
	}

	return append(events, Completed{ExitCode: r.ExitCode, Success: r.Success()})
}

// FailureMessage combines the diagnosis with a preview of the last output
func FailureMessage(r AttemptResult, previewLines int) string {
	msg, ok := Diagnose(r.Lines, r.ExitCode)
	if !ok {
		msg = GenericFailureMessage(r.ExitCode)
	}
	if preview := Preview(r.Lines, previewLines); preview != "" {
		msg += "\n\nLast output:\n" + preview
	}
	return msg
}
