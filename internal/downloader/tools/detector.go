// Package tools locates the external binaries the engine drives
package tools

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// ToolType represents the type of external tool
type ToolType int

const (
	// ToolYTDLP is the downloader tool
	ToolYTDLP ToolType = iota
	// ToolFFmpeg is the transcoder yt-dlp uses for merging and remuxing
	ToolFFmpeg
)

// String returns the string representation of ToolType
func (t ToolType) String() string {
	switch t {
	case ToolYTDLP:
		return "yt-dlp"
	case ToolFFmpeg:
		return "ffmpeg"
	default:
		return "unknown"
	}
}

// ToolInfo contains information about an external tool
type ToolInfo struct {
	Type      ToolType
	Binary    string // Full path to binary
	Version   string
	Available bool
}

const versionTimeout = 10 * time.Second

var (
	datePattern    = regexp.MustCompile(`(\d{4}\.\d{2}\.\d{2}(?:\.\d+)?)`)
	versionPattern = regexp.MustCompile(`version\s+([^\s,]+)`)
	genericPattern = regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`)
)

// Detect resolves a tool from an explicit path or, when path is empty,
// from PATH. A missing tool is reported through Available, not an error.
func Detect(ctx context.Context, t ToolType, path string) *ToolInfo {
	info := &ToolInfo{Type: t}

	name := path
	if name == "" {
		name = t.String()
	}
	resolved, err := FindTool(name)
	if err != nil {
		return info
	}

	info.Binary = resolved
	info.Available = true
	info.Version, _ = GetVersion(ctx, resolved)
	return info
}

// FindTool searches for a tool by name or path.
// Returns the full path to the binary or an error if not found
func FindTool(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return path, nil
}

// GetVersion runs the tool with --version and parses the first line
func GetVersion(ctx context.Context, toolPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, toolPath, "--version")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get version for %s: %w", toolPath, err)
	}

	versionStr := string(output)
	version := ParseVersion(versionStr)
	if version == "" {
		return "", fmt.Errorf("failed to parse version from output: %s", versionStr)
	}

	return version, nil
}

// ParseVersion extracts a version string from tool output.
// Handles both yt-dlp and ffmpeg version formats
func ParseVersion(output string) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return ""
	}
	firstLine := strings.TrimSpace(strings.SplitN(output, "\n", 2)[0])

	// yt-dlp format: "2024.08.06", "2024.08.06.232127" (nightly) or "yt-dlp 2024.08.06"
	if matches := datePattern.FindStringSubmatch(firstLine); len(matches) > 1 {
		return matches[1]
	}

	// ffmpeg format: "ffmpeg version 6.0" or "ffmpeg version N-112345-g1234567"
	if matches := versionPattern.FindStringSubmatch(firstLine); len(matches) > 1 {
		return matches[1]
	}

	if matches := genericPattern.FindStringSubmatch(firstLine); len(matches) > 1 {
		return matches[1]
	}

	if len(firstLine) < 100 {
		return firstLine
	}

	return ""
}

// NeedsUpdate reports whether latest differs from local.
// Tags may carry a "v" prefix; empty versions never need an update.
func NeedsUpdate(local, latest string) bool {
	local = strings.TrimPrefix(strings.TrimSpace(local), "v")
	latest = strings.TrimPrefix(strings.TrimSpace(latest), "v")
	return local != "" && latest != "" && local != latest
}
