// Package clipboard reads download URLs from, and writes resolved links to,
// the system clipboard.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"strings"

	"github.com/atotto/clipboard"
)

// ErrNoURL means the clipboard held no http(s) URL
var ErrNoURL = errors.New("clipboard does not contain a URL")

// Service provides clipboard operations. When Command is set it is used
// instead of the platform clipboard, e.g. "wl-paste" or "xclip -o".
type Service struct {
	command []string
	logger  *slog.Logger

	// swapped in tests
	readAll  func() (string, error)
	writeAll func(string) error
}

// NewService creates a clipboard service. command may be empty.
func NewService(command string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		command:  parseCommand(command),
		logger:   logger,
		readAll:  clipboard.ReadAll,
		writeAll: clipboard.WriteAll,
	}
}

// Read returns the clipboard text with surrounding whitespace removed
func (s *Service) Read(ctx context.Context) (string, error) {
	if len(s.command) > 0 {
		out, err := exec.CommandContext(ctx, s.command[0], s.command[1:]...).Output()
		if err != nil {
			return "", fmt.Errorf("failed to execute clipboard command: %w", err)
		}
		return strings.TrimSpace(string(out)), nil
	}

	text, err := s.readAll()
	if err != nil {
		return "", fmt.Errorf("failed to read clipboard: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// ReadURL returns the first http(s) URL found in the clipboard
func (s *Service) ReadURL(ctx context.Context) (string, error) {
	text, err := s.Read(ctx)
	if err != nil {
		return "", err
	}
	u, ok := ExtractURL(text)
	if !ok {
		return "", ErrNoURL
	}
	s.logger.Debug("read URL from clipboard", "url", u)
	return u, nil
}

// Write copies text to the clipboard. The configured command, if any,
// receives the text on stdin.
func (s *Service) Write(ctx context.Context, text string) error {
	if len(s.command) > 0 {
		cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)
		cmd.Stdin = strings.NewReader(text)
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("failed to copy to clipboard with %q: %w", s.command[0], err)
		}
		return nil
	}

	if err := s.writeAll(text); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	s.logger.Debug("copied to clipboard", "text_length", len(text))
	return nil
}

// ExtractURL returns the first whitespace separated token that is an
// absolute http or https URL
func ExtractURL(text string) (string, bool) {
	for _, field := range strings.Fields(text) {
		field = strings.Trim(field, `"'<>()[]`)
		u, err := url.Parse(field)
		if err != nil || u.Host == "" {
			continue
		}
		if u.Scheme == "http" || u.Scheme == "https" {
			return field, true
		}
	}
	return "", false
}

// parseCommand splits a command line on spaces, honouring single and
// double quotes
func parseCommand(command string) []string {
	var parts []string
	var current strings.Builder
	var quote rune

	for _, char := range command {
		switch {
		case quote == 0 && (char == '\'' || char == '"'):
			quote = char
		case quote != 0 && char == quote:
			quote = 0
		case char == ' ' && quote == 0:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(char)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
