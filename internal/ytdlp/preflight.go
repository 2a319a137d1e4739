package ytdlp

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os/exec"
	"strings"
	"time"
)

// DefaultPreflightTimeout bounds the DNS lookup and TCP connect of CheckNetwork
const DefaultPreflightTimeout = 5 * time.Second

// Preflight performs the cheap checks run before a process is spawned
type Preflight interface {
	CheckTool(ctx context.Context) error
	CheckNetwork(ctx context.Context, rawURL string) error
}

// NetPreflight checks the binary with exec.LookPath and reachability with a
// plain TCP dial to the URL's host.
type NetPreflight struct {
	ToolPath string
	Timeout  time.Duration
	Dialer   func(ctx context.Context, network, address string) (net.Conn, error)
}

// CheckTool verifies the downloader binary can be resolved
func (p *NetPreflight) CheckTool(ctx context.Context) error {
	if _, err := exec.LookPath(p.ToolPath); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrToolNotFound, p.ToolPath, err)
	}
	return nil
}

// CheckNetwork resolves and connects to the URL's host with a short timeout
func (p *NetPreflight) CheckNetwork(ctx context.Context, rawURL string) error {
	address, err := dialAddress(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPreflight, err)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultPreflightTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dial := p.Dialer
	if dial == nil {
		d := &net.Dialer{Timeout: timeout}
		dial = d.DialContext
	}

	conn, err := dial(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("%w: cannot reach %s: %v", ErrPreflight, address, err)
	}
	_ = conn.Close()
	return nil
}

func dialAddress(rawURL string) (string, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("URL %q has no host", rawURL)
	}

	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "http":
			port = "80"
		default:
			port = "443"
		}
	}
	return net.JoinHostPort(host, port), nil
}

// noPreflight skips all checks
type noPreflight struct{}

func (noPreflight) CheckTool(context.Context) error            { return nil }
func (noPreflight) CheckNetwork(context.Context, string) error { return nil }
