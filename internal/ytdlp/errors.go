package ytdlp

import "errors"

var (
	// ErrToolNotFound means the downloader binary could not be located
	ErrToolNotFound = errors.New("yt-dlp binary not found")
	// ErrPreflight means the target could not be reached before spawning
	ErrPreflight = errors.New("preflight check failed")
	// ErrSpawn means the subprocess could not be started
	ErrSpawn = errors.New("failed to start process")
	// ErrAuthRequired means the site demands login or a bot check
	ErrAuthRequired = errors.New("authentication required")
	// ErrExtractorOutdated means signature/nsig extraction failed
	ErrExtractorOutdated = errors.New("extractor outdated")
	// ErrTimeout means the attempt exceeded its wall-clock limit
	ErrTimeout = errors.New("download timed out")
	// ErrToolFailed means the tool exited with a non-zero code
	ErrToolFailed = errors.New("yt-dlp exited with an error")
)

// categoryError maps a classification to its sentinel
func categoryError(c Category) error {
	switch c {
	case CategoryAuthRequired:
		return ErrAuthRequired
	case CategoryExtractorOutdated:
		return ErrExtractorOutdated
	default:
		return ErrToolFailed
	}
}
