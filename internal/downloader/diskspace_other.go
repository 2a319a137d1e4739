//go:build !(linux || darwin || windows)

package downloader

import "errors"

var errDiskSpaceUnsupported = errors.New("disk space check not supported on this platform")

// freeDiskSpace is not available here; callers skip the check
func freeDiskSpace(path string) (uint64, error) {
	return 0, errDiskSpaceUnsupported
}
