//go:build windows

package ytdlp

import (
	"os/exec"
	"syscall"
)

// setupProcessAttributes hides the console window yt-dlp would otherwise open
// and puts it in its own process group so Ctrl+C in our console does not reach it
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
