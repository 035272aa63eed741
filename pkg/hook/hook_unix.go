//go:build !windows

package hook

import (
	"golang.org/x/sys/unix"
)

func shellArgs(command string) (string, []string) {
	return "/bin/sh", []string{"-c", command}
}

// processGroupAttr puts the hook in its own process group so that cancelling
// the pass reaches every child the shell started.
func processGroupAttr() *unix.SysProcAttr {
	return &unix.SysProcAttr{Setpgid: true}
}
