//go:build windows

package hook

import (
	"golang.org/x/sys/windows"
)

func shellArgs(command string) (string, []string) {
	return "cmd", []string{"/C", command}
}

// processGroupAttr starts the hook in a new process group, detached from the
// console's Ctrl+C handling of the mirror itself.
func processGroupAttr() *windows.SysProcAttr {
	return &windows.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}
