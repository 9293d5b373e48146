//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// Windows creation flags
const (
	CREATE_NEW_CONSOLE       = 0x00000010
	CREATE_NEW_PROCESS_GROUP = 0x00000200
)

// configureSysProcAttr gives the server its own visible console window and
// process group.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: CREATE_NEW_CONSOLE | CREATE_NEW_PROCESS_GROUP,
	}
}

// attachConsole leaves stdout/stderr unset; with CREATE_NEW_CONSOLE the server
// then writes to its own window.
func attachConsole(cmd *exec.Cmd) {
	cmd.Stdout = nil
	cmd.Stderr = nil
}
