//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// terminateProcess sends SIGTERM to the process group led by pid.
func terminateProcess(pid int) error {
	return signalGroup(pid, syscall.SIGTERM)
}

// killProcess sends SIGKILL to the process group led by pid.
func killProcess(pid int) error {
	return signalGroup(pid, syscall.SIGKILL)
}

func signalGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err != nil {
		// group gone or never formed; fall back to the leader itself
		return syscall.Kill(pid, sig)
	}
	return nil
}

func isNoSuchProcess(err error) bool {
	return errors.Is(err, syscall.ESRCH)
}
