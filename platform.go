//go:build darwin && amd64

package mach

import (
	"bytes"
	"fmt"

	"golang.org/x/sys/unix"
)

// Supported reports whether the host runs a Darwin kernel this package can
// drive.
func Supported() (bool, error) {
	ostype, err := unix.Sysctl("kern.ostype")
	if err != nil {
		return false, err
	}
	return ostype == "Darwin", nil
}

// ExecutablePath returns the path the process pid was executed from, as
// recorded in kern.procargs2.
func ExecutablePath(pid int) (string, error) {
	buf, err := unix.SysctlRaw("kern.procargs2", pid)
	if err != nil {
		return "", fmt.Errorf("failed to read procargs of pid %d: %w", pid, err)
	}
	// int32 argc, then the NUL terminated exec path
	if len(buf) < 5 {
		return "", fmt.Errorf("mach: short procargs for pid %d", pid)
	}
	path := buf[4:]
	if i := bytes.IndexByte(path, 0); i >= 0 {
		path = path[:i]
	}
	if len(path) == 0 {
		return "", fmt.Errorf("mach: empty exec path for pid %d", pid)
	}
	return string(path), nil
}
