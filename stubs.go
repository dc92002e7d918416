//go:build !darwin || !amd64

package mach

// NewHostKernel returns ErrUnsupportedPlatform off darwin/amd64.
func NewHostKernel() (Kernel, error) {
	return nil, ErrUnsupportedPlatform
}

// Supported returns false on platforms without a usable Mach kernel.
func Supported() (bool, error) {
	return false, ErrUnsupportedPlatform
}

// ExecutablePath returns ErrUnsupportedPlatform.
func ExecutablePath(pid int) (string, error) {
	return "", ErrUnsupportedPlatform
}
