package mach

import "os"

// isCI returns true if running in GitHub Actions or another CI runner
func isCI() bool {
	return os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
}
