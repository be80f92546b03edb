//go:build !linux

package volkgen

// kernelRelease is only reported on Linux.
func kernelRelease() string {
	return ""
}
