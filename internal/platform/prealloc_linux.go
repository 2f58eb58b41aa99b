//go:build linux

package platform

import "golang.org/x/sys/unix"

// Preallocate attempts to pre-allocate disk space for size bytes. Errors are
// ignored as fallocate is not supported on all filesystems.
func (f *File) Preallocate(size int64) {
	if size <= 0 {
		return
	}
	//nolint:errcheck // fallocate is advisory; not supported on all filesystems
	unix.Fallocate(int(f.fd.Fd()), 0, 0, size)
}
