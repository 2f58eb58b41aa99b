package platform

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// CloneAttributes copies the source file's access and modification times and
// its read-only state onto dst. Creation (birth) time is not settable
// through portable syscalls, so mtime stands in for it. Times are applied
// before the mode so a read-only result does not block the utimensat call.
func CloneAttributes(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported stat type for %s", src)
	}

	times := []unix.Timespec{
		unix.NsecToTimespec(atimeFromStat(stat).UnixNano()),
		unix.NsecToTimespec(info.ModTime().UnixNano()),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, dst, times, 0); err != nil {
		return fmt.Errorf("utimensat %s: %w", dst, err)
	}

	mode := info.Mode().Perm()
	if err := os.Chmod(dst, applyReadOnly(mode)); err != nil {
		return fmt.Errorf("chmod %s: %w", dst, err)
	}
	return nil
}

// applyReadOnly maps the source permission bits onto the destination,
// carrying the read-only flag: a source with no write bits produces a
// destination with none, a writable source yields the same perm bits.
func applyReadOnly(srcPerm os.FileMode) os.FileMode {
	if srcPerm&0222 == 0 {
		return srcPerm &^ 0222
	}
	return srcPerm
}
