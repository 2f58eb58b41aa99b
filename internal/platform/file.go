// Package platform wraps the positioned file I/O and attribute syscalls the
// copy engine needs, keeping errno-level details out of the engine.
package platform

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// File is a positioned-I/O view of an open file. Reads and writes use
// pread/pwrite so the kernel file offset is never shared state; the read
// position is unchanged by a failed read, which is what the block retry
// loop depends on.
type File struct {
	fd   *os.File
	size int64
}

// Open opens path read-only.
func Open(path string) (*File, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return wrap(fd)
}

// Create creates path for writing. With exclusive set the call fails if the
// file already exists; otherwise an existing file is truncated.
func Create(path string, exclusive bool) (*File, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if exclusive {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	fd, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}
	return wrap(fd)
}

// OpenWrite opens an existing file for in-place positioned writes without
// truncating it.
func OpenWrite(path string) (*File, error) {
	fd, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, err
	}
	return wrap(fd)
}

func wrap(fd *os.File) (*File, error) {
	info, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, err
	}
	return &File{fd: fd, size: info.Size()}, nil
}

// Size returns the file's length as observed at open time.
func (f *File) Size() int64 {
	return f.size
}

// Name returns the path the file was opened with.
func (f *File) Name() string {
	return f.fd.Name()
}

// Close releases the descriptor.
func (f *File) Close() error {
	return f.fd.Close()
}

// ReadAt fills p from offset off. It follows the io.ReaderAt contract:
// when n < len(p) a non-nil error explains why, with io.EOF at end of file.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	rawFd := int(f.fd.Fd())
	var n int
	for n < len(p) {
		m, err := unix.Pread(rawFd, p[n:], off+int64(n))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return n, &os.PathError{Op: "pread", Path: f.fd.Name(), Err: err}
		}
		if m == 0 {
			return n, io.EOF
		}
		n += m
	}
	return n, nil
}

// WriteAt writes p at offset off, looping on short writes.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	rawFd := int(f.fd.Fd())
	var n int
	for n < len(p) {
		m, err := unix.Pwrite(rawFd, p[n:], off+int64(n))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return n, &os.PathError{Op: "pwrite", Path: f.fd.Name(), Err: err}
		}
		n += m
	}
	return n, nil
}
