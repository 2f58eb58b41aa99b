package engine

import (
	"errors"
	"fmt"
	"io"

	"github.com/asherwin/salvage/internal/platform"
)

// Stream is a positioned read source with a known length.
type Stream interface {
	io.ReaderAt
	Size() int64
}

// ReadStream is a Stream the engine opens and owns for the run's duration.
type ReadStream interface {
	Stream
	io.Closer
}

// blockResult reports one forced block read.
type blockResult struct {
	n        int  // bytes to write at this offset (expected length when !ok)
	ok       bool // false: retries exhausted, buf[:n] is zero-filled
	attempts int  // total read attempts made
}

// readBlock reads one block at off into buf, retrying the identical read up
// to maxRetries additional times on a transient medium error. Positioned
// reads leave the offset untouched on failure, so every retry hits the same
// sectors. When retries exhaust, the expected length min(len(buf), size-off)
// is zero-filled and returned with ok=false; that length sizes both the
// destination write and the bad-block record. Any non-medium error
// propagates and aborts the run.
func readBlock(s Stream, buf []byte, off int64, maxRetries int) (blockResult, error) {
	want := len(buf)
	if rem := s.Size() - off; rem < int64(want) {
		want = int(rem)
	}
	if want <= 0 {
		return blockResult{}, nil
	}

	attempts := 0
	for {
		attempts++
		n, err := s.ReadAt(buf[:want], off)
		if err == nil || (errors.Is(err, io.EOF) && n == want) {
			return blockResult{n: want, ok: true, attempts: attempts}, nil
		}
		if errors.Is(err, io.EOF) {
			// The stream is shorter than its declared size.
			return blockResult{}, fmt.Errorf("read at offset %d: %w", off, io.ErrUnexpectedEOF)
		}
		if platform.IsMediumError(err) {
			if attempts > maxRetries {
				clear(buf[:want])
				return blockResult{n: want, ok: false, attempts: attempts}, nil
			}
			continue
		}
		return blockResult{}, fmt.Errorf("read at offset %d: %w", off, err)
	}
}
