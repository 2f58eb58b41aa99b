package engine

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// faultStream serves a byte slice and injects read errors at chosen offsets.
type faultStream struct {
	data   []byte
	faults map[int64]int   // offset -> failures remaining before reads succeed
	fatal  map[int64]error // offset -> permanent non-medium error
}

const alwaysFail = 1 << 30

func newFaultStream(data []byte) *faultStream {
	return &faultStream{
		data:   data,
		faults: make(map[int64]int),
		fatal:  make(map[int64]error),
	}
}

func (s *faultStream) ReadAt(p []byte, off int64) (int, error) {
	if err, ok := s.fatal[off]; ok {
		return 0, err
	}
	if s.faults[off] > 0 {
		s.faults[off]--
		return 0, &os.PathError{Op: "pread", Path: "faultstream", Err: unix.EIO}
	}
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *faultStream) Size() int64 { return int64(len(s.data)) }
func (s *faultStream) Close() error { return nil }

// openerFor returns an OpenFunc that ignores the path and serves s.
func openerFor(s *faultStream) OpenFunc {
	return func(string) (ReadStream, error) { return s, nil }
}

func writeTestFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// pattern fills n bytes with a repeating byte value.
func pattern(b byte, n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = b
	}
	return data
}
