package ledger

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Suffix identifies a destination's bad-block sidecar.
const Suffix = ".badblocks"

// ErrCorrupt marks a sidecar that exists but cannot be trusted: a decode
// failure, a digest mismatch, or an invalid record. Callers must treat this
// differently from fs.ErrNotExist — an absent sidecar means "no known bad
// blocks", a corrupt one means nothing is known.
var ErrCorrupt = errors.New("corrupt bad-block sidecar")

// Path returns the sidecar path for a destination file.
func Path(dst string) string {
	return dst + Suffix
}

// sidecar is the persisted form. The digest is a BLAKE3 hash over the
// canonical record bytes, so partially written or hand-edited files are
// rejected at load rather than silently steering a repair run.
type sidecar struct {
	Version int     `toml:"version"`
	Digest  string  `toml:"digest"`
	Blocks  []Block `toml:"block"`
}

const sidecarVersion = 1

func digest(blocks []Block) string {
	h := blake3.New()
	for _, b := range blocks {
		fmt.Fprintf(h, "%d:%d\n", b.Offset, b.Size)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Save serializes the ledger to path as a single atomic write: encode to a
// buffer, write a uniquely named temp file in the same directory, rename.
func (l *Ledger) Save(path string) error {
	sc := sidecar{
		Version: sidecarVersion,
		Digest:  digest(l.blocks),
		Blocks:  l.blocks,
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(sc); err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, uuid.New().String()[:8]))

	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename sidecar: %w", err)
	}
	return nil
}

// Load reads a sidecar from path. A missing file returns an error matching
// fs.ErrNotExist; any other failure wraps ErrCorrupt.
func Load(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var sc sidecar
	if err := toml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if sc.Version != sidecarVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, sc.Version)
	}
	if sc.Digest != digest(sc.Blocks) {
		return nil, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}
	for _, b := range sc.Blocks {
		if b.Offset < 0 || b.Size < 0 {
			return nil, fmt.Errorf("%w: negative record {%d, %d}", ErrCorrupt, b.Offset, b.Size)
		}
	}

	return &Ledger{blocks: sc.Blocks}, nil
}

// Remove deletes the sidecar at path. Reports whether a file was removed;
// a missing sidecar is not an error.
func Remove(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
