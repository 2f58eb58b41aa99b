package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/asherwin/salvage/internal/ledger"
)

// Precondition violations. All are reported before any byte is copied and
// map to distinct exit codes in the CLI.
var (
	// ErrDestinationExists: the destination is present and overwrite was
	// not requested.
	ErrDestinationExists = errors.New("destination exists and overwrite not requested")

	// ErrLedgerMissing: an existing copy has no bad-block sidecar. Absence
	// means "nothing known to fix", so the run refuses to re-copy a file
	// that is presumed already good.
	ErrLedgerMissing = errors.New("no bad-block ledger found")

	// ErrSizeMismatch: the existing destination or partial copy is not the
	// same length as the source.
	ErrSizeMismatch = errors.New("length differs from source")

	// ErrLedgerBlockSize: the persisted ledger was written with a different
	// block size than the active one. Mismatched ledgers are rejected, not
	// reconciled.
	ErrLedgerBlockSize = errors.New("ledger written with a different block size")

	// ErrUnsupportedRange: only the full file range is copyable; a partial
	// range is rejected rather than silently mis-copied.
	ErrUnsupportedRange = errors.New("only the full file range is supported")
)

// plan is what validation decides once, before any byte moves.
type plan struct {
	mode          Mode
	srcSize       int64
	dstLedger     *ledger.Ledger // repair mode
	partialLedger *ledger.Ledger // merge mode
}

func validate(cfg Config) (plan, error) {
	var p plan

	srcInfo, err := os.Stat(cfg.Source)
	if err != nil {
		return p, fmt.Errorf("source: %w", err)
	}
	if srcInfo.IsDir() {
		return p, fmt.Errorf("source %s is a directory", cfg.Source)
	}
	p.srcSize = srcInfo.Size()

	if cfg.RangeStart != 0 || (cfg.RangeEnd != 0 && cfg.RangeEnd != p.srcSize) {
		return p, fmt.Errorf("range [%d, %d): %w", cfg.RangeStart, cfg.RangeEnd, ErrUnsupportedRange)
	}

	dstInfo, statErr := os.Stat(cfg.Dest)
	destExists := statErr == nil
	if destExists && !cfg.Overwrite {
		return p, fmt.Errorf("%s: %w", cfg.Dest, ErrDestinationExists)
	}

	switch {
	case cfg.Partial != "":
		p.mode = ModeMerge
		partInfo, err := os.Stat(cfg.Partial)
		if err != nil {
			return p, fmt.Errorf("partial copy: %w", err)
		}
		if partInfo.Size() != p.srcSize {
			return p, fmt.Errorf("partial copy %s is %d bytes, source is %d: %w",
				cfg.Partial, partInfo.Size(), p.srcSize, ErrSizeMismatch)
		}
		p.partialLedger, err = loadRequiredLedger(ledger.Path(cfg.Partial), cfg.BlockSize)
		if err != nil {
			return p, err
		}

	case destExists:
		p.mode = ModeRepair
		if dstInfo.Size() != p.srcSize {
			return p, fmt.Errorf("destination %s is %d bytes, source is %d: %w",
				cfg.Dest, dstInfo.Size(), p.srcSize, ErrSizeMismatch)
		}
		p.dstLedger, err = loadRequiredLedger(ledger.Path(cfg.Dest), cfg.BlockSize)
		if err != nil {
			return p, err
		}

	default:
		p.mode = ModeFresh
	}

	return p, nil
}

// loadRequiredLedger loads a sidecar that must exist and must agree with the
// active block size. An absent sidecar becomes ErrLedgerMissing; a corrupt
// one propagates as a fatal load failure, never as "no bad blocks".
func loadRequiredLedger(path string, blockSize int) (*ledger.Ledger, error) {
	l, err := ledger.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrLedgerMissing)
		}
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if l.Len() > 0 && l.AverageBlockSize() != int64(blockSize) {
		return nil, fmt.Errorf("ledger %s: average block size %d, active block size %d: %w",
			path, l.AverageBlockSize(), blockSize, ErrLedgerBlockSize)
	}
	return l, nil
}
