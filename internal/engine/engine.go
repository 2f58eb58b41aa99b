// Package engine implements the block-level copy loop: a retrying reader
// for failing media, the per-block source selection table, and the
// orchestrator that ties them to the bad-block ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/asherwin/salvage/internal/event"
	"github.com/asherwin/salvage/internal/ledger"
	"github.com/asherwin/salvage/internal/platform"
	"github.com/asherwin/salvage/internal/stats"
)

// DefaultBlockSize is the transfer chunk size when none is configured.
const DefaultBlockSize = 4096

// OpenFunc opens a read stream for a path.
type OpenFunc func(path string) (ReadStream, error)

func defaultOpen(path string) (ReadStream, error) {
	return platform.Open(path)
}

// Config describes one copy run.
type Config struct {
	Source       string
	Dest         string
	Partial      string // earlier incomplete copy; non-empty selects merge mode
	BlockSize    int
	MaxRetries   int // additional read attempts per block on a medium error
	Overwrite    bool
	DeleteSource bool // remove the source after a fully clean copy

	// RangeStart and RangeEnd declare the byte range to copy. Only the full
	// file (both zero, or RangeEnd equal to the source length) is supported;
	// anything else is rejected during validation.
	RangeStart int64
	RangeEnd   int64

	Events chan<- event.Event
	Stats  *stats.Collector

	// OpenSource and OpenPartial override how streams are opened, for
	// fault-injection tests and raw-device front-ends. Nil means the
	// platform pread-backed file.
	OpenSource  OpenFunc
	OpenPartial OpenFunc
}

// Result is the outcome of a run.
type Result struct {
	Mode      Mode
	FinalPath string         // destination path after any bad-byte rename
	BadBlocks *ledger.Ledger // blocks recorded this run
	Stats     stats.Snapshot
	Err       error
}

// Run executes one copy run, blocking until complete. Running two copies of
// the same destination concurrently is unsupported.
func Run(ctx context.Context, cfg Config) Result {
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}

	p, err := validate(cfg)
	if err != nil {
		return Result{Mode: p.mode, Err: err, Stats: cfg.Stats.Snapshot()}
	}

	run := ledger.New()
	if err := copyBlocks(ctx, cfg, p, run); err != nil {
		return Result{
			Mode:      p.mode,
			FinalPath: cfg.Dest,
			BadBlocks: run,
			Stats:     cfg.Stats.Snapshot(),
			Err:       err,
		}
	}

	finalPath, err := finalize(cfg, run)
	emit(cfg.Events, event.Event{
		Type:  event.CopyFinished,
		Path:  finalPath,
		Count: int64(run.Len()),
		Size:  run.TotalBadBytes(),
		Error: err,
	})

	return Result{
		Mode:      p.mode,
		FinalPath: finalPath,
		BadBlocks: run,
		Stats:     cfg.Stats.Snapshot(),
		Err:       err,
	}
}

// copyBlocks is the Copying phase: one pass over [0, srcSize) at an
// advancing position, stepping by the bytes actually consumed (the final
// block may be short). All streams are closed on every exit path before
// finalization runs.
func copyBlocks(ctx context.Context, cfg Config, p plan, run *ledger.Ledger) error {
	openSrc := cfg.OpenSource
	if openSrc == nil {
		openSrc = defaultOpen
	}
	src, err := openSrc(cfg.Source)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	var partial ReadStream
	if p.mode == ModeMerge {
		openPart := cfg.OpenPartial
		if openPart == nil {
			openPart = defaultOpen
		}
		partial, err = openPart(cfg.Partial)
		if err != nil {
			return fmt.Errorf("open partial copy: %w", err)
		}
		defer partial.Close()
	}

	var dst *platform.File
	if p.mode == ModeRepair {
		dst, err = platform.OpenWrite(cfg.Dest)
	} else {
		dst, err = platform.Create(cfg.Dest, !cfg.Overwrite)
	}
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer dst.Close()

	if p.mode != ModeRepair {
		dst.Preallocate(p.srcSize)
	}

	cfg.Stats.SetBytesTotal(p.srcSize)
	emit(cfg.Events, event.Event{Type: event.CopyStarted, Size: p.srcSize, Origin: p.mode.String()})

	buf := make([]byte, cfg.BlockSize)
	lastOrigin := Origin(-1)

	for pos := int64(0); pos < p.srcSize; {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("copy aborted at offset %d: %w", pos, err)
		}

		d := selectOrigin(p.mode, pos, p.dstLedger, p.partialLedger, cfg.MaxRetries)
		if d.origin != lastOrigin {
			emit(cfg.Events, event.Event{Type: event.OriginChanged, Offset: pos, Origin: d.origin.String()})
			lastOrigin = d.origin
		}

		want := int64(cfg.BlockSize)
		if rem := p.srcSize - pos; rem < want {
			want = rem
		}

		var consumed int64
		switch d.origin {
		case OriginSkip:
			// Destination bytes at this offset stay as-is, not rewritten.
			cfg.Stats.AddBlocksSkipped(1)
			consumed = want

		case OriginPartial:
			n, rerr := partial.ReadAt(buf[:want], pos)
			if rerr != nil && !(errors.Is(rerr, io.EOF) && int64(n) == want) {
				return fmt.Errorf("partial copy unreadable at offset %d (ledger says these bytes are good): %w", pos, rerr)
			}
			if _, werr := dst.WriteAt(buf[:n], pos); werr != nil {
				return fmt.Errorf("write at offset %d: %w", pos, werr)
			}
			cfg.Stats.AddBlocksFromPartial(1)
			cfg.Stats.AddBytesWritten(int64(n))
			consumed = int64(n)

		case OriginSource:
			res, rerr := readBlock(src, buf[:want], pos, d.retries)
			if rerr != nil {
				return rerr
			}
			if _, werr := dst.WriteAt(buf[:res.n], pos); werr != nil {
				return fmt.Errorf("write at offset %d: %w", pos, werr)
			}
			cfg.Stats.AddBytesWritten(int64(res.n))
			cfg.Stats.AddRetriesUsed(int64(res.attempts - 1))
			if res.ok {
				cfg.Stats.AddBlocksCopied(1)
				if res.attempts > 1 {
					emit(cfg.Events, event.Event{
						Type:     event.BlockRecovered,
						Offset:   pos,
						Size:     int64(res.n),
						Attempts: res.attempts,
					})
				}
			} else {
				run.Add(ledger.Block{Offset: pos, Size: int64(res.n)})
				cfg.Stats.AddBlocksBad(1)
				cfg.Stats.AddBytesBad(int64(res.n))
				emit(cfg.Events, event.Event{
					Type:     event.BlockLost,
					Offset:   pos,
					Size:     int64(res.n),
					Attempts: res.attempts,
				})
			}
			consumed = int64(res.n)
		}

		if consumed <= 0 {
			return fmt.Errorf("no progress at offset %d", pos)
		}
		pos += consumed
	}

	return nil
}

// emit sends an event without blocking the copy loop; a slow presenter
// drops events rather than stalling I/O.
func emit(ch chan<- event.Event, ev event.Event) {
	if ch == nil {
		return
	}
	ev.Timestamp = time.Now()
	select {
	case ch <- ev:
	default:
	}
}
