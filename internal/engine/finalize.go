package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/asherwin/salvage/internal/event"
	"github.com/asherwin/salvage/internal/ledger"
	"github.com/asherwin/salvage/internal/platform"
)

var badMarker = regexp.MustCompile(` \(\d+ bad bytes\)`)

// badName embeds the bad-byte count in the file name, before the extension,
// so a partial result is visually distinct from a clean copy. A marker left
// by a previous run is replaced, not stacked.
func badName(path string, badBytes int64) string {
	base := badMarker.ReplaceAllString(filepath.Base(path), "")
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(filepath.Dir(path), fmt.Sprintf("%s (%d bad bytes)%s", stem, badBytes, ext))
}

// finalize is the Finalizing phase: rename and persist the ledger when the
// run recorded bad blocks, drop a stale sidecar when it did not, and clone
// source attributes onto the destination in either case.
func finalize(cfg Config, run *ledger.Ledger) (string, error) {
	final := cfg.Dest

	if run.Len() > 0 {
		final = badName(cfg.Dest, run.TotalBadBytes())
		if final != cfg.Dest {
			if err := os.Rename(cfg.Dest, final); err != nil {
				return cfg.Dest, fmt.Errorf("rename destination: %w", err)
			}
			// A sidecar from a previous run still sits next to the old name.
			if _, err := ledger.Remove(ledger.Path(cfg.Dest)); err != nil {
				return final, fmt.Errorf("remove stale ledger: %w", err)
			}
			emit(cfg.Events, event.Event{Type: event.DestinationRenamed, Path: final})
		}
		if err := run.Save(ledger.Path(final)); err != nil {
			return final, fmt.Errorf("save ledger: %w", err)
		}
		emit(cfg.Events, event.Event{
			Type:  event.LedgerSaved,
			Path:  ledger.Path(final),
			Count: int64(run.Len()),
			Size:  run.TotalBadBytes(),
		})
	} else {
		// The file is now known-good; a leftover sidecar would steer a
		// future repair run at ranges that no longer need fixing.
		removed, err := ledger.Remove(ledger.Path(cfg.Dest))
		if err != nil {
			return final, fmt.Errorf("remove stale ledger: %w", err)
		}
		if removed {
			emit(cfg.Events, event.Event{Type: event.LedgerRemoved, Path: ledger.Path(cfg.Dest)})
		}
	}

	if err := platform.CloneAttributes(cfg.Source, final); err != nil {
		return final, err
	}

	if cfg.DeleteSource && run.Len() == 0 {
		if err := os.Remove(cfg.Source); err != nil {
			return final, fmt.Errorf("delete source: %w", err)
		}
	}

	return final, nil
}
