package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/asherwin/salvage/internal/event"
	"github.com/asherwin/salvage/internal/stats"
)

// plainPresenter prints one line per notable event to stdout and periodic
// progress to stderr.
type plainPresenter struct {
	w          io.Writer
	errW       io.Writer
	stats      *stats.Collector
	verbose    bool
	noProgress bool
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.stats.Tick()
			if !p.noProgress {
				p.printProgress()
			}
		}
	}
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.CopyStarted:
		fmt.Fprintf(p.w, "copying %s (%s mode)\n", stats.FormatBytes(ev.Size), ev.Origin)
	case event.OriginChanged:
		if p.verbose {
			fmt.Fprintf(p.w, "offset %d: reading from %s\n", ev.Offset, ev.Origin)
		}
	case event.BlockRecovered:
		fmt.Fprintf(p.w, "offset %d: recovered after %d tries\n", ev.Offset, ev.Attempts)
	case event.BlockLost:
		fmt.Fprintf(p.w, "offset %d: giving up after %d tries (%s zero-filled)\n",
			ev.Offset, ev.Attempts, stats.FormatBytes(ev.Size))
	case event.DestinationRenamed:
		fmt.Fprintf(p.w, "renamed: %s\n", ev.Path)
	case event.LedgerSaved:
		fmt.Fprintf(p.w, "ledger: %d bad blocks (%s) -> %s\n",
			ev.Count, stats.FormatBytes(ev.Size), ev.Path)
	case event.LedgerRemoved:
		if p.verbose {
			fmt.Fprintf(p.w, "ledger removed: %s\n", ev.Path)
		}
	case event.CopyFinished:
		// Summary covers the outcome.
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	if snap.BytesTotal <= 0 {
		return
	}
	pct := float64(snap.BytesWritten) / float64(snap.BytesTotal) * 100
	fmt.Fprintf(p.errW, "progress: %.0f%% %s/%s %s eta %s\n",
		pct,
		stats.FormatBytes(snap.BytesWritten), stats.FormatBytes(snap.BytesTotal),
		FormatRate(p.stats.RollingSpeed(10)),
		FormatETA(p.stats.ETA()),
	)
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}
