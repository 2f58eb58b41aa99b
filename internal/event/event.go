// Package event defines the progress events emitted by the copy engine.
package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	CopyStarted Type = iota + 1
	OriginChanged
	BlockRecovered
	BlockLost
	DestinationRenamed
	LedgerSaved
	LedgerRemoved
	CopyFinished
)

var typeNames = [...]string{
	CopyStarted:        "CopyStarted",
	OriginChanged:      "OriginChanged",
	BlockRecovered:     "BlockRecovered",
	BlockLost:          "BlockLost",
	DestinationRenamed: "DestinationRenamed",
	LedgerSaved:        "LedgerSaved",
	LedgerRemoved:      "LedgerRemoved",
	CopyFinished:       "CopyFinished",
}

func (t Type) String() string {
	if int(t) > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event is a single progress report from the engine.
type Event struct {
	Type      Type
	Timestamp time.Time
	Offset    int64  // block offset (BlockRecovered, BlockLost, OriginChanged)
	Size      int64  // block/bad-byte size, or total bytes for CopyStarted
	Attempts  int    // read attempts for this block
	Count     int64  // bad-block count (LedgerSaved, CopyFinished)
	Origin    string // where bytes come from (OriginChanged)
	Path      string // file path (DestinationRenamed, LedgerSaved, LedgerRemoved)
	Error     error
}
