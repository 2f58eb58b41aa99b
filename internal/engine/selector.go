package engine

import "github.com/asherwin/salvage/internal/ledger"

// Mode selects the copy strategy for a run. It is derived once from which
// optional inputs are present and never re-evaluated mid-run.
type Mode int

const (
	// ModeFresh copies every block from the source into a new destination.
	ModeFresh Mode = iota
	// ModeRepair re-reads only the ranges the destination's ledger marks
	// bad, leaving every other destination byte untouched.
	ModeRepair
	// ModeMerge builds the destination from an earlier partial copy where
	// that copy's ledger says its bytes are good, and from the source for
	// the ranges it marks bad.
	ModeMerge
)

func (m Mode) String() string {
	switch m {
	case ModeRepair:
		return "repair"
	case ModeMerge:
		return "merge"
	default:
		return "fresh"
	}
}

// Origin says where one block's bytes come from.
type Origin int

const (
	OriginSource Origin = iota
	OriginPartial
	OriginSkip
)

func (o Origin) String() string {
	switch o {
	case OriginPartial:
		return "partial"
	case OriginSkip:
		return "skip"
	default:
		return "source"
	}
}

// decision is the per-block outcome of the selection table.
type decision struct {
	origin  Origin
	retries int
}

// selectOrigin applies the mode's decision table at one block offset.
// Membership is first-covering-block; overlapping ledger entries are not
// deduplicated.
func selectOrigin(mode Mode, pos int64, dst, partial *ledger.Ledger, maxRetries int) decision {
	switch mode {
	case ModeRepair:
		if dst.Contains(pos) {
			return decision{origin: OriginSource, retries: maxRetries}
		}
		return decision{origin: OriginSkip}
	case ModeMerge:
		if partial.Contains(pos) {
			return decision{origin: OriginSource, retries: maxRetries}
		}
		// The partial copy is known-good here: no retry budget, any read
		// failure is a fatal inconsistency.
		return decision{origin: OriginPartial}
	default:
		return decision{origin: OriginSource, retries: maxRetries}
	}
}
