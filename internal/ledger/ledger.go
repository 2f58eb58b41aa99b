// Package ledger records which byte ranges of a copied file could not be
// read from the source medium, and persists them in a sidecar file next to
// the destination so a later run can retry only those ranges.
package ledger

// Block is a contiguous byte range that could not be read in full.
type Block struct {
	Offset int64 `toml:"offset"`
	Size   int64 `toml:"size"`
}

// covers reports whether pos falls inside the block.
func (b Block) covers(pos int64) bool {
	return b.Offset <= pos && pos < b.Offset+b.Size
}

// Ledger is the ordered list of bad blocks for one destination file.
// Entries may overlap or appear out of order; no sorting or deduplication
// is ever performed. Membership is a first-covering-block scan.
type Ledger struct {
	blocks []Block
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Add appends a block. Order of insertion is preserved.
func (l *Ledger) Add(b Block) {
	l.blocks = append(l.blocks, b)
}

// Contains reports whether pos falls inside any recorded block.
func (l *Ledger) Contains(pos int64) bool {
	for _, b := range l.blocks {
		if b.covers(pos) {
			return true
		}
	}
	return false
}

// Len returns the number of recorded blocks.
func (l *Ledger) Len() int {
	return len(l.blocks)
}

// Blocks returns the recorded blocks in insertion order.
func (l *Ledger) Blocks() []Block {
	out := make([]Block, len(l.blocks))
	copy(out, l.blocks)
	return out
}

// TotalBadBytes returns the sum of all block sizes. Overlapping entries are
// counted as recorded, not as a coalesced set.
func (l *Ledger) TotalBadBytes() int64 {
	var total int64
	for _, b := range l.blocks {
		total += b.Size
	}
	return total
}

// AverageBlockSize returns TotalBadBytes / Len using integer division,
// or 0 for an empty ledger. Validation compares this against the active
// block size to reject ledgers written with a different one.
func (l *Ledger) AverageBlockSize() int64 {
	if len(l.blocks) == 0 {
		return 0
	}
	return l.TotalBadBytes() / int64(len(l.blocks))
}
