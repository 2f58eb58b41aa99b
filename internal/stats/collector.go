// Package stats tracks copy-run counters and short-window throughput.
package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Collector tracks copy progress using lock-free atomic counters. The engine
// writes, presenters read; the throughput ring is written only by the
// presenter's Tick.
type Collector struct {
	blocksCopied      atomic.Int64
	blocksBad         atomic.Int64
	blocksSkipped     atomic.Int64
	blocksFromPartial atomic.Int64
	bytesWritten      atomic.Int64
	bytesBad          atomic.Int64
	bytesTotal        atomic.Int64
	retriesUsed       atomic.Int64
	startTime         time.Time

	mu         sync.Mutex
	throughput [ringSize]int64 // bytes delta per tick
	ringIdx    int
	ringCount  int
	lastBytes  int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetBytesTotal records the number of bytes this run will process.
func (c *Collector) SetBytesTotal(n int64) { c.bytesTotal.Store(n) }

func (c *Collector) AddBlocksCopied(n int64)      { c.blocksCopied.Add(n) }
func (c *Collector) AddBlocksBad(n int64)         { c.blocksBad.Add(n) }
func (c *Collector) AddBlocksSkipped(n int64)     { c.blocksSkipped.Add(n) }
func (c *Collector) AddBlocksFromPartial(n int64) { c.blocksFromPartial.Add(n) }
func (c *Collector) AddBytesWritten(n int64)      { c.bytesWritten.Add(n) }
func (c *Collector) AddBytesBad(n int64)          { c.bytesBad.Add(n) }
func (c *Collector) AddRetriesUsed(n int64)       { c.retriesUsed.Add(n) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	BlocksCopied      int64
	BlocksBad         int64
	BlocksSkipped     int64
	BlocksFromPartial int64
	BytesWritten      int64
	BytesBad          int64
	BytesTotal        int64
	RetriesUsed       int64
	Elapsed           time.Duration
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		BlocksCopied:      c.blocksCopied.Load(),
		BlocksBad:         c.blocksBad.Load(),
		BlocksSkipped:     c.blocksSkipped.Load(),
		BlocksFromPartial: c.blocksFromPartial.Load(),
		BytesWritten:      c.bytesWritten.Load(),
		BytesBad:          c.bytesBad.Load(),
		BytesTotal:        c.bytesTotal.Load(),
		RetriesUsed:       c.retriesUsed.Load(),
		Elapsed:           c.Elapsed(),
	}
}

// Tick snapshots the byte delta into the ring buffer. Called once per
// presenter tick.
func (c *Collector) Tick() {
	current := c.bytesWritten.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = current - c.lastBytes
	c.lastBytes = current
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/tick over the last n samples.
func (c *Collector) RollingSpeed(n int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := n
	if count > c.ringCount {
		count = c.ringCount
	}
	if count == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < count; i++ {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += c.throughput[idx]
	}
	return float64(sum) / float64(count)
}

// ETA estimates remaining time from rolling speed and remaining bytes.
func (c *Collector) ETA() time.Duration {
	speed := c.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	remaining := c.bytesTotal.Load() - c.bytesWritten.Load()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"blocks=%d bad=%d skipped=%d partial=%d bytes=%d badbytes=%d retries=%d",
		s.BlocksCopied, s.BlocksBad, s.BlocksSkipped, s.BlocksFromPartial,
		s.BytesWritten, s.BytesBad, s.RetriesUsed,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
