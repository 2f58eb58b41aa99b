package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()
	c.SetBytesTotal(1 << 20)
	c.AddBlocksCopied(3)
	c.AddBlocksBad(1)
	c.AddBlocksSkipped(2)
	c.AddBytesWritten(4096 * 4)
	c.AddBytesBad(4096)
	c.AddRetriesUsed(5)

	s := c.Snapshot()
	assert.Equal(t, int64(3), s.BlocksCopied)
	assert.Equal(t, int64(1), s.BlocksBad)
	assert.Equal(t, int64(2), s.BlocksSkipped)
	assert.Equal(t, int64(16384), s.BytesWritten)
	assert.Equal(t, int64(4096), s.BytesBad)
	assert.Equal(t, int64(1<<20), s.BytesTotal)
	assert.Equal(t, int64(5), s.RetriesUsed)
	assert.GreaterOrEqual(t, s.Elapsed.Nanoseconds(), int64(0))
}

func TestCollector_RollingSpeed(t *testing.T) {
	c := NewCollector()
	assert.Zero(t, c.RollingSpeed(10))

	c.AddBytesWritten(1000)
	c.Tick()
	c.AddBytesWritten(3000)
	c.Tick()

	assert.InDelta(t, 2000.0, c.RollingSpeed(2), 0.01)
	assert.InDelta(t, 3000.0, c.RollingSpeed(1), 0.01)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "4.0 KiB", FormatBytes(4096))
	assert.Equal(t, "1.5 MiB", FormatBytes(3<<19))
}
