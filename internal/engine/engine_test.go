package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asherwin/salvage/internal/event"
	"github.com/asherwin/salvage/internal/ledger"
)

func TestRun_CleanCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	content := pattern('S', 2048+100) // final block is short
	writeTestFile(t, src, content)

	res := Run(context.Background(), Config{
		Source:    src,
		Dest:      dst,
		BlockSize: 512,
	})
	require.NoError(t, res.Err)
	assert.Equal(t, ModeFresh, res.Mode)
	assert.Equal(t, dst, res.FinalPath)
	assert.Equal(t, 0, res.BadBlocks.Len())

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.NoFileExists(t, ledger.Path(dst))

	assert.Equal(t, int64(5), res.Stats.BlocksCopied)
	assert.Equal(t, int64(len(content)), res.Stats.BytesWritten)
}

func TestRun_ZeroFillAndLedger(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	content := pattern('S', 2048)
	writeTestFile(t, src, content)

	faulty := newFaultStream(content)
	faulty.faults[512] = alwaysFail

	events := make(chan event.Event, 64)
	res := Run(context.Background(), Config{
		Source:     src,
		Dest:       dst,
		BlockSize:  512,
		MaxRetries: 1,
		Events:     events,
		OpenSource: openerFor(faulty),
	})
	require.NoError(t, res.Err)

	// Partial result carries the bad-byte count in its name.
	want := filepath.Join(dir, "dst (512 bad bytes).bin")
	assert.Equal(t, want, res.FinalPath)
	assert.NoFileExists(t, dst)

	got, err := os.ReadFile(res.FinalPath)
	require.NoError(t, err)
	assert.Equal(t, content[:512], got[:512])
	assert.Equal(t, make([]byte, 512), got[512:1024], "unreadable range is zero-filled")
	assert.Equal(t, content[1024:], got[1024:])

	l, err := ledger.Load(ledger.Path(res.FinalPath))
	require.NoError(t, err)
	require.Equal(t, 1, l.Len())
	assert.Equal(t, ledger.Block{Offset: 512, Size: 512}, l.Blocks()[0])

	assert.Equal(t, int64(1), res.Stats.BlocksBad)
	assert.Equal(t, int64(512), res.Stats.BytesBad)

	close(events)
	var sawLost, sawRenamed, sawSaved bool
	for ev := range events {
		switch ev.Type {
		case event.BlockLost:
			sawLost = true
			assert.Equal(t, int64(512), ev.Offset)
			assert.Equal(t, 2, ev.Attempts)
		case event.DestinationRenamed:
			sawRenamed = true
		case event.LedgerSaved:
			sawSaved = true
		}
	}
	assert.True(t, sawLost)
	assert.True(t, sawRenamed)
	assert.True(t, sawSaved)
}

func TestRun_RetryRecovers(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	content := pattern('S', 1024)
	writeTestFile(t, src, content)

	faulty := newFaultStream(content)
	faulty.faults[0] = 2 // fails twice, succeeds on the third attempt

	res := Run(context.Background(), Config{
		Source:     src,
		Dest:       dst,
		BlockSize:  512,
		MaxRetries: 2,
		OpenSource: openerFor(faulty),
	})
	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.BadBlocks.Len(), "recovered block is not recorded")
	assert.Equal(t, dst, res.FinalPath)
	assert.Equal(t, int64(2), res.Stats.RetriesUsed)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestRun_RepairScopesToLedger(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	writeTestFile(t, src, pattern('S', 1000))
	writeTestFile(t, dst, pattern('D', 1000))

	prior := ledger.New()
	prior.Add(ledger.Block{Offset: 100, Size: 100})
	require.NoError(t, prior.Save(ledger.Path(dst)))

	res := Run(context.Background(), Config{
		Source:    src,
		Dest:      dst,
		BlockSize: 100,
		Overwrite: true,
	})
	require.NoError(t, res.Err)
	assert.Equal(t, ModeRepair, res.Mode)
	assert.Equal(t, dst, res.FinalPath)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, pattern('D', 100), got[:100], "bytes outside the ledger stay as-is")
	assert.Equal(t, pattern('S', 100), got[100:200], "ledger range rewritten from source")
	assert.Equal(t, pattern('D', 800), got[200:])

	assert.NoFileExists(t, ledger.Path(dst), "healed file sheds its ledger")
	assert.Equal(t, int64(9), res.Stats.BlocksSkipped)
	assert.Equal(t, int64(1), res.Stats.BlocksCopied)
}

func TestRun_MergeComposition(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	part := filepath.Join(dir, "part.bin")
	dst := filepath.Join(dir, "dst.bin")

	writeTestFile(t, src, pattern('S', 200))

	partial := append(make([]byte, 50), pattern('P', 150)...)
	writeTestFile(t, part, partial)
	pl := ledger.New()
	pl.Add(ledger.Block{Offset: 0, Size: 50})
	require.NoError(t, pl.Save(ledger.Path(part)))

	res := Run(context.Background(), Config{
		Source:    src,
		Dest:      dst,
		Partial:   part,
		BlockSize: 50,
	})
	require.NoError(t, res.Err)
	assert.Equal(t, ModeMerge, res.Mode)
	assert.Equal(t, 0, res.BadBlocks.Len())

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, pattern('S', 50), got[:50], "partial's bad range comes from source")
	assert.Equal(t, pattern('P', 150), got[50:], "good partial bytes are reused")

	assert.Equal(t, int64(3), res.Stats.BlocksFromPartial)
	assert.Equal(t, int64(1), res.Stats.BlocksCopied)
}

func TestRun_MergeSourceAlsoBad(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	part := filepath.Join(dir, "part.bin")
	dst := filepath.Join(dir, "dst.bin")

	content := pattern('S', 200)
	writeTestFile(t, src, content)

	partial := append(make([]byte, 50), pattern('P', 150)...)
	writeTestFile(t, part, partial)
	pl := ledger.New()
	pl.Add(ledger.Block{Offset: 0, Size: 50})
	require.NoError(t, pl.Save(ledger.Path(part)))

	faulty := newFaultStream(content)
	faulty.faults[0] = alwaysFail

	res := Run(context.Background(), Config{
		Source:     src,
		Dest:       dst,
		Partial:    part,
		BlockSize:  50,
		OpenSource: openerFor(faulty),
	})
	require.NoError(t, res.Err)
	require.Equal(t, 1, res.BadBlocks.Len())
	assert.Equal(t, ledger.Block{Offset: 0, Size: 50}, res.BadBlocks.Blocks()[0])
	assert.Contains(t, res.FinalPath, "(50 bad bytes)")

	got, err := os.ReadFile(res.FinalPath)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 50), got[:50], "still-bad range zero-filled")
	assert.Equal(t, pattern('P', 150), got[50:])
}

func TestRun_MergePartialUnreadableIsFatal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	part := filepath.Join(dir, "part.bin")
	dst := filepath.Join(dir, "dst.bin")

	writeTestFile(t, src, pattern('S', 200))
	partial := pattern('P', 200)
	writeTestFile(t, part, partial)
	pl := ledger.New()
	pl.Add(ledger.Block{Offset: 0, Size: 50})
	require.NoError(t, pl.Save(ledger.Path(part)))

	faultyPartial := newFaultStream(partial)
	faultyPartial.faults[50] = alwaysFail // inside the "known good" region

	res := Run(context.Background(), Config{
		Source:      src,
		Dest:        dst,
		Partial:     part,
		BlockSize:   50,
		MaxRetries:  5,
		OpenPartial: openerFor(faultyPartial),
	})
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "partial copy unreadable")
	assert.NoFileExists(t, ledger.Path(dst), "no ledger is written on a fatal abort")
}

func TestRun_DestExistsWithoutOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	writeTestFile(t, src, pattern('S', 100))
	writeTestFile(t, dst, pattern('D', 100))

	res := Run(context.Background(), Config{Source: src, Dest: dst, BlockSize: 100})
	require.ErrorIs(t, res.Err, ErrDestinationExists)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, pattern('D', 100), got, "destination untouched")
}

func TestRun_OverwriteWithoutLedger(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	writeTestFile(t, src, pattern('S', 100))
	writeTestFile(t, dst, pattern('D', 100))

	res := Run(context.Background(), Config{Source: src, Dest: dst, BlockSize: 100, Overwrite: true})
	require.ErrorIs(t, res.Err, ErrLedgerMissing)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, pattern('D', 100), got, "destination untouched")
}

func TestRun_RepairSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	writeTestFile(t, src, pattern('S', 100))
	writeTestFile(t, dst, pattern('D', 50))

	res := Run(context.Background(), Config{Source: src, Dest: dst, BlockSize: 100, Overwrite: true})
	require.ErrorIs(t, res.Err, ErrSizeMismatch)
}

func TestRun_LedgerBlockSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	writeTestFile(t, src, pattern('S', 1000))
	writeTestFile(t, dst, pattern('D', 1000))

	prior := ledger.New()
	prior.Add(ledger.Block{Offset: 100, Size: 100})
	require.NoError(t, prior.Save(ledger.Path(dst)))

	res := Run(context.Background(), Config{Source: src, Dest: dst, BlockSize: 512, Overwrite: true})
	require.ErrorIs(t, res.Err, ErrLedgerBlockSize)
}

func TestRun_PartialRangeRejected(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	writeTestFile(t, src, pattern('S', 100))

	res := Run(context.Background(), Config{
		Source:     src,
		Dest:       filepath.Join(dir, "dst.bin"),
		BlockSize:  100,
		RangeStart: 10,
	})
	require.ErrorIs(t, res.Err, ErrUnsupportedRange)

	// Declaring the full range explicitly is fine.
	res = Run(context.Background(), Config{
		Source:    src,
		Dest:      filepath.Join(dir, "dst2.bin"),
		BlockSize: 100,
		RangeEnd:  100,
	})
	require.NoError(t, res.Err)
}

func TestRun_DeleteSourceOnCleanCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	content := pattern('S', 256)
	writeTestFile(t, src, content)

	res := Run(context.Background(), Config{
		Source:       src,
		Dest:         dst,
		BlockSize:    64,
		DeleteSource: true,
	})
	require.NoError(t, res.Err)
	assert.NoFileExists(t, src)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestRun_DeleteSourceKeptOnBadBlocks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	content := pattern('S', 256)
	writeTestFile(t, src, content)

	faulty := newFaultStream(content)
	faulty.faults[0] = alwaysFail

	res := Run(context.Background(), Config{
		Source:       src,
		Dest:         dst,
		BlockSize:    64,
		DeleteSource: true,
		OpenSource:   openerFor(faulty),
	})
	require.NoError(t, res.Err)
	require.Equal(t, 1, res.BadBlocks.Len())
	assert.FileExists(t, src, "source kept while bad blocks remain")
}

func TestRun_ClonesTimestamps(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	writeTestFile(t, src, pattern('S', 64))

	mtime := time.Date(2019, 7, 20, 20, 17, 40, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	res := Run(context.Background(), Config{Source: src, Dest: dst, BlockSize: 64})
	require.NoError(t, res.Err)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))
}

func TestRun_StaleSidecarRemovedOnCleanRun(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	writeTestFile(t, src, pattern('S', 64))

	// Sidecar left behind by an earlier run whose destination was deleted.
	stale := ledger.New()
	stale.Add(ledger.Block{Offset: 0, Size: 64})
	require.NoError(t, stale.Save(ledger.Path(dst)))

	res := Run(context.Background(), Config{Source: src, Dest: dst, BlockSize: 64})
	require.NoError(t, res.Err)
	assert.NoFileExists(t, ledger.Path(dst))
}

func TestRun_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	writeTestFile(t, src, pattern('S', 100))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Run(ctx, Config{Source: src, Dest: filepath.Join(dir, "dst.bin"), BlockSize: 10})
	require.ErrorIs(t, res.Err, context.Canceled)
}

func TestBadName(t *testing.T) {
	assert.Equal(t, "/a/movie (4096 bad bytes).iso", badName("/a/movie.iso", 4096))
	assert.Equal(t, "raw (12 bad bytes)", badName("raw", 12))
	assert.Equal(t,
		"/a/movie (1024 bad bytes).iso",
		badName("/a/movie (512 bad bytes).iso", 1024),
		"previous marker replaced, not stacked")
}
