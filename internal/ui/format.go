package ui

import (
	"fmt"
	"time"

	"github.com/asherwin/salvage/internal/stats"
)

// FormatRate formats a bytes-per-second rate as a human-readable string.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	units := []string{"B/s", "KB/s", "MB/s", "GB/s", "TB/s"}
	val := bytesPerSec
	for _, u := range units {
		if val < 1024 {
			if val < 10 {
				return fmt.Sprintf("%.2f %s", val, u)
			}
			if val < 100 {
				return fmt.Sprintf("%.1f %s", val, u)
			}
			return fmt.Sprintf("%.0f %s", val, u)
		}
		val /= 1024
	}
	return fmt.Sprintf("%.1f PB/s", val)
}

// FormatETA formats a duration as a human-readable ETA string.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	d = d.Round(time.Second)

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// CompletionSummary renders the end-of-run line.
func CompletionSummary(s stats.Snapshot) string {
	elapsed := s.Elapsed.Round(10 * time.Millisecond)
	if s.BlocksBad > 0 {
		return fmt.Sprintf("done with data loss: %s written in %s, %d bad blocks (%s zero-filled), %d retries",
			stats.FormatBytes(s.BytesWritten), elapsed, s.BlocksBad,
			stats.FormatBytes(s.BytesBad), s.RetriesUsed)
	}
	if s.BlocksSkipped > 0 {
		return fmt.Sprintf("done: %s written, %d blocks untouched, in %s",
			stats.FormatBytes(s.BytesWritten), s.BlocksSkipped, elapsed)
	}
	return fmt.Sprintf("done: %s written in %s", stats.FormatBytes(s.BytesWritten), elapsed)
}
