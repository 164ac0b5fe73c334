package model

import (
	"fmt"
	"strings"
	"time"
)

// Byte multiples used for rate and size formatting
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// DownloadTask is a point-in-time snapshot of a single download task.
// The registry owns the live copy; callers always receive values.
type DownloadTask struct {
	ID         string
	URL        string
	Quality    Quality
	Status     TaskStatus
	Percent    int     // 0 to 100
	Speed      float64 // bytes per second
	ETA        string  // as reported by the helper, empty if unknown
	StatusText string  // human readable summary for display
	LastError  string  // last error message if any
	Title      string  // media title when known
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// GetSpeedString returns the speed formatted with 1024-based units
func (dt *DownloadTask) GetSpeedString() string {
	return FormatSpeed(dt.Speed)
}

// GetETAString returns the ETA text, or "—" if unknown
func (dt *DownloadTask) GetETAString() string {
	if dt.ETA == "" {
		return "—"
	}
	return dt.ETA
}

// GetDisplayTitle returns title or URL in order of preference
func (dt *DownloadTask) GetDisplayTitle() string {
	if dt.Title != "" && !strings.HasPrefix(dt.Title, "http") {
		return dt.Title
	}
	return dt.URL
}

// FormatSpeed renders bytes per second as B/s, KB/s, MB/s or GB/s.
func FormatSpeed(bytesPerSecond float64) string {
	switch {
	case bytesPerSecond <= 0:
		return "0 B/s"
	case bytesPerSecond >= GiB:
		return fmt.Sprintf("%.2f GB/s", bytesPerSecond/GiB)
	case bytesPerSecond >= MiB:
		return fmt.Sprintf("%.2f MB/s", bytesPerSecond/MiB)
	case bytesPerSecond >= KiB:
		return fmt.Sprintf("%.2f KB/s", bytesPerSecond/KiB)
	default:
		return fmt.Sprintf("%.0f B/s", bytesPerSecond)
	}
}

// ProgressStatusText builds the status line shown while downloading
func ProgressStatusText(bytesPerSecond float64, eta string) string {
	if eta != "" {
		return fmt.Sprintf("%s - %s - ETA: %s", TaskStatusDownloading, FormatSpeed(bytesPerSecond), eta)
	}
	if bytesPerSecond > 0 {
		return fmt.Sprintf("%s - %s", TaskStatusDownloading, FormatSpeed(bytesPerSecond))
	}
	return TaskStatusDownloading.String()
}
