package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Quality is an opaque format preference passed to the download mechanism.
// Well-known tokens are mapped to format selectors; any other value is
// handed to yt-dlp verbatim.
type Quality string

const (
	QualityBest      Quality = "best"
	QualityAudioOnly Quality = "audio-only"
)

// Resolution tokens understood as "best at or below this height"
var ResolutionQualities = []Quality{"2160p", "1440p", "1080p", "720p", "480p", "360p"}

// Audio extraction defaults for QualityAudioOnly
const (
	DefaultAudioFormat  = "mp3"
	DefaultAudioQuality = "192"
)

// String returns the raw selector
func (q Quality) String() string {
	return string(q)
}

// IsAudioOnly reports whether the selector requests audio extraction
func (q Quality) IsAudioOnly() bool {
	return q == QualityAudioOnly
}

// Height returns the height limit for resolution tokens
func (q Quality) Height() (int, bool) {
	for _, r := range ResolutionQualities {
		if q == r {
			h, err := strconv.Atoi(strings.TrimSuffix(string(r), "p"))
			return h, err == nil
		}
	}
	return 0, false
}

// FormatSelector returns the -f value for this quality
func (q Quality) FormatSelector() string {
	switch {
	case q == "" || q == QualityBest:
		return "best"
	case q.IsAudioOnly():
		return "bestaudio/best"
	}
	if h, ok := q.Height(); ok {
		return fmt.Sprintf("best[height<=%d]/best", h)
	}
	return string(q)
}

// QualityOptions returns the preset tokens offered to users
func QualityOptions() []Quality {
	opts := []Quality{QualityBest, QualityAudioOnly}
	return append(opts, ResolutionQualities...)
}
