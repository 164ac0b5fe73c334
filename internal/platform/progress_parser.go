package platform

import (
	"regexp"
	"strconv"
	"strings"
)

// Progress is the normalized form of one helper output line.
// A zero value means the line carried no progress information.
type Progress struct {
	Percent float64 // 0 to 100
	Speed   float64 // bytes per second
	ETA     string  // empty if absent
}

// Line markers used by yt-dlp output
const (
	DownloadMarker          = "[download]"
	AlreadyDownloadedMarker = "already downloaded"
	AlreadyHaveMarker       = "has already been downloaded"
	CompleteMarker          = "100%"
)

var (
	percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

	// number, optional space, optional K/M/G, optional i, B/s
	ratePattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*([kmg]?)i?b/s`)

	// downloaded/total, e.g. 45.7MiB/100.0MiB
	sizeRangePattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*([kmg]?)i?b\s*/\s*(\d+(?:\.\d+)?)\s*([kmg]?)i?b`)

	etaMarkedPattern = regexp.MustCompile(`\b(?:ETA|in)\s+(\d+:\d+(?::\d+)?)`)
	etaBarePattern   = regexp.MustCompile(`\d+:\d+(?::\d+)?`)
)

// ParseProgress extracts percent, rate and ETA from a single output line.
// It is stateless and never fails: unknown input yields the zero Progress.
func ParseProgress(line string) (p Progress) {
	defer func() {
		if recover() != nil {
			p = Progress{}
		}
	}()

	hasPercent := false
	if m := percentPattern.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.Percent = v
			hasPercent = true
		}
	}

	if m := ratePattern.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.Speed = v * unitMultiplier(m[2])
		}
	}

	p.ETA = parseETA(line)

	if !hasPercent {
		if m := sizeRangePattern.FindStringSubmatch(line); m != nil {
			done, errDone := strconv.ParseFloat(m[1], 64)
			total, errTotal := strconv.ParseFloat(m[3], 64)
			if errDone == nil && errTotal == nil {
				doneBytes := done * unitMultiplier(m[2])
				totalBytes := total * unitMultiplier(m[4])
				if totalBytes > 0 {
					p.Percent = doneBytes / totalBytes * 100
				}
			}
		}
	}

	p.Percent = clampPercent(p.Percent)
	return p
}

// IsProgressLine reports whether a line is a periodic yt-dlp progress report
func IsProgressLine(line string) bool {
	if !strings.Contains(line, DownloadMarker) {
		return false
	}
	return strings.Contains(line, "%") ||
		strings.Contains(line, "ETA") ||
		sizeRangePattern.MatchString(line)
}

// IsCompletionLine reports whether a line marks the download as done
func IsCompletionLine(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(line, CompleteMarker) ||
		strings.Contains(lower, AlreadyDownloadedMarker) ||
		strings.Contains(lower, AlreadyHaveMarker)
}

func parseETA(line string) string {
	if m := etaMarkedPattern.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	if !strings.Contains(strings.ToLower(line), "download") {
		return ""
	}
	for _, loc := range etaBarePattern.FindAllStringIndex(line, -1) {
		if isDigitAt(line, loc[0]-1) || isDigitAt(line, loc[1]) {
			continue
		}
		return line[loc[0]:loc[1]]
	}
	return ""
}

func unitMultiplier(unit string) float64 {
	switch strings.ToUpper(unit) {
	case "K":
		return 1 << 10
	case "M":
		return 1 << 20
	case "G":
		return 1 << 30
	default:
		return 1
	}
}

func isDigitAt(s string, i int) bool {
	return i >= 0 && i < len(s) && s[i] >= '0' && s[i] <= '9'
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
