package download

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ytget/yt-queue/internal/model"
	"github.com/ytget/yt-queue/internal/platform"
)

// Runner runs a helper process and streams its output lines.
// *platform.ProcessRunner satisfies it.
type Runner interface {
	Run(ctx context.Context, name string, args []string, onLine platform.LineFunc) (int, error)
}

// yt-dlp command line flags
const (
	FlagOutput         = "-o"
	FlagFormat         = "-f"
	FlagNewline        = "--newline"
	FlagProgress       = "--progress"
	FlagNoPlaylist     = "--no-playlist"
	FlagFFmpegLocation = "--ffmpeg-location"
	FlagExtractAudio   = "--extract-audio"
	FlagAudioFormat    = "--audio-format"
	FlagAudioQuality   = "--audio-quality"

	AudioFormatSelector = "bestaudio"
	ErrorLinePrefix     = "download error: "
)

// BuildArgs returns the yt-dlp arguments for one task
func BuildArgs(url string, quality model.Quality, opts TaskOptions, ffmpegPath string) []string {
	template := opts.FilenameTemplate
	if template == "" {
		template = DefaultFilenameTemplate
	}

	args := []string{
		FlagOutput, filepath.Join(opts.OutputDir, template),
		FlagNewline,
		FlagProgress,
		FlagNoPlaylist,
	}
	if ffmpegPath != "" {
		args = append(args, FlagFFmpegLocation, ffmpegPath)
	}

	if quality.IsAudioOnly() {
		format, bitrate := audioSettings(opts)
		args = append(args,
			FlagFormat, AudioFormatSelector,
			FlagExtractAudio,
			FlagAudioFormat, format,
			FlagAudioQuality, bitrate+"K",
		)
	} else {
		args = append(args, FlagFormat, quality.FormatSelector())
	}

	return append(args, url)
}

func audioSettings(opts TaskOptions) (format, quality string) {
	format, quality = opts.AudioFormat, opts.AudioQuality
	if format == "" {
		format = model.DefaultAudioFormat
	}
	if quality == "" {
		quality = model.DefaultAudioQuality
	}
	return format, strings.TrimSuffix(quality, "K")
}

func (t *Task) runExternal(ctx context.Context) error {
	args := BuildArgs(t.url, t.quality, t.opts, t.ffmpegLocation())
	t.sink.OnLog(t.id, fmt.Sprintf("starting %s %s", filepath.Base(t.opts.YTDLPPath), strings.Join(args, " ")))

	code, err := t.deps.runner.Run(ctx, t.opts.YTDLPPath, args, t.handleLine)
	if t.Stopping() {
		return ErrStopRequested
	}
	if err != nil {
		return err
	}
	if code != 0 {
		if t.lastErrorLine != "" {
			return fmt.Errorf("yt-dlp exited with code %d: %s", code, t.lastErrorLine)
		}
		return fmt.Errorf("yt-dlp exited with code %d", code)
	}
	return nil
}

// handleLine runs on the task goroutine for every output line, in order
func (t *Task) handleLine(line string) {
	if t.Stopping() {
		return
	}
	line = strings.TrimRight(line, " \t")
	if line == "" {
		return
	}

	completion := platform.IsCompletionLine(line)

	switch {
	case platform.IsProgressLine(line):
		p := platform.ParseProgress(line)
		t.emitProgress(int(p.Percent), p.Speed, p.ETA)
		// completion markers bypass the throttle
		if completion || t.shouldLogProgress() {
			t.sink.OnLog(t.id, line)
		}
	case isErrorLine(line):
		t.lastErrorLine = line
		t.sink.OnLog(t.id, ErrorLinePrefix+line)
	default:
		t.sink.OnLog(t.id, line)
	}

	if completion && !t.completed {
		t.completed = true
		if t.lastPercent < 100 {
			t.emitProgress(100, 0, "")
		}
	}
}

func (t *Task) shouldLogProgress() bool {
	if t.opts.LogInterval <= 0 {
		return true
	}
	now := t.deps.now()
	if !t.lastProgressLog.IsZero() && now.Sub(t.lastProgressLog) < t.opts.LogInterval {
		return false
	}
	t.lastProgressLog = now
	return true
}

func isErrorLine(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "error") || strings.Contains(lower, "failed")
}
