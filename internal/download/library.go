package download

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ytget/yt-queue/internal/model"
)

// Library progress statuses
const (
	LibraryStatusDownloading = "downloading"
	LibraryStatusFinished    = "finished"
	LibraryStatusError       = "error"
)

// LibraryRequest describes one in-process download
type LibraryRequest struct {
	URL              string
	OutputDir        string
	FilenameTemplate string
	Format           string
	AudioOnly        bool
	AudioFormat      string
	AudioQuality     string
	FFmpegPath       string
	ProgressInterval time.Duration
}

// LibraryProgress is one structured progress callback
type LibraryProgress struct {
	Status          string
	DownloadedBytes int64
	TotalBytes      int64   // estimate when the exact size is unknown
	Speed           float64 // bytes per second
	ETA             time.Duration
	Filename        string
	Title           string
}

// LibraryResult describes what was downloaded
type LibraryResult struct {
	Filename string
	Title    string
	Artist   string
}

// ProgressCallback receives library progress. Returning an error aborts
// the download and the error is returned from Fetch.
type ProgressCallback func(LibraryProgress) error

// Fetcher is the embedded download mechanism used in library mode
type Fetcher interface {
	Fetch(ctx context.Context, req LibraryRequest, onProgress ProgressCallback) (*LibraryResult, error)
}

// Percent computes progress from downloaded and total bytes
func (p LibraryProgress) Percent() int {
	total := p.TotalBytes
	if total <= 0 || p.DownloadedBytes <= 0 {
		return 0
	}
	percent := int(float64(p.DownloadedBytes) / float64(total) * 100)
	if percent > 100 {
		return 100
	}
	return percent
}

// ETAString renders the remaining time as MM:SS or H:MM:SS
func (p LibraryProgress) ETAString() string {
	if p.ETA <= 0 {
		return ""
	}
	secs := int(p.ETA.Round(time.Second).Seconds())
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func (t *Task) libraryRequest() LibraryRequest {
	template := t.opts.FilenameTemplate
	if template == "" {
		template = DefaultFilenameTemplate
	}
	format, quality := audioSettings(t.opts)
	return LibraryRequest{
		URL:              t.url,
		OutputDir:        t.opts.OutputDir,
		FilenameTemplate: template,
		Format:           t.quality.FormatSelector(),
		AudioOnly:        t.quality.IsAudioOnly(),
		AudioFormat:      format,
		AudioQuality:     quality,
		FFmpegPath:       t.ffmpegLocation(),
		ProgressInterval: t.opts.LibraryProgressInterval,
	}
}

func (t *Task) runLibrary(ctx context.Context) error {
	req := t.libraryRequest()
	t.sink.OnLog(t.id, "starting library download: "+t.url)

	titleSent := false
	result, err := t.deps.fetcher.Fetch(ctx, req, func(p LibraryProgress) error {
		if t.Stopping() {
			return ErrStopRequested
		}
		if !titleSent && p.Title != "" {
			titleSent = true
			t.emitTitle(p.Title)
		}
		switch p.Status {
		case LibraryStatusFinished:
			t.emitProgress(100, 0, "")
			t.sink.OnLog(t.id, "finished downloading "+filepath.Base(p.Filename))
		case LibraryStatusError:
			t.sink.OnLog(t.id, ErrorLinePrefix+p.Filename)
		default:
			t.emitProgress(max(t.lastPercent, p.Percent()), p.Speed, p.ETAString())
		}
		return nil
	})
	if t.Stopping() || errors.Is(err, ErrStopRequested) {
		return ErrStopRequested
	}
	if err != nil {
		return err
	}

	if result != nil {
		if !titleSent {
			t.emitTitle(result.Title)
		}
		if req.AudioOnly {
			t.tagAudio(result, req.AudioFormat)
		}
	}
	return nil
}

// tagAudio writes ID3 tags into the extracted file. Failures are logged only.
func (t *Task) tagAudio(result *LibraryResult, audioFormat string) {
	if !t.opts.TagAudio || t.deps.tagger == nil || result.Filename == "" {
		return
	}
	if !strings.EqualFold(audioFormat, model.DefaultAudioFormat) {
		return
	}
	path := strings.TrimSuffix(result.Filename, filepath.Ext(result.Filename)) + "." + audioFormat
	if err := t.deps.tagger.TagFile(path, result.Title, result.Artist); err != nil {
		t.sink.OnLog(t.id, "tagging failed: "+err.Error())
		return
	}
	t.sink.OnLog(t.id, "tagged "+filepath.Base(path))
}
