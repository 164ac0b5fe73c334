package download

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// YTDLPFetcher is the library-mode Fetcher built on go-ytdlp
type YTDLPFetcher struct{}

// NewYTDLPFetcher creates a new fetcher
func NewYTDLPFetcher() *YTDLPFetcher {
	return &YTDLPFetcher{}
}

// Fetch downloads req.URL. The progress callback runs on the library's
// goroutine; an error or panic from it cancels the run and is returned.
func (f *YTDLPFetcher) Fetch(ctx context.Context, req LibraryRequest, onProgress ProgressCallback) (*LibraryResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		abortMu  sync.Mutex
		abortErr error
	)

	dl := ytdlp.New().
		NoPlaylist().
		Format(req.Format).
		Output(filepath.Join(req.OutputDir, req.FilenameTemplate))

	if req.FFmpegPath != "" {
		dl = dl.FFmpegLocation(req.FFmpegPath)
	}
	if req.AudioOnly {
		dl = dl.ExtractAudio().
			AudioFormat(req.AudioFormat).
			AudioQuality(req.AudioQuality + "K")
	}

	interval := req.ProgressInterval
	if interval <= 0 {
		interval = DefaultLibraryProgressInterval
	}
	dl.ProgressFunc(interval, func(update ytdlp.ProgressUpdate) {
		if onProgress == nil {
			return
		}
		if err := deliverProgress(onProgress, convertProgress(&update)); err != nil {
			abortMu.Lock()
			if abortErr == nil {
				abortErr = err
			}
			abortMu.Unlock()
			cancel()
		}
	})

	res, err := dl.Run(ctx, req.URL)

	abortMu.Lock()
	aborted := abortErr
	abortMu.Unlock()
	if aborted != nil {
		return nil, aborted
	}
	if err != nil {
		return nil, err
	}

	return extractResult(res), nil
}

// deliverProgress calls onProgress, turning a panic into an error. The
// library's goroutine is outside the task's recover.
func deliverProgress(onProgress ProgressCallback, p LibraryProgress) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return onProgress(p)
}

func convertProgress(update *ytdlp.ProgressUpdate) LibraryProgress {
	p := LibraryProgress{
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
		ETA:             update.ETA(),
		Filename:        update.Filename,
	}

	switch update.Status {
	case ytdlp.ProgressStatusFinished:
		p.Status = LibraryStatusFinished
	case ytdlp.ProgressStatusError:
		p.Status = LibraryStatusError
	default:
		p.Status = LibraryStatusDownloading
	}

	if !update.Started.IsZero() {
		elapsed := time.Since(update.Started)
		if elapsed.Seconds() > 0 {
			p.Speed = float64(update.DownloadedBytes) / elapsed.Seconds()
		}
	}

	if update.Info != nil && update.Info.Title != nil {
		p.Title = *update.Info.Title
	}
	return p
}

func extractResult(res *ytdlp.Result) *LibraryResult {
	out := &LibraryResult{}
	if res == nil {
		return out
	}
	info, err := res.GetExtractedInfo()
	if err != nil || len(info) == 0 || info[0] == nil {
		return out
	}
	if info[0].Filename != nil {
		out.Filename = *info[0].Filename
	}
	if info[0].Title != nil {
		out.Title = *info[0].Title
	}
	if info[0].Uploader != nil {
		out.Artist = *info[0].Uploader
	}
	return out
}
