package download

import (
	"context"

	"github.com/ytget/yt-queue/internal/model"
)

// Downloader is what front-ends use to drive the task engine.
type Downloader interface {
	Add(url string, quality model.Quality) (string, error)
	AddPlaylist(ctx context.Context, url string, quality model.Quality) ([]string, error)
	Start(id string) error
	Stop(id string) error
	StartAll() int
	StopAll() int

	// ClearTerminal removes finished tasks and returns how many were removed
	ClearTerminal() int

	Snapshot(id string) (model.DownloadTask, bool)
	Snapshots() []model.DownloadTask
	Wait(ctx context.Context) error
}
