// Package app wires settings, the task registry and its collaborators
// together for the front-ends.
package app

import (
	"fmt"
	"log"

	"github.com/ytget/yt-queue/internal/audio"
	"github.com/ytget/yt-queue/internal/config"
	"github.com/ytget/yt-queue/internal/download"
	"github.com/ytget/yt-queue/internal/journal"
	"github.com/ytget/yt-queue/internal/platform"
)

// Execution mode names
const (
	ModeLibrary  = "library"
	ModeExternal = "external"
)

// App holds the running services
type App struct {
	Settings *config.Settings
	Registry *download.Registry
	Journal  *journal.Journal
}

// New builds the registry from settings. Events go to observer, through
// the journal first when one is configured.
func New(settings *config.Settings, observer download.EventSink) (*App, error) {
	if err := platform.CreateDirectoryIfNotExists(settings.DownloadDirectory); err != nil {
		return nil, fmt.Errorf("failed to ensure downloads dir: %w", err)
	}
	if err := settings.Validate(); err != nil {
		// tasks report the same problem per task; keep going
		log.Printf("Configuration warning: %v", err)
	}

	a := &App{Settings: settings}

	if settings.JournalPath != "" {
		j, err := journal.Open(settings.JournalPath)
		if err != nil {
			return nil, err
		}
		a.Journal = j
		observer = j.Sink(observer)
	}

	registry := download.NewRegistry(settings.TaskOptions(), observer)
	registry.SetRunner(platform.NewProcessRunner())
	registry.SetFetcher(download.NewYTDLPFetcher())
	registry.SetTagger(audio.NewTagger())
	registry.SetPlaylistExpander(platform.NewYTDLPParserService())
	a.Registry = registry

	return a, nil
}

// Mode describes which execution strategy new tasks will use
func (a *App) Mode() string {
	if a.Settings.YTDLPPath != "" {
		return ModeExternal
	}
	return ModeLibrary
}

// Close releases the journal, if any
func (a *App) Close() error {
	if a.Journal != nil {
		return a.Journal.Close()
	}
	return nil
}
