package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ytget/yt-queue/internal/app"
	"github.com/ytget/yt-queue/internal/config"
	"github.com/ytget/yt-queue/internal/download"
	"github.com/ytget/yt-queue/internal/platform"
	"github.com/ytget/yt-queue/internal/tui"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

// LogFileName receives engine logs while the TUI owns the terminal
const LogFileName = "yt-queue.log"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", config.DefaultPath(), "Path to settings file")
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}

	// Standard log output would corrupt the alt screen
	if f, err := os.OpenFile(LogFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
		log.SetOutput(f)
		defer f.Close()
	}
	log.Printf("yt-queue v%s starting...", version)

	sink := tui.NewSink()
	a, err := app.New(settings, sink)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()

	mode := a.Mode()
	if mode == app.ModeExternal {
		mode = fmt.Sprintf("%s (%s)", mode, settings.YTDLPPath)
	}

	runErr := tui.Run(a.Registry, sink, settings.DefaultQuality, settings.DownloadDirectory, mode)

	// The UI stops every task on quit; let the helpers be killed before exiting
	if err := shutdown(a.Registry, platform.DefaultKillWaitDelay); err != nil {
		log.Printf("Tasks still running at exit: %v", err)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		return 1
	}
	return 0
}

// shutdown stops all tasks and waits up to timeout for them to exit
func shutdown(d download.Downloader, timeout time.Duration) error {
	if n := d.StopAll(); n > 0 {
		log.Printf("Stopping %d task(s)", n)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return d.Wait(ctx)
}
