// Command ytqueue downloads media URLs from the command line without the
// terminal UI. All tasks run concurrently; Ctrl+C stops them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ytget/yt-queue/internal/app"
	"github.com/ytget/yt-queue/internal/config"
	"github.com/ytget/yt-queue/internal/download"
	"github.com/ytget/yt-queue/internal/journal"
	"github.com/ytget/yt-queue/internal/model"
	"github.com/ytget/yt-queue/internal/platform"
)

var version = "dev"

// Exit codes
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// ProgressStep is the percent granularity of progress lines
const ProgressStep = 10

var (
	urlsFlag    = flag.String("url", "", "URL(s) to download, separated by spaces or commas")
	qualityFlag = flag.String("quality", "", "Quality: best, 1080p, 720p, 480p, 360p, audio-only")
	outputFlag  = flag.String("output", "", "Output directory")
	ytdlpFlag   = flag.String("ytdlp", "", "Path to yt-dlp executable (enables external mode)")
	ffmpegFlag  = flag.String("ffmpeg", "", "Path to ffmpeg executable")
	configFlag  = flag.String("config", "", "Path to settings file")
	journalFlag = flag.String("journal", "", "Path to SQLite event journal")
	historyFlag = flag.String("history", "", "Print journaled events of a task and exit")
	checkFlag   = flag.Bool("check", false, "Check helper executables and exit")
	versionFlag = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("ytqueue v%s\n", version)
		return
	}

	settings, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(ExitFailure)
	}

	if *checkFlag {
		os.Exit(check(settings))
	}

	if *historyFlag != "" {
		os.Exit(history(settings, *historyFlag))
	}

	urls := parseURLs(*urlsFlag, flag.Args())
	if len(urls) == 0 {
		fmt.Println("ytqueue - media download queue")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  ytqueue -url <URL> [options]")
		fmt.Println("  ytqueue [options] <URL>...")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(ExitFailure)
	}

	os.Exit(run(settings, urls))
}

func loadSettings() (*config.Settings, error) {
	path := *configFlag
	if path == "" {
		path = config.DefaultPath()
	}
	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if *qualityFlag != "" {
		settings.DefaultQuality = model.Quality(*qualityFlag)
	}
	if *outputFlag != "" {
		settings.DownloadDirectory = *outputFlag
	}
	if *ytdlpFlag != "" {
		settings.YTDLPPath = *ytdlpFlag
	}
	if *ffmpegFlag != "" {
		settings.FFmpegPath = *ffmpegFlag
	}
	if *journalFlag != "" {
		settings.JournalPath = *journalFlag
	}
	return settings, nil
}

// parseURLs splits the -url value and positional arguments into URLs
func parseURLs(value string, args []string) []string {
	split := func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' }
	urls := strings.FieldsFunc(value, split)
	for _, arg := range args {
		urls = append(urls, strings.FieldsFunc(arg, split)...)
	}
	return urls
}

func check(settings *config.Settings) int {
	ctx := context.Background()
	code := ExitOK

	if settings.YTDLPPath == "" {
		fmt.Println("yt-dlp: library mode (no executable configured)")
	} else if v, err := platform.ProbeExecutable(ctx, settings.YTDLPPath, platform.YTDLPVersionFlag); err != nil {
		fmt.Printf("yt-dlp: %v\n", err)
		code = ExitFailure
	} else {
		fmt.Printf("yt-dlp: %s (%s)\n", v, settings.YTDLPPath)
	}

	if settings.FFmpegPath == "" {
		fmt.Println("ffmpeg: not configured")
	} else if v, err := platform.ProbeExecutable(ctx, settings.FFmpegPath, platform.FFmpegVersionFlag); err != nil {
		fmt.Printf("ffmpeg: %v\n", err)
		code = ExitFailure
	} else {
		fmt.Printf("ffmpeg: %s\n", v)
	}

	return code
}

func history(settings *config.Settings, taskID string) int {
	if settings.JournalPath == "" {
		fmt.Fprintln(os.Stderr, "Error: no journal configured, use -journal")
		return ExitFailure
	}
	j, err := journal.Open(settings.JournalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitFailure
	}
	defer j.Close()

	events, err := j.Events(taskID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitFailure
	}
	for _, ev := range events {
		fmt.Printf("%s %-8s %s\n", ev.Time.Format("2006-01-02 15:04:05"), ev.Kind, ev.Message)
	}
	return ExitOK
}

func run(settings *config.Settings, urls []string) int {
	a, err := app.New(settings, newLogSink())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitFailure
	}
	defer a.Close()

	log.Printf("ytqueue v%s, mode: %s, output: %s", version, a.Mode(), settings.DownloadDirectory)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, url := range urls {
		if platform.IsPlaylistURL(url) {
			if _, err := a.Registry.AddPlaylist(ctx, url, settings.DefaultQuality); err != nil {
				log.Printf("Failed to expand playlist %s: %v", url, err)
			}
			continue
		}
		if _, err := a.Registry.Add(url, settings.DefaultQuality); err != nil {
			log.Printf("Failed to add %s: %v", url, err)
		}
	}
	log.Printf("Starting %d task(s)", a.Registry.StartAll())

	interrupted := false
	done := make(chan struct{})

	var g errgroup.Group
	g.Go(func() error {
		defer close(done)
		return a.Registry.Wait(context.Background())
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			interrupted = true
			log.Printf("Interrupted, stopping %d task(s)", a.Registry.StopAll())
		case <-done:
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Printf("Wait failed: %v", err)
	}

	return summarize(a.Registry.Snapshots(), interrupted)
}

func summarize(tasks []model.DownloadTask, interrupted bool) int {
	counts := make(map[model.TaskStatus]int)
	for _, t := range tasks {
		counts[t.Status]++
	}
	log.Printf("Finished: %d completed, %d failed, %d stopped",
		counts[model.TaskStatusCompleted], counts[model.TaskStatusError], counts[model.TaskStatusStopped])

	switch {
	case interrupted:
		return ExitInterrupted
	case counts[model.TaskStatusError] > 0 || len(tasks) == 0:
		return ExitFailure
	default:
		return ExitOK
	}
}

// logSink prints task events through the standard logger. Progress is
// reduced to one line per ProgressStep percent.
type logSink struct {
	mu   sync.Mutex
	last map[string]int
}

func newLogSink() *logSink {
	return &logSink{last: make(map[string]int)}
}

func (s *logSink) OnProgress(taskID string, percent int, speed float64, eta string) {
	step := percent / ProgressStep * ProgressStep
	s.mu.Lock()
	prev, seen := s.last[taskID]
	if seen && step <= prev {
		s.mu.Unlock()
		return
	}
	s.last[taskID] = step
	s.mu.Unlock()

	log.Printf("[%s] %3d%% %s", taskID, percent, model.ProgressStatusText(speed, eta))
}

func (s *logSink) OnFinished(taskID string, success bool, message string) {
	s.mu.Lock()
	delete(s.last, taskID)
	s.mu.Unlock()

	if success {
		log.Printf("[%s] finished: %s", taskID, message)
		return
	}
	log.Printf("[%s] failed: %s", taskID, message)
}

func (s *logSink) OnLog(taskID, message string) {
	log.Printf("[%s] %s", taskID, message)
}

func (s *logSink) OnTitle(taskID, title string) {
	log.Printf("[%s] title: %s", taskID, title)
}

var (
	_ download.EventSink = (*logSink)(nil)
	_ download.TitleSink = (*logSink)(nil)
)
