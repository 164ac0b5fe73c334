package download

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ytget/yt-queue/internal/model"
	"github.com/ytget/yt-queue/internal/platform"
)

// Task defaults
const (
	DefaultFilenameTemplate        = "%(title)s.%(ext)s"
	DefaultProgressLogInterval     = 2 * time.Second
	DefaultLibraryProgressInterval = 500 * time.Millisecond
	TaskIDPrefix                   = "task-"
	DoneMessage                    = "done"
)

// Errors reported by tasks and the registry
var (
	ErrNotFound      = errors.New("task not found")
	ErrEmptyURL      = errors.New("empty URL")
	ErrStopRequested = errors.New("stop requested")
	ErrNotPlaylist   = errors.New("not a playlist URL")

	errNoRunner  = errors.New("no process runner configured")
	errNoFetcher = errors.New("no download library configured")
)

// TaskOptions holds the per-task download configuration
type TaskOptions struct {
	OutputDir        string
	FilenameTemplate string
	YTDLPPath        string // external executable; empty selects library mode
	FFmpegPath       string
	AudioFormat      string
	AudioQuality     string
	TagAudio         bool

	// LogInterval throttles forwarding of progress lines to the log
	LogInterval time.Duration
	// LibraryProgressInterval is how often the library reports progress
	LibraryProgressInterval time.Duration
}

// DefaultTaskOptions returns options for library mode into dir
func DefaultTaskOptions(dir string) TaskOptions {
	return TaskOptions{
		OutputDir:               dir,
		FilenameTemplate:        DefaultFilenameTemplate,
		AudioFormat:             model.DefaultAudioFormat,
		AudioQuality:            model.DefaultAudioQuality,
		TagAudio:                true,
		LogInterval:             DefaultProgressLogInterval,
		LibraryProgressInterval: DefaultLibraryProgressInterval,
	}
}

// Tagger writes media metadata into a finished audio file
type Tagger interface {
	TagFile(path, title, artist string) error
}

// taskDeps are the collaborators a task runs against
type taskDeps struct {
	runner  Runner
	fetcher Fetcher
	tagger  Tagger
	now     func() time.Time
}

// Task is one download executing in its own goroutine. Stop is advisory:
// the goroutine observes it at the next output line or progress callback,
// and the helper process (if any) is killed through context cancellation.
type Task struct {
	id      string
	url     string
	quality model.Quality
	opts    TaskOptions
	sink    EventSink
	deps    taskDeps

	stopRequested atomic.Bool
	startOnce     sync.Once

	mu     sync.Mutex
	cancel context.CancelFunc

	done chan struct{}

	// execution-goroutine state
	lastPercent     int
	completed       bool
	lastProgressLog time.Time
	lastErrorLine   string
}

func newTask(id, url string, quality model.Quality, opts TaskOptions, sink EventSink, deps taskDeps) *Task {
	if sink == nil {
		sink = NopSink{}
	}
	if deps.now == nil {
		deps.now = time.Now
	}
	return &Task{
		id:      id,
		url:     url,
		quality: quality,
		opts:    opts,
		sink:    sink,
		deps:    deps,
		done:    make(chan struct{}),
	}
}

// ID returns the task identifier
func (t *Task) ID() string {
	return t.id
}

// Start launches the execution goroutine. Only the first call has any effect.
func (t *Task) Start(ctx context.Context) bool {
	started := false
	t.startOnce.Do(func() {
		started = true
		runCtx, cancel := context.WithCancel(ctx)
		t.mu.Lock()
		t.cancel = cancel
		t.mu.Unlock()
		go t.run(runCtx, cancel)
	})
	return started
}

// Stop requests cooperative cancellation
func (t *Task) Stop() {
	t.stopRequested.Store(true)
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Stopping reports whether Stop has been called
func (t *Task) Stopping() bool {
	return t.stopRequested.Load()
}

// Done is closed when the execution goroutine has exited
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) run(ctx context.Context, cancel context.CancelFunc) {
	defer close(t.done)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("internal error: %v", r)
			t.sink.OnLog(t.id, msg)
			t.sink.OnFinished(t.id, false, msg)
		}
	}()

	if t.Stopping() {
		return
	}

	err := t.execute(ctx)
	if t.Stopping() || errors.Is(err, ErrStopRequested) {
		t.sink.OnLog(t.id, "download stopped")
		return
	}
	if err != nil {
		t.sink.OnLog(t.id, "download failed: "+err.Error())
		t.sink.OnFinished(t.id, false, err.Error())
		return
	}

	if t.lastPercent < 100 {
		t.emitProgress(100, 0, "")
	}
	t.sink.OnLog(t.id, "download finished")
	t.sink.OnFinished(t.id, true, DoneMessage)
}

// execute picks the strategy: an explicitly configured executable must
// exist, otherwise the task fails; no executable means library mode.
func (t *Task) execute(ctx context.Context) error {
	if strings.TrimSpace(t.opts.YTDLPPath) != "" {
		if err := platform.CheckExecutable(t.opts.YTDLPPath); err != nil {
			t.sink.OnLog(t.id, "configuration error: "+err.Error())
			return err
		}
		if t.deps.runner == nil {
			return errNoRunner
		}
		return t.runExternal(ctx)
	}
	if t.deps.fetcher == nil {
		return errNoFetcher
	}
	return t.runLibrary(ctx)
}

// ffmpegLocation returns the configured ffmpeg path if it exists
func (t *Task) ffmpegLocation() string {
	path := strings.TrimSpace(t.opts.FFmpegPath)
	if path == "" {
		return ""
	}
	if err := platform.CheckExecutable(path); err != nil {
		t.sink.OnLog(t.id, "ffmpeg ignored: "+err.Error())
		return ""
	}
	t.sink.OnLog(t.id, "using ffmpeg at "+path)
	return path
}

func (t *Task) emitProgress(percent int, speed float64, eta string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	t.lastPercent = percent
	t.sink.OnProgress(t.id, percent, speed, eta)
}

func (t *Task) emitTitle(title string) {
	if title == "" {
		return
	}
	if ts, ok := t.sink.(TitleSink); ok {
		ts.OnTitle(t.id, title)
	}
}

// generateTaskID generates a unique, time-ordered task ID
func generateTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf(TaskIDPrefix+"%d", time.Now().UnixNano())
	}
	return TaskIDPrefix + id.String()
}
