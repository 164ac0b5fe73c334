package download

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ytget/yt-queue/internal/model"
)

// PlaylistExpander turns a playlist URL into its entries.
// *platform.YTDLPParserService satisfies it.
type PlaylistExpander interface {
	IsPlaylistURL(url string) bool
	ParsePlaylist(ctx context.Context, url string) (*model.Playlist, error)
}

// entry pairs a task's state snapshot with its execution handle
type entry struct {
	snapshot model.DownloadTask
	task     *Task // nil until started
}

// Registry owns every task. One mutex guards entries and order; events from
// running tasks update snapshots under it and are forwarded to the observer
// after it is released.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string

	opts     TaskOptions
	observer EventSink
	deps     taskDeps
	expander PlaylistExpander

	wg sync.WaitGroup
}

var _ EventSink = (*Registry)(nil)
var _ Downloader = (*Registry)(nil)

// NewRegistry creates a registry whose tasks download with opts and whose
// events are forwarded to observer (may be nil).
func NewRegistry(opts TaskOptions, observer EventSink) *Registry {
	if observer == nil {
		observer = NopSink{}
	}
	return &Registry{
		entries:  make(map[string]*entry),
		opts:     opts,
		observer: observer,
		deps:     taskDeps{now: time.Now},
	}
}

// SetRunner sets the process runner used in external-process mode
func (r *Registry) SetRunner(runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deps.runner = runner
}

// SetFetcher sets the library used in library mode
func (r *Registry) SetFetcher(fetcher Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deps.fetcher = fetcher
}

// SetTagger sets the audio tagger applied to audio-only results
func (r *Registry) SetTagger(tagger Tagger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deps.tagger = tagger
}

// SetPlaylistExpander sets the playlist expander used by AddPlaylist
func (r *Registry) SetPlaylistExpander(expander PlaylistExpander) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expander = expander
}

// SetOptions replaces the options used by tasks started from now on
func (r *Registry) SetOptions(opts TaskOptions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts = opts
}

// Add creates a Pending task. It does not start it.
func (r *Registry) Add(url string, quality model.Quality) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", ErrEmptyURL
	}
	if quality == "" {
		quality = model.QualityBest
	}

	id := generateTaskID()
	r.mu.Lock()
	r.entries[id] = &entry{snapshot: model.DownloadTask{
		ID:         id,
		URL:        url,
		Quality:    quality,
		Status:     model.TaskStatusPending,
		StatusText: model.TaskStatusPending.String(),
		CreatedAt:  time.Now(),
	}}
	r.order = append(r.order, id)
	r.mu.Unlock()

	r.observer.OnLog(id, fmt.Sprintf("queued %s (%s)", url, quality))
	return id, nil
}

// AddPlaylist expands a playlist URL and adds one Pending task per entry
func (r *Registry) AddPlaylist(ctx context.Context, url string, quality model.Quality) ([]string, error) {
	r.mu.Lock()
	expander := r.expander
	r.mu.Unlock()
	if expander == nil {
		return nil, fmt.Errorf("playlist support not configured")
	}
	if !expander.IsPlaylistURL(url) {
		return nil, fmt.Errorf("%w: %s", ErrNotPlaylist, url)
	}

	playlist, err := expander.ParsePlaylist(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to expand playlist: %w", err)
	}

	ids := make([]string, 0, playlist.Len())
	for _, e := range playlist.Entries {
		id, err := r.Add(e.URL, quality)
		if err != nil {
			continue
		}
		if e.Title != "" {
			r.OnTitle(id, e.Title)
		}
		ids = append(ids, id)
	}

	r.observer.OnLog(SystemTaskID, fmt.Sprintf("playlist %s: %d task(s) queued", playlist.Title, len(ids)))
	return ids, nil
}

// Start launches a Pending task. Any other state is a no-op.
func (r *Registry) Start(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.snapshot.Status != model.TaskStatusPending {
		r.mu.Unlock()
		return nil
	}

	e.snapshot.Status = model.TaskStatusDownloading
	e.snapshot.StatusText = model.TaskStatusDownloading.String()
	e.snapshot.StartedAt = time.Now()
	task := newTask(id, e.snapshot.URL, e.snapshot.Quality, r.opts, r, r.deps)
	e.task = task
	r.wg.Add(1)
	r.mu.Unlock()

	task.Start(context.Background())
	go func() {
		<-task.Done()
		r.wg.Done()
	}()
	return nil
}

// Stop requests a task to stop. A Pending task becomes Stopped at once;
// finished tasks are left alone.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.snapshot.Status.IsFinished() {
		r.mu.Unlock()
		return nil
	}

	e.snapshot.Status = model.TaskStatusStopped
	e.snapshot.StatusText = model.TaskStatusStopped.String()
	e.snapshot.Speed = 0
	e.snapshot.ETA = ""
	e.snapshot.FinishedAt = time.Now()
	if e.task != nil {
		e.task.Stop()
	}
	r.mu.Unlock()

	r.observer.OnLog(id, "stop requested")
	return nil
}

// StartAll starts every task that is Pending now and returns how many
func (r *Registry) StartAll() int {
	ids := r.idsWithStatus(model.TaskStatusPending)
	started := 0
	for _, id := range ids {
		if r.Start(id) == nil {
			started++
		}
	}
	return started
}

// StopAll stops every task that is Downloading now and returns how many
func (r *Registry) StopAll() int {
	ids := r.idsWithStatus(model.TaskStatusDownloading)
	stopped := 0
	for _, id := range ids {
		if r.Stop(id) == nil {
			stopped++
		}
	}
	return stopped
}

// ClearTerminal removes Completed, Error and Stopped tasks and returns the count
func (r *Registry) ClearTerminal() int {
	r.mu.Lock()
	kept := r.order[:0]
	removed := 0
	for _, id := range r.order {
		e := r.entries[id]
		if !e.snapshot.Status.IsFinished() {
			kept = append(kept, id)
			continue
		}
		if e.task != nil {
			e.task.Stop()
			e.task = nil
		}
		delete(r.entries, id)
		removed++
	}
	clear(r.order[len(kept):])
	r.order = kept
	r.mu.Unlock()

	if removed == 0 {
		r.observer.OnLog(SystemTaskID, "nothing to clear")
	} else {
		r.observer.OnLog(SystemTaskID, fmt.Sprintf("cleared %d finished task(s)", removed))
	}
	return removed
}

// Snapshot returns a copy of one task's state
func (r *Registry) Snapshot(id string) (model.DownloadTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return model.DownloadTask{}, false
	}
	return e.snapshot, true
}

// Snapshots returns copies of all tasks in insertion order
func (r *Registry) Snapshots() []model.DownloadTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.DownloadTask, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].snapshot)
	}
	return out
}

// Wait blocks until every started task goroutine has exited or ctx is done
func (r *Registry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) idsWithStatus(status model.TaskStatus) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, id := range r.order {
		if r.entries[id].snapshot.Status == status {
			ids = append(ids, id)
		}
	}
	return ids
}

// OnProgress records progress for a Downloading task. Percent never goes
// backwards; events for tasks that are no longer Downloading are dropped.
func (r *Registry) OnProgress(taskID string, percent int, speed float64, eta string) {
	r.mu.Lock()
	e, ok := r.entries[taskID]
	if !ok || e.snapshot.Status != model.TaskStatusDownloading {
		r.mu.Unlock()
		return
	}
	e.snapshot.Percent = max(e.snapshot.Percent, min(max(percent, 0), 100))
	e.snapshot.Speed = max(speed, 0)
	e.snapshot.ETA = eta
	e.snapshot.StatusText = model.ProgressStatusText(e.snapshot.Speed, eta)
	percent, speed = e.snapshot.Percent, e.snapshot.Speed
	r.mu.Unlock()

	r.observer.OnProgress(taskID, percent, speed, eta)
}

// OnFinished moves a Downloading task to its terminal state exactly once
func (r *Registry) OnFinished(taskID string, success bool, message string) {
	next := model.TaskStatusError
	if success {
		next = model.TaskStatusCompleted
	}

	r.mu.Lock()
	e, ok := r.entries[taskID]
	if !ok || !e.snapshot.Status.CanTransitionTo(next) {
		r.mu.Unlock()
		return
	}

	e.snapshot.Status = next
	e.snapshot.Speed = 0
	e.snapshot.ETA = ""
	e.snapshot.FinishedAt = time.Now()
	if success {
		e.snapshot.Percent = 100
		e.snapshot.StatusText = next.String()
	} else {
		e.snapshot.LastError = message
		e.snapshot.StatusText = "Error: " + message
	}
	r.mu.Unlock()

	r.observer.OnFinished(taskID, success, message)
}

// OnLog forwards log events unchanged
func (r *Registry) OnLog(taskID, message string) {
	r.observer.OnLog(taskID, message)
}

// OnTitle records the media title for display
func (r *Registry) OnTitle(taskID, title string) {
	r.mu.Lock()
	if e, ok := r.entries[taskID]; ok {
		e.snapshot.Title = title
	}
	r.mu.Unlock()

	if ts, ok := r.observer.(TitleSink); ok {
		ts.OnTitle(taskID, title)
	}
}
