package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ytget/yt-queue/internal/platform"
)

type sinkEvent struct {
	kind    string
	taskID  string
	percent int
	speed   float64
	eta     string
	success bool
	message string
}

// recordingSink captures every event it receives
type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
	titles map[string]string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{titles: make(map[string]string)}
}

func (s *recordingSink) OnProgress(taskID string, percent int, speed float64, eta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{kind: "progress", taskID: taskID, percent: percent, speed: speed, eta: eta})
}

func (s *recordingSink) OnFinished(taskID string, success bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{kind: "finished", taskID: taskID, success: success, message: message})
}

func (s *recordingSink) OnLog(taskID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{kind: "log", taskID: taskID, message: message})
}

func (s *recordingSink) OnTitle(taskID, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles[taskID] = title
}

func (s *recordingSink) byKind(kind, taskID string) []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sinkEvent
	for _, ev := range s.events {
		if ev.kind == kind && (taskID == "" || ev.taskID == taskID) {
			out = append(out, ev)
		}
	}
	return out
}

func (s *recordingSink) title(taskID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.titles[taskID]
}

type runScript func(ctx context.Context, args []string, onLine platform.LineFunc) (int, error)

// fakeRunner stands in for platform.ProcessRunner
type fakeRunner struct {
	mu     sync.Mutex
	calls  int
	args   [][]string
	script runScript
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string, onLine platform.LineFunc) (int, error) {
	f.mu.Lock()
	f.calls++
	f.args = append(f.args, args)
	script := f.script
	f.mu.Unlock()
	return script(ctx, args, onLine)
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRunner) lastArgs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.args) == 0 {
		return nil
	}
	return f.args[len(f.args)-1]
}

// linesScript emits lines in order and exits with code
func linesScript(code int, lines ...string) runScript {
	return func(ctx context.Context, args []string, onLine platform.LineFunc) (int, error) {
		for _, line := range lines {
			if ctx.Err() != nil {
				return -1, fmt.Errorf("cancelled: %w", ctx.Err())
			}
			onLine(line)
		}
		return code, nil
	}
}

// blockingScript signals started and then waits to be killed
func blockingScript(started chan<- struct{}) runScript {
	return func(ctx context.Context, args []string, onLine platform.LineFunc) (int, error) {
		onLine("[download]   1.0% of 10.00MiB at 1.00MiB/s ETA 00:10")
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return -1, fmt.Errorf("cancelled: %w", ctx.Err())
	}
}

// fakeFetcher stands in for the go-ytdlp library
type fakeFetcher struct {
	mu       sync.Mutex
	updates  []LibraryProgress
	result   *LibraryResult
	err      error
	hook     func(i int)
	requests []LibraryRequest
}

func (f *fakeFetcher) Fetch(ctx context.Context, req LibraryRequest, onProgress ProgressCallback) (*LibraryResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	for i, u := range f.updates {
		if f.hook != nil {
			f.hook(i)
		}
		if err := onProgress(u); err != nil {
			return nil, err
		}
	}
	return f.result, f.err
}

type fakeTagger struct {
	mu     sync.Mutex
	path   string
	title  string
	artist string
	err    error
}

func (f *fakeTagger) TagFile(path, title, artist string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.path, f.title, f.artist = path, title, artist
	return f.err
}

// fakeExecutable creates a file that passes the executable existence check
func fakeExecutable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("failed to create fake executable: %v", err)
	}
	return path
}

func waitDone(t *testing.T, task *Task) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("task did not finish in time")
	}
}

func waitRegistry(t *testing.T, r *Registry) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("registry did not settle: %v", err)
	}
}
