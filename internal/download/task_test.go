package download

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ytget/yt-queue/internal/model"
)

func externalOptions(t *testing.T) TaskOptions {
	opts := DefaultTaskOptions(t.TempDir())
	opts.YTDLPPath = fakeExecutable(t)
	return opts
}

func TestGenerateTaskID(t *testing.T) {
	id := generateTaskID()

	if !strings.HasPrefix(id, TaskIDPrefix) {
		t.Errorf("Expected ID to start with %q, got %q", TaskIDPrefix, id)
	}
	if len(id) != len(TaskIDPrefix)+36 {
		t.Errorf("Expected UUID after prefix, got %q", id)
	}
	if other := generateTaskID(); other == id {
		t.Errorf("Expected unique IDs, got %q twice", id)
	}
}

func TestTask_ExternalProgressAndCompletion(t *testing.T) {
	sink := newRecordingSink()
	runner := &fakeRunner{script: linesScript(0,
		"[youtube] abc: Downloading webpage",
		"[download]  10.0% of 50.00MiB at 1.20MiB/s ETA 00:40",
		"[download] 100% of 50.00MiB",
	)}
	task := newTask("t1", "http://example/video", "720p", externalOptions(t), sink, taskDeps{runner: runner})

	if !task.Start(context.Background()) {
		t.Fatal("Expected first Start to launch the task")
	}
	waitDone(t, task)

	progress := sink.byKind("progress", "t1")
	if len(progress) != 2 {
		t.Fatalf("Expected 2 progress events, got %d: %+v", len(progress), progress)
	}
	if progress[0].percent != 10 || int64(progress[0].speed) != 1258291 || progress[0].eta != "00:40" {
		t.Errorf("Unexpected first progress event %+v", progress[0])
	}
	if progress[1].percent != 100 || progress[1].speed != 0 || progress[1].eta != "" {
		t.Errorf("Unexpected second progress event %+v", progress[1])
	}

	finished := sink.byKind("finished", "t1")
	if len(finished) != 1 || !finished[0].success || finished[0].message != DoneMessage {
		t.Errorf("Expected one successful finish, got %+v", finished)
	}

	args := strings.Join(runner.lastArgs(), " ")
	if !strings.Contains(args, "-f best[height<=720]/best") {
		t.Errorf("Expected 720p format selector in args, got %q", args)
	}
	if !strings.HasSuffix(args, "http://example/video") {
		t.Errorf("Expected URL as last argument, got %q", args)
	}
}

func TestTask_AlreadyDownloaded(t *testing.T) {
	sink := newRecordingSink()
	runner := &fakeRunner{script: linesScript(0, "[download] clip.mp4 has already been downloaded")}
	task := newTask("t1", "http://example/video", model.QualityBest, externalOptions(t), sink, taskDeps{runner: runner})

	task.Start(context.Background())
	waitDone(t, task)

	progress := sink.byKind("progress", "t1")
	if len(progress) != 1 || progress[0].percent != 100 {
		t.Errorf("Expected a single 100%% event, got %+v", progress)
	}
	if finished := sink.byKind("finished", "t1"); len(finished) != 1 || !finished[0].success {
		t.Errorf("Expected success, got %+v", finished)
	}
}

func TestTask_ExternalNonZeroExit(t *testing.T) {
	sink := newRecordingSink()
	runner := &fakeRunner{script: linesScript(1, "ERROR: Unsupported URL: http://example/video")}
	task := newTask("t1", "http://example/video", model.QualityBest, externalOptions(t), sink, taskDeps{runner: runner})

	task.Start(context.Background())
	waitDone(t, task)

	finished := sink.byKind("finished", "t1")
	if len(finished) != 1 || finished[0].success {
		t.Fatalf("Expected one failed finish, got %+v", finished)
	}
	if !strings.Contains(finished[0].message, "code 1") || !strings.Contains(finished[0].message, "Unsupported URL") {
		t.Errorf("Unexpected failure message %q", finished[0].message)
	}

	found := false
	for _, ev := range sink.byKind("log", "t1") {
		if strings.HasPrefix(ev.message, ErrorLinePrefix) {
			found = true
		}
	}
	if !found {
		t.Error("Expected error line to be logged with prefix")
	}
}

func TestTask_MissingExecutableFails(t *testing.T) {
	sink := newRecordingSink()
	opts := DefaultTaskOptions(t.TempDir())
	opts.YTDLPPath = "/definitely/not/yt-dlp"
	runner := &fakeRunner{script: linesScript(0)}
	task := newTask("t1", "http://example/video", model.QualityBest, opts, sink, taskDeps{runner: runner, fetcher: &fakeFetcher{}})

	task.Start(context.Background())
	waitDone(t, task)

	if runner.callCount() != 0 {
		t.Error("Runner should not be invoked for a missing executable")
	}
	finished := sink.byKind("finished", "t1")
	if len(finished) != 1 || finished[0].success {
		t.Errorf("Expected configuration failure, got %+v", finished)
	}
}

func TestTask_ProgressLogThrottle(t *testing.T) {
	sink := newRecordingSink()
	runner := &fakeRunner{script: linesScript(0,
		"[download]   1.0% of 10.00MiB",
		"[download]   2.0% of 10.00MiB",
		"[info] writing metadata",
		"[download]   3.0% of 10.00MiB",
	)}

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := 0
	now := func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks-1) * time.Second)
	}

	opts := externalOptions(t)
	opts.LogInterval = 2 * time.Second
	task := newTask("t1", "http://example/video", model.QualityBest, opts, sink, taskDeps{runner: runner, now: now})
	task.Start(context.Background())
	waitDone(t, task)

	var progressLogs, infoLogs int
	for _, ev := range sink.byKind("log", "t1") {
		switch {
		case strings.HasPrefix(ev.message, "[download]"):
			progressLogs++
		case strings.HasPrefix(ev.message, "[info]"):
			infoLogs++
		}
	}
	// progress lines at t=0s, 1s, 2s: the one at 1s is throttled
	if progressLogs != 2 {
		t.Errorf("Expected 2 progress log lines, got %d", progressLogs)
	}
	if infoLogs != 1 {
		t.Errorf("Expected non-progress lines unthrottled, got %d", infoLogs)
	}
	// three parsed lines plus the final 100% on success
	if got := len(sink.byKind("progress", "t1")); got != 4 {
		t.Errorf("Expected 4 progress events, got %d", got)
	}
}

func TestTask_CompletionLineIsNeverThrottled(t *testing.T) {
	sink := newRecordingSink()
	runner := &fakeRunner{script: linesScript(0,
		"[download]  10.0% of 50.00MiB at 1.00MiB/s ETA 00:45",
		"[download] 100% of 50.00MiB in 00:00:40",
	)}

	frozen := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	opts := externalOptions(t)
	opts.LogInterval = 2 * time.Second
	task := newTask("t1", "http://example/video", model.QualityBest, opts, sink,
		taskDeps{runner: runner, now: func() time.Time { return frozen }})
	task.Start(context.Background())
	waitDone(t, task)

	var sawTen, sawDone bool
	for _, ev := range sink.byKind("log", "t1") {
		switch ev.message {
		case "[download]  10.0% of 50.00MiB at 1.00MiB/s ETA 00:45":
			sawTen = true
		case "[download] 100% of 50.00MiB in 00:00:40":
			sawDone = true
		}
	}
	if !sawTen {
		t.Error("Expected the first progress line to be logged")
	}
	if !sawDone {
		t.Error("Expected the completion line to be logged despite the throttle")
	}

	progress := sink.byKind("progress", "t1")
	if len(progress) != 2 || progress[1].percent != 100 {
		t.Errorf("Expected 10%% then 100%% without a duplicate, got %+v", progress)
	}
}

func TestTask_StopDuringExternalRun(t *testing.T) {
	sink := newRecordingSink()
	started := make(chan struct{}, 1)
	runner := &fakeRunner{script: blockingScript(started)}
	task := newTask("t1", "http://example/video", model.QualityBest, externalOptions(t), sink, taskDeps{runner: runner})

	task.Start(context.Background())
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("runner was not started")
	}

	task.Stop()
	waitDone(t, task)

	if finished := sink.byKind("finished", "t1"); len(finished) != 0 {
		t.Errorf("Expected no finish event after stop, got %+v", finished)
	}
}

func TestTask_StopBeforeStart(t *testing.T) {
	sink := newRecordingSink()
	fetcher := &fakeFetcher{}
	task := newTask("t1", "http://example/video", model.QualityBest, DefaultTaskOptions(t.TempDir()), sink, taskDeps{fetcher: fetcher})

	task.Stop()
	task.Start(context.Background())
	waitDone(t, task)

	if len(fetcher.requests) != 0 {
		t.Error("Fetcher should not run for a stopped task")
	}
	if finished := sink.byKind("finished", "t1"); len(finished) != 0 {
		t.Errorf("Expected no finish event, got %+v", finished)
	}
}

func TestTask_StartOnlyOnce(t *testing.T) {
	fetcher := &fakeFetcher{}
	task := newTask("t1", "http://example/video", model.QualityBest, DefaultTaskOptions(t.TempDir()), nil, taskDeps{fetcher: fetcher})

	if !task.Start(context.Background()) {
		t.Fatal("Expected first Start to succeed")
	}
	if task.Start(context.Background()) {
		t.Error("Expected second Start to be a no-op")
	}
	waitDone(t, task)

	if len(fetcher.requests) != 1 {
		t.Errorf("Expected one fetch, got %d", len(fetcher.requests))
	}
}

func TestTask_LibraryMode(t *testing.T) {
	sink := newRecordingSink()
	fetcher := &fakeFetcher{
		updates: []LibraryProgress{
			{Status: LibraryStatusDownloading, DownloadedBytes: 50, TotalBytes: 100, Speed: 10, ETA: 40 * time.Second, Title: "Clip"},
			{Status: LibraryStatusDownloading, DownloadedBytes: 10, TotalBytes: 100, Speed: 5},
			{Status: LibraryStatusFinished, Filename: "/tmp/clip.mp4"},
		},
		result: &LibraryResult{Filename: "/tmp/clip.mp4", Title: "Clip"},
	}
	task := newTask("t1", "http://example/video", "1080p", DefaultTaskOptions(t.TempDir()), sink, taskDeps{fetcher: fetcher})

	task.Start(context.Background())
	waitDone(t, task)

	progress := sink.byKind("progress", "t1")
	if len(progress) != 3 {
		t.Fatalf("Expected 3 progress events, got %+v", progress)
	}
	if progress[0].percent != 50 || progress[0].eta != "00:40" {
		t.Errorf("Unexpected first progress %+v", progress[0])
	}
	if progress[1].percent != 50 {
		t.Errorf("Expected percent not to go backwards, got %+v", progress[1])
	}
	if progress[2].percent != 100 {
		t.Errorf("Expected 100%% on finished status, got %+v", progress[2])
	}

	finished := sink.byKind("finished", "t1")
	if len(finished) != 1 || !finished[0].success || finished[0].message != DoneMessage {
		t.Errorf("Expected one successful finish, got %+v", finished)
	}
	if sink.title("t1") != "Clip" {
		t.Errorf("Expected title to be reported, got %q", sink.title("t1"))
	}
	if fetcher.requests[0].Format != "best[height<=1080]/best" {
		t.Errorf("Unexpected format %q", fetcher.requests[0].Format)
	}
}

func TestTask_LibraryStopAbortsFetch(t *testing.T) {
	sink := newRecordingSink()
	updates := make([]LibraryProgress, 10)
	for i := range updates {
		updates[i] = LibraryProgress{Status: LibraryStatusDownloading, DownloadedBytes: int64(i + 1), TotalBytes: 10}
	}
	fetcher := &fakeFetcher{updates: updates}
	task := newTask("t1", "http://example/video", model.QualityBest, DefaultTaskOptions(t.TempDir()), sink, taskDeps{fetcher: fetcher})
	fetcher.hook = func(i int) {
		if i == 3 {
			task.Stop()
		}
	}

	task.Start(context.Background())
	waitDone(t, task)

	if got := len(sink.byKind("progress", "t1")); got != 3 {
		t.Errorf("Expected progress to stop at the checkpoint, got %d events", got)
	}
	if finished := sink.byKind("finished", "t1"); len(finished) != 0 {
		t.Errorf("Expected no finish event after stop, got %+v", finished)
	}
}

func TestTask_LibraryFailure(t *testing.T) {
	sink := newRecordingSink()
	fetcher := &fakeFetcher{err: errors.New("video unavailable")}
	task := newTask("t1", "http://example/video", model.QualityBest, DefaultTaskOptions(t.TempDir()), sink, taskDeps{fetcher: fetcher})

	task.Start(context.Background())
	waitDone(t, task)

	finished := sink.byKind("finished", "t1")
	if len(finished) != 1 || finished[0].success || finished[0].message != "video unavailable" {
		t.Errorf("Expected failure with cause, got %+v", finished)
	}
}

func TestTask_AudioTagging(t *testing.T) {
	tests := []struct {
		name      string
		tagErr    error
		expectLog string
	}{
		{"tagged", nil, "tagged song.mp3"},
		{"tag failure is not fatal", errors.New("locked"), "tagging failed: locked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := newRecordingSink()
			tagger := &fakeTagger{err: tt.tagErr}
			fetcher := &fakeFetcher{result: &LibraryResult{Filename: "/music/song.webm", Title: "Song", Artist: "Band"}}
			task := newTask("t1", "http://example/video", model.QualityAudioOnly, DefaultTaskOptions(t.TempDir()), sink, taskDeps{fetcher: fetcher, tagger: tagger})

			task.Start(context.Background())
			waitDone(t, task)

			if tagger.path != "/music/song.mp3" || tagger.title != "Song" || tagger.artist != "Band" {
				t.Errorf("Unexpected tag call %+v", tagger)
			}
			if !fetcher.requests[0].AudioOnly || fetcher.requests[0].AudioQuality != model.DefaultAudioQuality {
				t.Errorf("Expected audio extraction request, got %+v", fetcher.requests[0])
			}

			found := false
			for _, ev := range sink.byKind("log", "t1") {
				if ev.message == tt.expectLog {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected log %q", tt.expectLog)
			}
			if finished := sink.byKind("finished", "t1"); len(finished) != 1 || !finished[0].success {
				t.Errorf("Expected success, got %+v", finished)
			}
		})
	}
}

func TestLibraryProgress_Percent(t *testing.T) {
	tests := []struct {
		name     string
		progress LibraryProgress
		expected int
	}{
		{"exact total", LibraryProgress{DownloadedBytes: 25, TotalBytes: 100}, 25},
		{"nothing downloaded", LibraryProgress{TotalBytes: 100}, 0},
		{"no total", LibraryProgress{DownloadedBytes: 25, Speed: 100}, 0},
		{"overshoot", LibraryProgress{DownloadedBytes: 120, TotalBytes: 100}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.progress.Percent(); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestLibraryProgress_ETAString(t *testing.T) {
	tests := []struct {
		eta      time.Duration
		expected string
	}{
		{0, ""},
		{40 * time.Second, "00:40"},
		{125 * time.Second, "02:05"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}

	for _, tt := range tests {
		if got := (LibraryProgress{ETA: tt.eta}).ETAString(); got != tt.expected {
			t.Errorf("ETAString(%v) = %q, expected %q", tt.eta, got, tt.expected)
		}
	}
}
