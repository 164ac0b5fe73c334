package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ytget/yt-queue/internal/download"
)

// SinkBuffer is the number of events held while the program is busy
const SinkBuffer = 256

// Sink delivers task events into a running Bubble Tea program. Events are
// queued in arrival order and sent from a single goroutine, so a task
// never blocks on rendering and per-task ordering is kept.
type Sink struct {
	events chan tea.Msg
	done   chan struct{}

	attachOnce sync.Once
	closeOnce  sync.Once
}

var _ download.EventSink = (*Sink)(nil)

// NewSink creates a sink. Events queue until Attach is called.
func NewSink() *Sink {
	return &Sink{
		events: make(chan tea.Msg, SinkBuffer),
		done:   make(chan struct{}),
	}
}

// Attach starts forwarding queued and future events to p
func (s *Sink) Attach(p *tea.Program) {
	s.attachOnce.Do(func() {
		go func() {
			for {
				select {
				case msg := <-s.events:
					p.Send(msg)
				case <-s.done:
					return
				}
			}
		}()
	})
}

// Close stops forwarding; later events are dropped
func (s *Sink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Sink) send(msg tea.Msg) {
	select {
	case s.events <- msg:
	case <-s.done:
	}
}

// OnProgress is a no-op: the model polls registry snapshots for progress.
func (s *Sink) OnProgress(string, int, float64, string) {}

func (s *Sink) OnFinished(taskID string, success bool, message string) {
	s.send(FinishedMsg{TaskID: taskID, Success: success, Message: message})
}

func (s *Sink) OnLog(taskID, message string) {
	s.send(LogMsg{Event: download.NewLogEvent(taskID, message)})
}
