package download

import "time"

// SystemTaskID is used for log events that do not belong to a task
const SystemTaskID = "system"

// EventSink receives task events. Implementations must be safe for
// concurrent use: every running task reports from its own goroutine.
type EventSink interface {
	OnProgress(taskID string, percent int, speed float64, eta string)
	OnFinished(taskID string, success bool, message string)
	OnLog(taskID, message string)
}

// TitleSink is optionally implemented by sinks that want the media title
// once the download mechanism learns it.
type TitleSink interface {
	OnTitle(taskID, title string)
}

// LogEvent is a single log line addressed to a task or to SystemTaskID
type LogEvent struct {
	TaskID  string
	Message string
	Time    time.Time
}

// NewLogEvent stamps a log event with the current time
func NewLogEvent(taskID, message string) LogEvent {
	return LogEvent{TaskID: taskID, Message: message, Time: time.Now()}
}

// NopSink discards every event
type NopSink struct{}

func (NopSink) OnProgress(string, int, float64, string) {}
func (NopSink) OnFinished(string, bool, string)         {}
func (NopSink) OnLog(string, string)                    {}
