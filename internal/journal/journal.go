// Package journal keeps a SQLite history of task log and finish events.
package journal

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ytget/yt-queue/internal/download"

	_ "modernc.org/sqlite"
)

// Event kinds
const (
	KindLog      = "log"
	KindFinished = "finished"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id    TEXT    NOT NULL,
	kind       TEXT    NOT NULL,
	message    TEXT    NOT NULL,
	success    INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_task ON events(task_id, id);
`

// Event is one stored row
type Event struct {
	ID      int64
	TaskID  string
	Kind    string
	Message string
	Success bool
	Time    time.Time
}

// Journal is an append-only event store
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the journal database at path
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA busy_timeout = 5000;
		PRAGMA journal_mode = WAL;
	`); err != nil {
		log.Printf("Journal pragmas not applied: %v", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	return &Journal{db: db, now: time.Now}, nil
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append stores one event
func (j *Journal) Append(taskID, kind, message string, success bool) error {
	_, err := j.db.Exec(
		`INSERT INTO events (task_id, kind, message, success, created_at) VALUES (?, ?, ?, ?, ?)`,
		taskID, kind, message, success, j.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Events returns the events of one task in the order they were recorded
func (j *Journal) Events(taskID string) ([]Event, error) {
	rows, err := j.db.Query(
		`SELECT id, task_id, kind, message, success, created_at FROM events WHERE task_id = ? ORDER BY id`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev      Event
			created int64
		)
		if err := rows.Scan(&ev.ID, &ev.TaskID, &ev.Kind, &ev.Message, &ev.Success, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Time = time.Unix(0, created)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Sink wraps next so that log and finish events are recorded before being
// forwarded. Progress events are forwarded only.
func (j *Journal) Sink(next download.EventSink) download.EventSink {
	if next == nil {
		next = download.NopSink{}
	}
	return &recorder{journal: j, next: next}
}

type recorder struct {
	journal *Journal
	next    download.EventSink
}

func (r *recorder) OnProgress(taskID string, percent int, speed float64, eta string) {
	r.next.OnProgress(taskID, percent, speed, eta)
}

func (r *recorder) OnFinished(taskID string, success bool, message string) {
	if err := r.journal.Append(taskID, KindFinished, message, success); err != nil {
		log.Printf("Journal write failed for task %s: %v", taskID, err)
	}
	r.next.OnFinished(taskID, success, message)
}

func (r *recorder) OnLog(taskID, message string) {
	if err := r.journal.Append(taskID, KindLog, message, false); err != nil {
		log.Printf("Journal write failed for task %s: %v", taskID, err)
	}
	r.next.OnLog(taskID, message)
}

func (r *recorder) OnTitle(taskID, title string) {
	if ts, ok := r.next.(download.TitleSink); ok {
		ts.OnTitle(taskID, title)
	}
}
