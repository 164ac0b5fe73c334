package model

import (
	"time"
)

// PlaylistEntry is one media item discovered inside a playlist
type PlaylistEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Playlist is the result of expanding a playlist URL into entries.
// Each entry becomes an independent download task.
type Playlist struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	URL       string          `json:"url"`
	Entries   []PlaylistEntry `json:"entries"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewPlaylist creates a new playlist instance
func NewPlaylist(id, url string) *Playlist {
	return &Playlist{
		ID:        id,
		URL:       url,
		Entries:   make([]PlaylistEntry, 0),
		CreatedAt: time.Now(),
	}
}

// AddEntry appends an entry, skipping ones without a URL
func (p *Playlist) AddEntry(entry PlaylistEntry) {
	if entry.URL == "" {
		return
	}
	p.Entries = append(p.Entries, entry)
}

// Len returns the number of entries
func (p *Playlist) Len() int {
	return len(p.Entries)
}
