package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/yt-queue/internal/model"
	"github.com/ytget/ytdlp/v2"
)

// Playlist expansion defaults
const (
	DefaultParseTimeout = 60 * time.Second
	DefaultPlaylistName = "Unknown Playlist"
	PlaylistQueryKey    = "list"
	PlaylistSuffix      = " Playlist"
	MinPrefixLength     = 10

	// WatchURLTemplate builds a single-video URL from a video id
	WatchURLTemplate = "https://www.youtube.com/watch?v=%s"
)

// titleTrimSet is stripped from the end of a shared title prefix
const titleTrimSet = " -–|:·"

// playlistItem is the subset of library playlist data we keep
type playlistItem struct {
	VideoID string
	Title   string
}

type playlistFetchFunc func(ctx context.Context, playlistID string, limit int) ([]playlistItem, error)

// YTDLPParserService expands playlist URLs into entries using the ytdlp library
type YTDLPParserService struct {
	timeout time.Duration
	limit   int
	fetch   playlistFetchFunc
}

// NewYTDLPParserService creates a new parser service
func NewYTDLPParserService() *YTDLPParserService {
	return &YTDLPParserService{
		timeout: DefaultParseTimeout,
		fetch:   fetchPlaylistItems,
	}
}

// SetTimeout bounds a single expansion. Zero disables the bound.
func (y *YTDLPParserService) SetTimeout(timeout time.Duration) {
	y.timeout = timeout
}

// SetLimit caps the number of entries fetched. Zero means all.
func (y *YTDLPParserService) SetLimit(limit int) {
	y.limit = max(limit, 0)
}

// IsPlaylistURL reports whether rawURL names a playlist
func (y *YTDLPParserService) IsPlaylistURL(rawURL string) bool {
	return IsPlaylistURL(rawURL)
}

// ParsePlaylist resolves a playlist URL into its entries
func (y *YTDLPParserService) ParsePlaylist(ctx context.Context, rawURL string) (*model.Playlist, error) {
	playlistID := PlaylistID(rawURL)
	if playlistID == "" {
		return nil, fmt.Errorf("invalid playlist URL: %s", rawURL)
	}

	if y.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}

	items, err := y.fetch(ctx, playlistID, y.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}

	playlist := model.NewPlaylist(playlistID, rawURL)
	for _, it := range items {
		if it.VideoID == "" {
			continue
		}
		playlist.AddEntry(model.PlaylistEntry{
			ID:    it.VideoID,
			Title: it.Title,
			URL:   fmt.Sprintf(WatchURLTemplate, it.VideoID),
		})
	}
	playlist.Title = playlistTitle(playlist.Entries)

	return playlist, nil
}

func fetchPlaylistItems(ctx context.Context, playlistID string, limit int) ([]playlistItem, error) {
	items, err := ytdlp.New().GetPlaylistItemsAll(ctx, playlistID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]playlistItem, 0, len(items))
	for _, it := range items {
		out = append(out, playlistItem{VideoID: it.VideoID, Title: it.Title})
	}
	return out, nil
}

// IsPlaylistURL reports whether rawURL carries a non-empty playlist id
func IsPlaylistURL(rawURL string) bool {
	return PlaylistID(rawURL) != ""
}

// PlaylistID returns the first "list" query value of rawURL, or "".
func PlaylistID(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return u.Query().Get(PlaylistQueryKey)
}

// playlistTitle names a playlist after the prefix its entry titles share
// ("Artist - Song 1", "Artist - Song 2" -> "Artist Playlist").
func playlistTitle(entries []model.PlaylistEntry) string {
	if len(entries) == 0 {
		return DefaultPlaylistName
	}

	prefix := entries[0].Title
	for _, e := range entries[1:] {
		prefix = commonPrefix(prefix, e.Title)
	}
	prefix = strings.TrimRight(prefix, titleTrimSet)

	if len(entries) > 1 && len(prefix) >= MinPrefixLength {
		return prefix + PlaylistSuffix
	}
	return entries[0].Title + PlaylistSuffix
}

// commonPrefix returns the longest shared prefix of a and b on rune boundaries
func commonPrefix(a, b string) string {
	ra, rb := []rune(a), []rune(b)
	n := min(len(ra), len(rb))
	for i := 0; i < n; i++ {
		if ra[i] != rb[i] {
			return string(ra[:i])
		}
	}
	return string(ra[:n])
}
