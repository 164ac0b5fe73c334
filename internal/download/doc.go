package download

// Package download implements the download task engine: per-task workers in
// library mode (github.com/lrstanley/go-ytdlp) or external-process mode
// (a yt-dlp executable whose output is parsed line by line), the Event Sink
// they report through, and the Registry that owns every task's state.
