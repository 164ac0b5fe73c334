package platform

// Package platform contains OS/platform integration and external tooling glue:
// the helper process runner, yt-dlp progress line parsing, filesystem helpers
// and playlist expansion via the ytdlp library.
