// Package audio writes ID3 metadata into audio files produced by
// audio-only downloads.
package audio
