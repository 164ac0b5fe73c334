package audio

import (
	"fmt"
	"os"
	"strings"

	"github.com/bogem/id3v2"
)

// Tagger writes ID3 tags to MP3 files.
//
// Empty values never overwrite frames already present in the file, so
// tags written by yt-dlp's own metadata postprocessor survive.
type Tagger struct {
	// Comment is written to the COMM frame when non-empty
	Comment string
}

// NewTagger creates a new Tagger
func NewTagger() *Tagger {
	return &Tagger{}
}

// TagFile sets the title and artist frames of the MP3 at path.
func (t *Tagger) TagFile(path, title, artist string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot tag %s: %w", path, err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to read tags: %w", err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	if title = strings.TrimSpace(title); title != "" {
		tag.SetTitle(title)
	}
	if artist = strings.TrimSpace(artist); artist != "" {
		tag.SetArtist(artist)
	}
	if t.Comment != "" {
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding: id3v2.EncodingUTF8,
			Language: "eng",
			Text:     t.Comment,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save tags: %w", err)
	}
	return nil
}
