package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ytget/yt-queue/internal/download"
	"github.com/ytget/yt-queue/internal/model"
	"github.com/ytget/yt-queue/internal/platform"
)

// Default values
const (
	DefaultQuality                 = model.QualityBest
	DefaultFilenameTemplate        = download.DefaultFilenameTemplate
	DefaultProgressLogInterval     = 2.0 // seconds
	DefaultLibraryProgressInterval = 500 // milliseconds
	DefaultTagAudio                = true
	FallbackDownloadDir            = "/tmp/downloads"
	SettingsFileName               = "settings.json"
	AppDirName                     = "yt-queue"
)

// Settings holds all configuration options.
type Settings struct {
	DownloadDirectory string        `json:"download_directory"`
	FilenameTemplate  string        `json:"filename_template"`
	DefaultQuality    model.Quality `json:"default_quality"`

	// Helper executables. An empty yt-dlp path selects library mode.
	YTDLPPath  string `json:"ytdlp_path"`
	FFmpegPath string `json:"ffmpeg_path"`

	AudioFormat  string `json:"audio_format"`
	AudioQuality string `json:"audio_quality"`
	TagAudio     bool   `json:"tag_audio"`

	ProgressLogInterval     float64 `json:"progress_log_interval"`     // seconds
	LibraryProgressInterval int     `json:"library_progress_interval"` // milliseconds

	// JournalPath enables the SQLite event journal when set
	JournalPath string `json:"journal_path"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	dir, err := platform.GetHomeDownloadsDir()
	if err != nil {
		dir = FallbackDownloadDir
	}
	return &Settings{
		DownloadDirectory:       dir,
		FilenameTemplate:        DefaultFilenameTemplate,
		DefaultQuality:          DefaultQuality,
		AudioFormat:             model.DefaultAudioFormat,
		AudioQuality:            model.DefaultAudioQuality,
		TagAudio:                DefaultTagAudio,
		ProgressLogInterval:     DefaultProgressLogInterval,
		LibraryProgressInterval: DefaultLibraryProgressInterval,
	}
}

// DefaultPath returns the settings file location under the user config dir
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return SettingsFileName
	}
	return filepath.Join(dir, AppDirName, SettingsFileName)
}

// Load reads settings from a JSON file. A missing file yields defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	settings.normalize()

	return settings, nil
}

// Save writes settings to a JSON file.
func (s *Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), platform.DefaultDirPermissions); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// normalize replaces empty or invalid values with defaults
func (s *Settings) normalize() {
	if s.FilenameTemplate == "" {
		s.FilenameTemplate = DefaultFilenameTemplate
	}
	if s.DefaultQuality == "" {
		s.DefaultQuality = DefaultQuality
	}
	if s.AudioFormat == "" {
		s.AudioFormat = model.DefaultAudioFormat
	}
	if s.AudioQuality == "" {
		s.AudioQuality = model.DefaultAudioQuality
	}
	if s.ProgressLogInterval < 0 {
		s.ProgressLogInterval = DefaultProgressLogInterval
	}
	if s.LibraryProgressInterval <= 0 {
		s.LibraryProgressInterval = DefaultLibraryProgressInterval
	}
	if s.DownloadDirectory == "" {
		s.DownloadDirectory = DefaultSettings().DownloadDirectory
	}
}

// Validate reports configuration errors for explicitly set helper paths
func (s *Settings) Validate() error {
	if err := platform.CheckExecutable(s.YTDLPPath); err != nil {
		return fmt.Errorf("yt-dlp: %w", err)
	}
	if err := platform.CheckExecutable(s.FFmpegPath); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

// TaskOptions converts settings to download options
func (s *Settings) TaskOptions() download.TaskOptions {
	return download.TaskOptions{
		OutputDir:               s.DownloadDirectory,
		FilenameTemplate:        s.FilenameTemplate,
		YTDLPPath:               s.YTDLPPath,
		FFmpegPath:              s.FFmpegPath,
		AudioFormat:             s.AudioFormat,
		AudioQuality:            s.AudioQuality,
		TagAudio:                s.TagAudio,
		LogInterval:             time.Duration(s.ProgressLogInterval * float64(time.Second)),
		LibraryProgressInterval: time.Duration(s.LibraryProgressInterval) * time.Millisecond,
	}
}
