package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Operating system constants
const (
	OSWindows = "windows"
	OSAndroid = "android"
)

// File permissions
const (
	DefaultDirPermissions = 0755
)

// Executable probing
const (
	DefaultProbeTimeout = 10 * time.Second
	YTDLPVersionFlag    = "--version"
	FFmpegVersionFlag   = "-version"
)

// ErrExecutableNotFound is returned when a configured helper path does not exist
var ErrExecutableNotFound = errors.New("executable not found")

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// GetHomeDownloadsDir returns the standard Downloads directory for the user
func GetHomeDownloadsDir() (string, error) {
	if runtime.GOOS == OSAndroid || os.Getenv("ANDROID_DATA") != "" {
		return "/sdcard/Download", nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, "Downloads"), nil
}

// ExecutableExists reports whether path names an existing regular file
func ExecutableExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CheckExecutable validates a configured helper path.
// An empty path is valid and means "not configured".
func CheckExecutable(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if !ExecutableExists(path) {
		return fmt.Errorf("%w: %s", ErrExecutableNotFound, path)
	}
	return nil
}

// ProbeExecutable runs path with versionFlag (window hidden) and returns
// the first line of its output, e.g. the yt-dlp or ffmpeg version.
func ProbeExecutable(ctx context.Context, path, versionFlag string) (string, error) {
	if err := CheckExecutable(path); err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrExecutableNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()

	out, err := NewProcessRunner().Output(ctx, path, versionFlag)
	if err != nil {
		return "", fmt.Errorf("failed to probe %s: %w", path, err)
	}

	first, _, _ := strings.Cut(out, "\n")
	return strings.TrimSpace(first), nil
}
