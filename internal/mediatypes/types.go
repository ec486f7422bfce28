package mediatypes

import (
	"path/filepath"
	"strings"
)

// videoContainers is the scanner's allow-list. Anything else under a library
// root is counted as skipped and never probed.
var videoContainers = []string{
	"mp4", "m4v", "mkv", "webm",
	"mov", "avi", "wmv", "flv",
	"mpeg", "mpg", "ts", "3gp",
}

// VideoExtensions holds videoContainers keyed by dotted extension.
var VideoExtensions = func() map[string]bool {
	m := make(map[string]bool, len(videoContainers))
	for _, c := range videoContainers {
		m["."+c] = true
	}
	return m
}()

// MosaicFormats maps a mosaic image encoding to the file extension it is
// written with.
var MosaicFormats = map[string]string{
	"jpeg": ".jpg",
	"png":  ".png",
	"webp": ".webp",
}

// PreviewFormats maps a preview container to its file extension.
var PreviewFormats = map[string]string{
	"mp4":  ".mp4",
	"webm": ".webm",
}

// Ext returns the lowercase extension of path, including the leading dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// IsVideo reports whether path has an allow-listed video extension.
func IsVideo(path string) bool {
	return VideoExtensions[Ext(path)]
}

// IsHidden reports whether a directory entry name is hidden.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
