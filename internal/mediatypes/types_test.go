package mediatypes

import "testing"

func TestIsVideo(t *testing.T) {
	for ext := range VideoExtensions {
		if !IsVideo("movie" + ext) {
			t.Errorf("IsVideo(movie%s) = false", ext)
		}
	}
	if IsVideo("image.webp") {
		t.Error("webp is an image format, not a video")
	}
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{".DS_Store", true},
		{".hidden", true},
		{"visible.mp4", false},
		{"a.b", false},
	}

	for _, tt := range tests {
		if got := IsHidden(tt.name); got != tt.want {
			t.Errorf("IsHidden(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOutputFormats(t *testing.T) {
	if MosaicFormats["webp"] != ".webp" || MosaicFormats["jpeg"] != ".jpg" {
		t.Errorf("Unexpected mosaic formats: %v", MosaicFormats)
	}
	if PreviewFormats["mp4"] != ".mp4" {
		t.Errorf("Unexpected preview formats: %v", PreviewFormats)
	}
}

func TestIsVideoPaths(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/lib/a.mp4", true},
		{"/lib/b.MOV", true},
		{"/lib/sub/c.mkv", true},
		{"/lib/list.wpl", false},
		{"/lib/poster.jpg", false},
		{"/lib/noext", false},
		{"/lib/archive.mp4.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsVideo(tt.path); got != tt.want {
				t.Errorf("IsVideo(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
