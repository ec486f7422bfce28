package playlist

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidWPL is returned for a file that is not a WPL document.
var ErrInvalidWPL = errors.New("invalid WPL playlist")

// WPL structure based on Windows Media Player playlist format
type WPL struct {
	XMLName xml.Name `xml:"smil"`
	Head    WPLHead  `xml:"head"`
	Body    WPLBody  `xml:"body"`
}

type WPLHead struct {
	Title string    `xml:"title"`
	Meta  []WPLMeta `xml:"meta"`
}

type WPLMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type WPLBody struct {
	Seq WPLSeq `xml:"seq"`
}

type WPLSeq struct {
	Media []WPLMedia `xml:"media"`
}

type WPLMedia struct {
	Src string `xml:"src,attr"`
}

// Entry is one media reference from a playlist file.
type Entry struct {
	// Src is the reference exactly as written in the file.
	Src string `json:"src"`
	// Path is Src with separators normalized to forward slashes.
	Path string `json:"path"`
	// Name is the file name component of Path.
	Name string `json:"name"`
}

// File is a parsed playlist file.
type File struct {
	Name    string  `json:"name"`
	Path    string  `json:"path"`
	Entries []Entry `json:"entries"`
}

// ParseWPL reads a WPL playlist. The playlist name is the document title or,
// without one, the file name minus its extension.
func ParseWPL(wplPath string) (*File, error) {
	data, err := os.ReadFile(wplPath)
	if err != nil {
		return nil, err
	}

	var wpl WPL
	if err := xml.Unmarshal(data, &wpl); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidWPL, filepath.Base(wplPath), err)
	}

	f := &File{
		Name: strings.TrimSpace(wpl.Head.Title),
		Path: wplPath,
	}
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(wplPath), filepath.Ext(wplPath))
	}

	for _, media := range wpl.Body.Seq.Media {
		src := strings.TrimSpace(media.Src)
		if src == "" {
			continue
		}
		p := normalizePath(src)
		f.Entries = append(f.Entries, Entry{Src: media.Src, Path: p, Name: path.Base(p)})
	}
	return f, nil
}

// normalizePath converts Windows separators and strips a drive letter so
// the remainder can be tried relative to the playlist.
func normalizePath(src string) string {
	p := strings.ReplaceAll(src, "\\", "/")
	if len(p) >= 2 && p[1] == ':' && isLetter(p[0]) {
		p = strings.TrimPrefix(p[2:], "/")
	}
	return p
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// localPath maps the entry onto this machine's filesystem: an absolute
// path as-is, anything else relative to the playlist directory. UNC shares
// have no local form.
func (e Entry) localPath(playlistDir string) (p, method string, ok bool) {
	switch {
	case strings.HasPrefix(e.Path, "//"):
		return "", "", false
	case strings.HasPrefix(e.Path, "/"):
		return filepath.Clean(filepath.FromSlash(e.Path)), "path", true
	}
	return filepath.Join(playlistDir, filepath.FromSlash(e.Path)), "relative", true
}
