package database

import (
	"encoding/json"
	"sync"
	"time"
)

type ItemKind string

const (
	ItemKindFolder ItemKind = "folder"
	ItemKindVideo  ItemKind = "video"
)

type BatchKind string

const (
	BatchKindMosaic  BatchKind = "mosaic"
	BatchKindPreview BatchKind = "preview"
)

// Valid reports whether k names a known batch kind.
func (k BatchKind) Valid() bool {
	return k == BatchKindMosaic || k == BatchKindPreview
}

type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
)

type AssetStatus string

const (
	AssetStatusCompleted AssetStatus = "completed"
	AssetStatusFailed    AssetStatus = "failed"
)

// Movie is the registry row for one unique video file.
type Movie struct {
	ID              int64     `json:"id"`
	FilePath        string    `json:"filePath"`
	ContentHash     string    `json:"contentHash,omitempty"`
	Name            string    `json:"name"`
	DurationSeconds float64   `json:"durationSeconds"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	Codec           string    `json:"codec,omitempty"`
	FileSize        int64     `json:"fileSize"`
	CreatedAt       time.Time `json:"createdAt"`
	LastScanAt      time.Time `json:"lastScanAt"`
}

// LibraryItem is a node of the scanned folder tree. Children, Movies and
// Errors are filled by the scanner and by LoadSubtree; they are not columns.
type LibraryItem struct {
	ID        int64      `json:"id"`
	Kind      ItemKind   `json:"kind"`
	Name      string     `json:"name"`
	URL       string     `json:"url"`
	ParentID  *int64     `json:"parentId,omitempty"`
	ScannedAt *time.Time `json:"scannedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`

	Parent   *LibraryItem   `json:"-"`
	Children []*LibraryItem `json:"children,omitempty"`
	Movies   []Movie        `json:"movies,omitempty"`
	Errors   []error        `json:"-"`

	mu sync.Mutex
}

// Scanned reports whether every child of the item has been visited.
func (i *LibraryItem) Scanned() bool {
	return i.ScannedAt != nil
}

// AddChild attaches child to i and sets its back-reference. A child with
// the same stored ID replaces the earlier one in place.
func (i *LibraryItem) AddChild(child *LibraryItem) {
	i.mu.Lock()
	defer i.mu.Unlock()
	child.Parent = i
	if child.ID != 0 {
		for n, existing := range i.Children {
			if existing.ID == child.ID {
				i.Children[n] = child
				return
			}
		}
	}
	i.Children = append(i.Children, child)
}

// AddMovie records a movie associated with the item, ignoring repeats.
func (i *LibraryItem) AddMovie(m Movie) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, existing := range i.Movies {
		if existing.ID == m.ID {
			return
		}
	}
	i.Movies = append(i.Movies, m)
}

// AddError records a per-child failure.
func (i *LibraryItem) AddError(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Errors = append(i.Errors, err)
}

// ErrorMessages returns the recorded errors as strings.
func (i *LibraryItem) ErrorMessages() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, 0, len(i.Errors))
	for _, err := range i.Errors {
		out = append(out, err.Error())
	}
	return out
}

// Batch is one run of the derived-asset pipeline.
type Batch struct {
	ID           int64           `json:"id"`
	Kind         BatchKind       `json:"kind"`
	StartedAt    time.Time       `json:"startedAt"`
	EndedAt      *time.Time      `json:"endedAt,omitempty"`
	Status       BatchStatus     `json:"status"`
	Settings     json.RawMessage `json:"settings"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	ItemCount    int             `json:"itemCount"`
	FailedCount  int             `json:"failedCount"`
}

// Terminal reports whether the batch can no longer change.
func (b *Batch) Terminal() bool {
	return b.Status != BatchStatusRunning
}

type Mosaic struct {
	ID           int64       `json:"id"`
	MovieID      int64       `json:"movieId"`
	BatchID      int64       `json:"batchId"`
	FilePath     string      `json:"filePath"`
	Size         string      `json:"size"`
	Density      string      `json:"density"`
	Layout       string      `json:"layout"`
	Status       AssetStatus `json:"status"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

type Preview struct {
	ID              int64       `json:"id"`
	MovieID         int64       `json:"movieId"`
	BatchID         int64       `json:"batchId"`
	MosaicID        *int64      `json:"mosaicId,omitempty"`
	FilePath        string      `json:"filePath"`
	PreviewType     string      `json:"previewType"`
	Size            string      `json:"size"`
	DurationSeconds float64     `json:"durationSeconds"`
	Status          AssetStatus `json:"status"`
	ErrorMessage    string      `json:"errorMessage,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

type Playlist struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Items     []PlaylistItem `json:"items,omitempty"`
}

type PlaylistItem struct {
	ID         int64     `json:"id"`
	PlaylistID int64     `json:"playlistId"`
	MovieID    int64     `json:"movieId"`
	Position   int       `json:"position"`
	AddedAt    time.Time `json:"addedAt"`
	MovieName  string    `json:"movieName,omitempty"`
	MoviePath  string    `json:"moviePath,omitempty"`
}

// LegacyMosaic is one row of the pre-normalization mosaics table. Empty
// strings stand for NULL columns.
type LegacyMosaic struct {
	ID             int64
	MovieFilePath  string
	MosaicFilePath string
	Size           string
	Density        string
	Layout         string
	ContentHash    string
	CreationDate   time.Time
}
