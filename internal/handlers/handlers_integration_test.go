package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"media-registry/internal/database"
	"media-registry/internal/render"
	"media-registry/internal/scanner"
	"media-registry/internal/throttle"
)

// fakeExtractor uses the file contents as the content hash.
type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, path string) (*scanner.VideoInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &scanner.VideoInfo{
		Path:            path,
		DurationSeconds: 90,
		Width:           1920,
		Height:          1080,
		Codec:           "h264",
		FileSize:        int64(len(data)),
		ContentHash:     "hash:" + string(data),
	}, nil
}

// fakeRenderer writes a small file per asset. When block is set every
// render waits for cancellation.
type fakeRenderer struct {
	dir     string
	block   bool
	started chan struct{}
	once    sync.Once
}

func (f *fakeRenderer) write(ctx context.Context, movie database.Movie, ext string) (*render.Output, error) {
	if f.block {
		f.once.Do(func() { close(f.started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}
	path := filepath.Join(f.dir, fmt.Sprintf("%d%s", movie.ID, ext))
	if err := os.WriteFile(path, []byte("asset"), 0o644); err != nil {
		return nil, err
	}
	return &render.Output{Path: path, Bytes: 5}, nil
}

func (f *fakeRenderer) RenderMosaic(ctx context.Context, movie database.Movie, s render.MosaicSettings) (*render.Output, error) {
	out, err := f.write(ctx, movie, ".jpg")
	if out != nil {
		out.Size, out.Density, out.Layout = s.Size, s.Density, s.Layout
	}
	return out, err
}

func (f *fakeRenderer) RenderPreview(ctx context.Context, movie database.Movie, s render.PreviewSettings) (*render.Output, error) {
	out, err := f.write(ctx, movie, ".mp4")
	if out != nil {
		out.Size, out.PreviewType, out.DurationSeconds = s.Size, s.Type, s.DurationSeconds
	}
	return out, err
}

func setupHandlers(t *testing.T) (*Handlers, *fakeRenderer) {
	t.Helper()

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	renderer := &fakeRenderer{dir: t.TempDir(), started: make(chan struct{})}
	ctrl := throttle.New(throttle.Config{MinPermits: 1, MaxPermits: 4, InitialPermits: 4}, nil)
	h := New(db, fakeExtractor{}, renderer, ctrl)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
		if err := db.Close(); err != nil {
			t.Logf("failed to close database: %v", err)
		}
	})
	return h, renderer
}

// serve calls handler with an optional JSON body and route variables.
func serve(t *testing.T, handler http.HandlerFunc, method, target string, body any, vars map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", w.Body.String(), err)
	}
	return v
}

func waitJob(t *testing.T, h *Handlers, id string) Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	job, err := h.jobs.Wait(ctx, id)
	if err != nil {
		t.Fatalf("job %s did not finish: %v", id, err)
	}
	return job
}

func writeMedia(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func registerMovies(t *testing.T, db *database.Database, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 1; i <= n; i++ {
		m, _, err := db.RegisterMovie(context.Background(), &database.Movie{
			FilePath:        fmt.Sprintf("/media/movie-%d.mp4", i),
			ContentHash:     fmt.Sprintf("hash-%d", i),
			DurationSeconds: 120,
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, m.ID)
	}
	return ids
}

type scanJobView struct {
	State  JobState   `json:"state"`
	Result ScanResult `json:"result"`
}

func TestScanJobLifecycle(t *testing.T) {
	h, _ := setupHandlers(t)
	root := t.TempDir()
	writeMedia(t, root, map[string]string{
		"a.mp4":     "alpha",
		"b.mov":     "bravo",
		"sub/c.mkv": "charlie",
		"notes.txt": "not a video",
	})

	w := serve(t, h.StartScan, http.MethodPost, "/api/scans", map[string]string{"path": root}, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("StartScan status = %d, body %s", w.Code, w.Body.String())
	}
	started := decode[Job](t, w)
	if started.ID == "" || started.Type != JobScan || started.State != JobRunning {
		t.Errorf("started job = %+v", started)
	}
	if loc := w.Header().Get("Location"); loc != "/api/scans/"+started.ID {
		t.Errorf("Location = %q", loc)
	}

	waitJob(t, h, started.ID)

	w = serve(t, h.GetScan, http.MethodGet, "/api/scans/"+started.ID, nil, map[string]string{"id": started.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("GetScan status = %d", w.Code)
	}
	got := decode[scanJobView](t, w)
	if got.State != JobCompleted {
		t.Fatalf("state = %s", got.State)
	}
	if got.Result.Progress.VideosRegistered != 3 || got.Result.Progress.Skipped != 1 {
		t.Errorf("progress = %+v", got.Result.Progress)
	}

	w = serve(t, h.ListMovies, http.MethodGet, "/api/movies", nil, nil)
	if movies := decode[[]database.Movie](t, w); len(movies) != 3 {
		t.Errorf("ListMovies returned %d movies, want 3", len(movies))
	}

	w = serve(t, h.GetLibrary, http.MethodGet, "/api/library?url="+root, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GetLibrary status = %d, body %s", w.Code, w.Body.String())
	}
	tree := decode[database.LibraryItem](t, w)
	if tree.Kind != database.ItemKindFolder || tree.ScannedAt == nil {
		t.Errorf("root = %+v", tree)
	}
	if len(tree.Movies) != 2 || len(tree.Children) != 1 {
		t.Fatalf("root has %d movies and %d children, want 2 and 1", len(tree.Movies), len(tree.Children))
	}
	if sub := tree.Children[0]; sub.Name != "sub" || len(sub.Movies) != 1 {
		t.Errorf("sub = %+v", sub)
	}

	w = serve(t, h.GetScan, http.MethodGet, "/api/scans/nope", nil, map[string]string{"id": "nope"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown scan status = %d, want 404", w.Code)
	}
}

func TestStartScanErrors(t *testing.T) {
	h, _ := setupHandlers(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"empty body", nil, http.StatusBadRequest},
		{"missing path", map[string]string{}, http.StatusBadRequest},
		{"unknown field", `{"path":"/tmp","deep":true}`, http.StatusBadRequest},
		{"not json", "path=/tmp", http.StatusBadRequest},
		{"nonexistent path", map[string]string{"path": filepath.Join(t.TempDir(), "absent")}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, h.StartScan, http.MethodPost, "/api/scans", tt.body, nil)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			if len(h.jobs.List()) != 0 {
				t.Error("a rejected request started a job")
			}
		})
	}
}

func TestBatchJobLifecycle(t *testing.T) {
	h, _ := setupHandlers(t)
	ids := registerMovies(t, h.db, 2)

	body := map[string]any{"kind": "mosaic", "movieIds": ids, "settings": map[string]any{"mosaic": map[string]any{"size": "small"}}}
	w := serve(t, h.StartBatch, http.MethodPost, "/api/batches", body, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("StartBatch status = %d, body %s", w.Code, w.Body.String())
	}
	started := decode[Job](t, w)
	job := waitJob(t, h, started.ID)
	if job.State != JobCompleted {
		t.Fatalf("job = %+v", job)
	}

	w = serve(t, h.GetJob, http.MethodGet, "/api/jobs/"+job.ID, nil, map[string]string{"id": job.ID})
	result := decode[struct {
		Result database.Batch `json:"result"`
	}](t, w).Result
	if result.Status != database.BatchStatusCompleted || result.ItemCount != 2 {
		t.Errorf("batch = %+v", result)
	}

	w = serve(t, h.ListBatches, http.MethodGet, "/api/batches?kind=mosaic", nil, nil)
	if batches := decode[[]database.Batch](t, w); len(batches) != 1 || batches[0].ID != result.ID {
		t.Errorf("ListBatches = %+v", batches)
	}
	w = serve(t, h.ListBatches, http.MethodGet, "/api/batches?kind=preview", nil, nil)
	if batches := decode[[]database.Batch](t, w); len(batches) != 0 {
		t.Errorf("preview batches = %+v", batches)
	}

	id := fmt.Sprint(result.ID)
	w = serve(t, h.GetBatch, http.MethodGet, "/api/batches/mosaic/"+id, nil, map[string]string{"kind": "mosaic", "id": id})
	if w.Code != http.StatusOK {
		t.Fatalf("GetBatch status = %d", w.Code)
	}
	detail := decode[BatchDetail](t, w)
	if len(detail.Mosaics) != 2 {
		t.Fatalf("batch has %d mosaics, want 2", len(detail.Mosaics))
	}
	for _, m := range detail.Mosaics {
		if m.BatchID != result.ID || m.Size != "small" || m.Status != database.AssetStatusCompleted {
			t.Errorf("mosaic = %+v", m)
		}
	}

	w = serve(t, h.GetMovie, http.MethodGet, "/api/movies/1", nil, map[string]string{"id": fmt.Sprint(ids[0])})
	if d := decode[MovieDetail](t, w); d.LatestMosaic == nil || d.LatestMosaic.BatchID != result.ID {
		t.Errorf("movie detail = %+v", d)
	}

	w = serve(t, h.GetBatch, http.MethodGet, "/api/batches/preview/"+id, nil, map[string]string{"kind": "preview", "id": id})
	if w.Code != http.StatusNotFound {
		t.Errorf("wrong-kind batch status = %d, want 404", w.Code)
	}
}

func TestStartBatchValidation(t *testing.T) {
	h, _ := setupHandlers(t)
	ids := registerMovies(t, h.db, 1)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"unknown kind", map[string]any{"kind": "thumbnail", "movieIds": ids}, http.StatusBadRequest},
		{"ids and all", map[string]any{"kind": "mosaic", "movieIds": ids, "all": true}, http.StatusBadRequest},
		{"no selection", map[string]any{"kind": "mosaic"}, http.StatusBadRequest},
		{"bad size", map[string]any{"kind": "mosaic", "movieIds": ids, "settings": map[string]any{"mosaic": map[string]any{"size": "huge"}}}, http.StatusBadRequest},
		{"bad format", map[string]any{"kind": "preview", "movieIds": ids, "settings": map[string]any{"preview": map[string]any{"format": "gif"}}}, http.StatusBadRequest},
		{"unknown movie", map[string]any{"kind": "mosaic", "movieIds": []int64{ids[0], 999}}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, h.StartBatch, http.MethodPost, "/api/batches", tt.body, nil)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	batches, err := h.db.ListMosaicBatches(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 0 {
		t.Errorf("rejected requests opened %d batches", len(batches))
	}
}

func TestStartBatchAllWithEmptyRegistry(t *testing.T) {
	h, _ := setupHandlers(t)

	w := serve(t, h.StartBatch, http.MethodPost, "/api/batches", map[string]any{"kind": "preview", "all": true}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCancelBatchJob(t *testing.T) {
	h, renderer := setupHandlers(t)
	renderer.block = true
	ids := registerMovies(t, h.db, 1)

	w := serve(t, h.StartBatch, http.MethodPost, "/api/batches", map[string]any{"kind": "preview", "movieIds": ids}, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("StartBatch status = %d, body %s", w.Code, w.Body.String())
	}
	id := decode[Job](t, w).ID

	select {
	case <-renderer.started:
	case <-time.After(5 * time.Second):
		t.Fatal("render never started")
	}

	w = serve(t, h.CancelJob, http.MethodDelete, "/api/jobs/"+id, nil, map[string]string{"id": id})
	if w.Code != http.StatusAccepted {
		t.Fatalf("CancelJob status = %d", w.Code)
	}

	job := waitJob(t, h, id)
	if job.State != JobCancelled {
		t.Errorf("state = %s, want cancelled", job.State)
	}
	batch, ok := job.Result.(*database.Batch)
	if !ok || batch.Status != database.BatchStatusFailed {
		t.Fatalf("result = %#v, want a failed batch", job.Result)
	}

	w = serve(t, h.CancelJob, http.MethodDelete, "/api/jobs/"+id, nil, map[string]string{"id": id})
	if w.Code != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", w.Code)
	}
}

func TestMovieEndpointErrors(t *testing.T) {
	h, _ := setupHandlers(t)

	tests := []struct {
		name    string
		handler http.HandlerFunc
		target  string
		vars    map[string]string
		want    int
	}{
		{"bad id", h.GetMovie, "/api/movies/abc", map[string]string{"id": "abc"}, http.StatusBadRequest},
		{"missing movie", h.GetMovie, "/api/movies/42", map[string]string{"id": "42"}, http.StatusNotFound},
		{"bad limit", h.ListMovies, "/api/movies?limit=-1", nil, http.StatusBadRequest},
		{"library without url", h.GetLibrary, "/api/library", nil, http.StatusBadRequest},
		{"unscanned library", h.GetLibrary, "/api/library?url=/never/scanned", nil, http.StatusNotFound},
		{"bad batch kind", h.ListBatches, "/api/batches?kind=gif", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, tt.handler, http.MethodGet, tt.target, nil, tt.vars)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestPlaylistEndpoints(t *testing.T) {
	h, _ := setupHandlers(t)
	ids := registerMovies(t, h.db, 3)

	w := serve(t, h.CreatePlaylist, http.MethodPost, "/api/playlists", map[string]string{"name": " Evening "}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("CreatePlaylist status = %d", w.Code)
	}
	p := decode[database.Playlist](t, w)
	if p.Name != "Evening" {
		t.Errorf("name = %q", p.Name)
	}
	pid := fmt.Sprint(p.ID)

	for i, id := range ids {
		w = serve(t, h.AddPlaylistItem, http.MethodPost, "/api/playlists/"+pid+"/items", map[string]int64{"movieId": id}, map[string]string{"id": pid})
		if w.Code != http.StatusCreated {
			t.Fatalf("AddPlaylistItem status = %d", w.Code)
		}
		if item := decode[database.PlaylistItem](t, w); item.Position != i {
			t.Errorf("item %d position = %d", i, item.Position)
		}
	}

	w = serve(t, h.AddPlaylistItem, http.MethodPost, "/api/playlists/"+pid+"/items", map[string]int64{"movieId": 999}, map[string]string{"id": pid})
	if w.Code != http.StatusConflict {
		t.Errorf("unknown movie status = %d, want 409", w.Code)
	}

	w = serve(t, h.RemovePlaylistItem, http.MethodDelete, "/api/playlists/"+pid+"/items/1", nil, map[string]string{"id": pid, "position": "1"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("RemovePlaylistItem status = %d", w.Code)
	}
	w = serve(t, h.RemovePlaylistItem, http.MethodDelete, "/api/playlists/"+pid+"/items/1", nil, map[string]string{"id": pid, "position": "1"})
	if w.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want 404", w.Code)
	}

	w = serve(t, h.GetPlaylist, http.MethodGet, "/api/playlists/"+pid, nil, map[string]string{"id": pid})
	got := decode[database.Playlist](t, w)
	if len(got.Items) != 2 || got.Items[1].Position != 2 {
		t.Errorf("items after removal = %+v", got.Items)
	}

	w = serve(t, h.CompactPlaylist, http.MethodPost, "/api/playlists/"+pid+"/compact", nil, map[string]string{"id": pid})
	got = decode[database.Playlist](t, w)
	if len(got.Items) != 2 || got.Items[1].Position != 1 || got.Items[1].MovieID != ids[2] {
		t.Errorf("items after compaction = %+v", got.Items)
	}

	w = serve(t, h.ListPlaylists, http.MethodGet, "/api/playlists", nil, nil)
	if list := decode[[]database.Playlist](t, w); len(list) != 1 {
		t.Errorf("ListPlaylists = %+v", list)
	}

	w = serve(t, h.CreatePlaylist, http.MethodPost, "/api/playlists", map[string]string{"name": "  "}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank name status = %d, want 400", w.Code)
	}
}

func TestImportPlaylist(t *testing.T) {
	h, _ := setupHandlers(t)
	dir := t.TempDir()
	movie, _, err := h.db.RegisterMovie(context.Background(), &database.Movie{
		FilePath:    filepath.Join(dir, "clip.mp4"),
		ContentHash: "clip",
	})
	if err != nil {
		t.Fatal(err)
	}
	writeMedia(t, dir, map[string]string{
		"list.wpl":   `<smil><head><title>Imported</title></head><body><seq><media src="clip.mp4"/><media src="gone.mp4"/></seq></body></smil>`,
		"broken.wpl": "<smil>",
	})

	w := serve(t, h.ImportPlaylist, http.MethodPost, "/api/playlists/import", map[string]string{"path": filepath.Join(dir, "list.wpl")}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("ImportPlaylist status = %d, body %s", w.Code, w.Body.String())
	}
	result := decode[struct {
		Playlist   database.Playlist `json:"playlist"`
		Unresolved []json.RawMessage `json:"unresolved"`
	}](t, w)
	if result.Playlist.Name != "Imported" || len(result.Playlist.Items) != 1 || result.Playlist.Items[0].MovieID != movie.ID {
		t.Errorf("playlist = %+v", result.Playlist)
	}
	if len(result.Unresolved) != 1 {
		t.Errorf("unresolved = %d, want 1", len(result.Unresolved))
	}

	w = serve(t, h.ImportPlaylist, http.MethodPost, "/api/playlists/import", map[string]string{"path": filepath.Join(dir, "broken.wpl")}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("broken file status = %d, want 400", w.Code)
	}
	w = serve(t, h.ImportPlaylist, http.MethodPost, "/api/playlists/import", map[string]string{"path": filepath.Join(dir, "absent.wpl")}, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", w.Code)
	}
}

func TestMigrationEndpointsWithoutLegacySchema(t *testing.T) {
	h, _ := setupHandlers(t)

	w := serve(t, h.GetMigrationStatus, http.MethodGet, "/api/migrate", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GetMigrationStatus status = %d", w.Code)
	}
	if status := decode[MigrationStatus](t, w); status.Pending || status.CompletedAt != nil {
		t.Errorf("status = %+v", status)
	}

	w = serve(t, h.Migrate, http.MethodPost, "/api/migrate", nil, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Migrate status = %d, want 409", w.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	h, _ := setupHandlers(t)
	registerMovies(t, h.db, 2)

	w := serve(t, h.HealthCheck, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("HealthCheck status = %d", w.Code)
	}
	resp := decode[HealthResponse](t, w)
	if resp.Status != statusHealthy || !resp.Ready || resp.MigrationPending {
		t.Errorf("health = %+v", resp)
	}
	if resp.Registry == nil || resp.Registry.Movies != 2 {
		t.Errorf("registry = %+v", resp.Registry)
	}
	if resp.Throttle.Capacity != 4 {
		t.Errorf("throttle = %+v", resp.Throttle)
	}

	w = serve(t, h.ReadinessCheck, http.MethodGet, "/readyz", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("ReadinessCheck status = %d", w.Code)
	}
}

func TestHealthCheckClosedStore(t *testing.T) {
	h, _ := setupHandlers(t)
	if err := h.db.Close(); err != nil {
		t.Fatal(err)
	}

	w := serve(t, h.HealthCheck, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if resp := decode[HealthResponse](t, w); resp.Status != statusUnhealthy || resp.Error == "" {
		t.Errorf("health = %+v", resp)
	}
}

func TestLivenessCheck(t *testing.T) {
	h := &Handlers{}

	w := serve(t, h.LivenessCheck, http.MethodGet, "/livez", nil, nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("alive")) {
		t.Errorf("GET /livez = %d %s", w.Code, w.Body.String())
	}

	w = serve(t, h.LivenessCheck, http.MethodHead, "/livez", nil, nil)
	if w.Code != http.StatusOK || w.Body.Len() != 0 {
		t.Errorf("HEAD /livez = %d with %d body bytes", w.Code, w.Body.Len())
	}
}

func TestGetVersion(t *testing.T) {
	h := &Handlers{startTime: time.Now().Add(-time.Minute)}

	w := serve(t, h.GetVersion, http.MethodGet, "/version", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	v := decode[VersionResponse](t, w)
	if v.Version == "" || v.GoVersion == "" || v.Uptime != "1m0s" {
		t.Errorf("version = %+v", v)
	}
}
