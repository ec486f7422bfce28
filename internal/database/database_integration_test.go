package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Integration tests for the registry store with a real SQLite database

func setupTestDB(t testing.TB) (db *Database, dbPath string) {
	t.Helper()

	dbPath = filepath.Join(t.TempDir(), "test.db")

	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db, dbPath
}

func mustRegister(t *testing.T, db *Database, m Movie) *Movie {
	t.Helper()
	movie, _, err := db.RegisterMovie(context.Background(), &m)
	if err != nil {
		t.Fatalf("RegisterMovie(%s) failed: %v", m.FilePath, err)
	}
	return movie
}

func TestNewDatabase(t *testing.T) {
	db, dbPath := setupTestDB(t)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if err := db.db.PingContext(context.Background()); err != nil {
		t.Errorf("Database ping failed: %v", err)
	}
	if db.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
	}
}

func TestNewDatabaseIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "again.db")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		db, err := New(ctx, dbPath)
		if err != nil {
			t.Fatalf("New() attempt %d failed: %v", i+1, err)
		}
		if _, _, err := db.RegisterMovie(ctx, &Movie{FilePath: filepath.Join("/lib", string(rune('a'+i))+".mp4")}); err != nil {
			t.Fatalf("RegisterMovie attempt %d failed: %v", i+1, err)
		}
		db.Close()
	}

	db, err := New(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	movies, err := db.ListMovies(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(movies) != 3 {
		t.Errorf("Expected 3 movies to survive reopening, got %d", len(movies))
	}
}

func TestRegisterMovieDedupByHash(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	first, created, err := db.RegisterMovie(ctx, &Movie{FilePath: "/lib/a.mp4", ContentHash: "h1", Width: 1920, Height: 1080})
	if err != nil || !created {
		t.Fatalf("first RegisterMovie = created %v, err %v", created, err)
	}

	second, created, err := db.RegisterMovie(ctx, &Movie{FilePath: "/lib/copy-of-a.mp4", ContentHash: "h1"})
	if err != nil {
		t.Fatalf("second RegisterMovie failed: %v", err)
	}
	if created {
		t.Error("Expected hash match to reuse the existing movie")
	}
	if second.ID != first.ID {
		t.Errorf("Expected movie id %d, got %d", first.ID, second.ID)
	}
	if second.FilePath != "/lib/a.mp4" {
		t.Errorf("Existing path should be kept, got %q", second.FilePath)
	}

	movies, _ := db.ListMovies(ctx, 0, 0)
	if len(movies) != 1 {
		t.Errorf("Expected exactly 1 movie row, got %d", len(movies))
	}
}

func TestRegisterMovieUpdatesByPath(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	first := mustRegister(t, db, Movie{FilePath: "/lib/a.mp4", ContentHash: "old", DurationSeconds: 10})

	updated, created, err := db.RegisterMovie(ctx, &Movie{FilePath: "/lib/a.mp4", ContentHash: "new", DurationSeconds: 12})
	if err != nil {
		t.Fatalf("RegisterMovie failed: %v", err)
	}
	if created {
		t.Error("Expected path match to reuse the existing movie")
	}
	if updated.ID != first.ID || updated.ContentHash != "new" || updated.DurationSeconds != 12 {
		t.Errorf("Unexpected updated movie: %+v", updated)
	}
}

func TestRegisterMovieConcurrentSameHash(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan int64, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, _, err := db.RegisterMovie(ctx, &Movie{
				FilePath:    filepath.Join("/lib", "dup", string(rune('a'+i))+".mp4"),
				ContentHash: "same",
			})
			if err != nil {
				t.Errorf("RegisterMovie failed: %v", err)
				return
			}
			ids <- m.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	var first int64
	for id := range ids {
		if first == 0 {
			first = id
		}
		if id != first {
			t.Errorf("Expected every registration to resolve to movie %d, got %d", first, id)
		}
	}
}

func TestInsertMovieDuplicatePathIsTyped(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	mustRegister(t, db, Movie{FilePath: "/lib/a.mp4"})

	err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertMovie(&Movie{FilePath: "/lib/a.mp4"})
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate, got %v", err)
	}

	var se *StoreError
	if !errors.As(err, &se) || se.ErrorKind() != KindUniqueViolation {
		t.Errorf("Expected unique_violation StoreError, got %v", err)
	}
}

func TestInsertMosaicMissingForeignKeyIsTyped(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	batch, err := db.CreateMosaicBatch(ctx, nil, 1)
	if err != nil {
		t.Fatal(err)
	}

	err = db.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertMosaic(&Mosaic{MovieID: 9999, BatchID: batch.ID, FilePath: "/out/x.webp"})
	})
	if !errors.Is(err, ErrForeignKey) {
		t.Fatalf("Expected ErrForeignKey, got %v", err)
	}

	mosaics, _ := db.ListMosaicsByBatch(ctx, batch.ID)
	if len(mosaics) != 0 {
		t.Errorf("Expected no mosaic rows, got %d", len(mosaics))
	}
}

func TestBatchLifecycle(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	movie := mustRegister(t, db, Movie{FilePath: "/lib/a.mp4", ContentHash: "a"})
	settings := json.RawMessage(`{"density":"M"}`)

	batch, err := db.CreateMosaicBatch(ctx, settings, 1)
	if err != nil {
		t.Fatal(err)
	}
	if batch.Status != BatchStatusRunning {
		t.Errorf("New batch status = %s, want running", batch.Status)
	}

	err = db.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertMosaic(&Mosaic{MovieID: movie.ID, BatchID: batch.ID, FilePath: "/out/a.webp", Density: "M"})
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.FinishBatch(ctx, BatchKindMosaic, batch.ID, BatchStatusCompleted, "", 0); err != nil {
		t.Fatalf("FinishBatch failed: %v", err)
	}

	got, err := db.GetMosaicBatch(ctx, batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != BatchStatusCompleted || got.EndedAt == nil {
		t.Errorf("Unexpected finished batch: %+v", got)
	}
	if string(got.Settings) != string(settings) {
		t.Errorf("Settings = %s, want %s", got.Settings, settings)
	}

	// Terminal batches are immutable.
	err = db.FinishBatch(ctx, BatchKindMosaic, batch.ID, BatchStatusFailed, "late", 1)
	if !errors.Is(err, ErrBatchClosed) {
		t.Errorf("Expected ErrBatchClosed finishing twice, got %v", err)
	}

	err = db.FinishBatch(ctx, BatchKindMosaic, 12345, BatchStatusFailed, "", 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown batch, got %v", err)
	}
}

func TestCreateMosaicBatchWithAssetsIsAtomic(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	movie := mustRegister(t, db, Movie{FilePath: "/lib/a.mp4"})

	_, err := db.CreateMosaicBatchWithAssets(ctx, nil, []Mosaic{
		{MovieID: movie.ID, FilePath: "/out/1.webp"},
		{MovieID: movie.ID + 100, FilePath: "/out/2.webp"},
	})
	if !errors.Is(err, ErrForeignKey) {
		t.Fatalf("Expected ErrForeignKey, got %v", err)
	}

	batches, err := db.ListMosaicBatches(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 0 {
		t.Errorf("Expected rollback to leave no batches, got %d", len(batches))
	}

	batch, err := db.CreateMosaicBatchWithAssets(ctx, nil, []Mosaic{
		{MovieID: movie.ID, FilePath: "/out/1.webp"},
		{MovieID: movie.ID, FilePath: "/out/2.webp", Status: AssetStatusFailed, ErrorMessage: "ffmpeg"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if batch.Status != BatchStatusCompleted || batch.FailedCount != 1 {
		t.Errorf("Unexpected batch: %+v", batch)
	}

	mosaics, _ := db.ListMosaicsByBatch(ctx, batch.ID)
	if len(mosaics) != 2 {
		t.Errorf("Expected 2 mosaics, got %d", len(mosaics))
	}
}

func TestLatestMosaicAndPreviewLink(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	movie := mustRegister(t, db, Movie{FilePath: "/lib/a.mp4"})

	if _, err := db.LatestMosaicForMovie(ctx, movie.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound before any mosaic, got %v", err)
	}

	older := time.Now().Add(-time.Hour)
	_, err := db.CreateMosaicBatchWithAssets(ctx, nil, []Mosaic{
		{MovieID: movie.ID, FilePath: "/out/old.webp", Size: "small", CreatedAt: older},
		{MovieID: movie.ID, FilePath: "/out/new.webp", Size: "large"},
	})
	if err != nil {
		t.Fatal(err)
	}

	latest, err := db.LatestMosaicForMovie(ctx, movie.ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest.FilePath != "/out/new.webp" {
		t.Errorf("LatestMosaicForMovie = %s, want /out/new.webp", latest.FilePath)
	}

	exists, err := db.HasCompletedMosaic(ctx, movie.ID, "large", "", "")
	if err != nil || !exists {
		t.Errorf("HasCompletedMosaic = %v, %v", exists, err)
	}

	previewBatch, err := db.CreatePreviewBatch(ctx, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	err = db.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertPreview(&Preview{
			MovieID: movie.ID, BatchID: previewBatch.ID, MosaicID: &latest.ID,
			FilePath: "/out/a.mp4", PreviewType: "clip", Size: "320",
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	previews, err := db.ListPreviewsByBatch(ctx, previewBatch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(previews) != 1 || previews[0].MosaicID == nil || *previews[0].MosaicID != latest.ID {
		t.Errorf("Unexpected previews: %+v", previews)
	}
	// A preview referencing a missing mosaic is rejected.
	err = db.WithTx(ctx, func(tx *Tx) error {
		bad := int64(9999)
		return tx.InsertPreview(&Preview{MovieID: movie.ID, BatchID: previewBatch.ID, MosaicID: &bad, FilePath: "/x"})
	})
	if !errors.Is(err, ErrForeignKey) {
		t.Errorf("Expected ErrForeignKey for unknown mosaic, got %v", err)
	}
}

func TestLibraryItems(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	root := &LibraryItem{Kind: ItemKindFolder, Name: "lib", URL: "/lib"}
	child := &LibraryItem{Kind: ItemKindFolder, Name: "sub", URL: "/lib/sub"}
	movie := mustRegister(t, db, Movie{FilePath: "/lib/a.mp4"})

	err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.CreateLibraryItem(root); err != nil {
			return err
		}
		child.ParentID = &root.ID
		if err := tx.CreateLibraryItem(child); err != nil {
			return err
		}
		if err := tx.AttachMovie(root.ID, movie.ID); err != nil {
			return err
		}
		// Attaching twice is a no-op.
		if err := tx.AttachMovie(root.ID, movie.ID); err != nil {
			return err
		}
		if err := tx.MarkScanned(child.ID, time.Now()); err != nil {
			return err
		}
		return tx.MarkScanned(root.ID, time.Now())
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := db.GetLibraryItemByURL(ctx, "/lib")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Scanned() || got.ParentID != nil {
		t.Errorf("Unexpected root item: %+v", got)
	}

	if err := db.LoadSubtree(ctx, got); err != nil {
		t.Fatal(err)
	}
	if len(got.Children) != 1 || got.Children[0].URL != "/lib/sub" || got.Children[0].Parent != got {
		t.Errorf("Unexpected children: %+v", got.Children)
	}
	if len(got.Movies) != 1 || got.Movies[0].ID != movie.ID {
		t.Errorf("Unexpected movies: %+v", got.Movies)
	}

	if _, err := db.GetLibraryItemByURL(ctx, "/nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	err = db.WithTx(ctx, func(tx *Tx) error {
		return tx.CreateLibraryItem(&LibraryItem{Kind: ItemKindFolder, Name: "lib", URL: "/lib"})
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for repeated url, got %v", err)
	}
}

func TestPlaylists(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	a := mustRegister(t, db, Movie{FilePath: "/lib/a.mp4"})
	b := mustRegister(t, db, Movie{FilePath: "/lib/b.mp4"})
	c := mustRegister(t, db, Movie{FilePath: "/lib/c.mp4"})

	p, err := db.CreatePlaylist(ctx, "favourites")
	if err != nil {
		t.Fatal(err)
	}

	for i, m := range []*Movie{a, b, c} {
		item, err := db.AddPlaylistItem(ctx, p.ID, m.ID)
		if err != nil {
			t.Fatal(err)
		}
		if item.Position != i {
			t.Errorf("Item %d got position %d", i, item.Position)
		}
	}

	if err := db.RemovePlaylistItem(ctx, p.ID, 1); err != nil {
		t.Fatal(err)
	}
	if err := db.RemovePlaylistItem(ctx, p.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound removing twice, got %v", err)
	}

	item, err := db.AddPlaylistItem(ctx, p.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if item.Position != 3 {
		t.Errorf("Expected append after gap at position 3, got %d", item.Position)
	}

	if err := db.CompactPlaylist(ctx, p.ID); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetPlaylist(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	wantOrder := []int64{a.ID, c.ID, b.ID}
	if len(got.Items) != len(wantOrder) {
		t.Fatalf("Expected %d items, got %d", len(wantOrder), len(got.Items))
	}
	for i, it := range got.Items {
		if it.Position != i || it.MovieID != wantOrder[i] {
			t.Errorf("Item %d = position %d movie %d, want position %d movie %d", i, it.Position, it.MovieID, i, wantOrder[i])
		}
	}

	if _, err := db.AddPlaylistItem(ctx, p.ID, 424242); !errors.Is(err, ErrForeignKey) {
		t.Errorf("Expected ErrForeignKey for unknown movie, got %v", err)
	}

	if _, err := db.GetPlaylist(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	lists, err := db.ListPlaylists(ctx)
	if err != nil || len(lists) != 1 {
		t.Errorf("ListPlaylists = %v, %v", lists, err)
	}
}

func TestMetadata(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetMetadata(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := db.SetMetadata(ctx, "k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMetadata(ctx, "k", "v2"); err != nil {
		t.Fatal(err)
	}
	if v, err := db.GetMetadata(ctx, "k"); err != nil || v != "v2" {
		t.Errorf("GetMetadata = %q, %v", v, err)
	}

	at, err := db.LegacyMigrationCompletedAt(ctx)
	if err != nil || !at.IsZero() {
		t.Errorf("LegacyMigrationCompletedAt = %v, %v", at, err)
	}
}

// createLegacyStore writes a database file holding only the flat legacy table.
func createLegacyStore(t *testing.T, dbPath string) {
	t.Helper()

	raw, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close()

	_, err = raw.Exec(`
		CREATE TABLE mosaics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			movie_file_path TEXT,
			mosaic_file_path TEXT,
			size TEXT,
			density TEXT,
			layout TEXT,
			content_hash TEXT,
			creation_date INTEGER
		);
		INSERT INTO mosaics (movie_file_path, mosaic_file_path, size, density, layout, creation_date)
		VALUES ('/x/a.mp4', '/m/a.jpg', 'large', 'M', 'auto', 1600000000);
	`)
	if err != nil {
		t.Fatal(err)
	}
}

func TestLegacySchemaDetection(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")
	createLegacyStore(t, dbPath)
	ctx := context.Background()

	db, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("New() on legacy store failed: %v", err)
	}
	defer db.Close()

	legacy, err := db.HasLegacySchema(ctx)
	if err != nil || !legacy {
		t.Fatalf("HasLegacySchema = %v, %v", legacy, err)
	}

	n, err := db.CountLegacyRows(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountLegacyRows = %d, %v", n, err)
	}

	var previews int
	if err := db.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = 'previews'").Scan(&previews); err != nil {
		t.Fatal(err)
	}
	if previews != 0 {
		t.Error("previews table should wait for the migration")
	}

	stats, err := db.RegistryStats(ctx)
	if err != nil {
		t.Fatalf("RegistryStats on legacy store failed: %v", err)
	}
	if stats.Mosaics != 0 {
		t.Errorf("Legacy rows should not count as mosaics, got %d", stats.Mosaics)
	}

	err = db.WithExclusiveTx(ctx, func(tx *Tx) error {
		if err := tx.RenameLegacyTable(); err != nil {
			return err
		}
		if err := tx.CreateSchema(); err != nil {
			return err
		}
		rows, err := tx.ReadLegacyMosaics()
		if err != nil {
			return err
		}
		if len(rows) != 1 || rows[0].MovieFilePath != "/x/a.mp4" || rows[0].ContentHash != "" {
			t.Errorf("Unexpected legacy rows: %+v", rows)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	legacy, err = db.HasLegacySchema(ctx)
	if err != nil || legacy {
		t.Errorf("HasLegacySchema after rename = %v, %v", legacy, err)
	}
	if _, err := db.CountLegacyRows(ctx); !errors.Is(err, ErrSchema) {
		t.Errorf("Expected ErrSchema without legacy table, got %v", err)
	}
}

func TestRegistryStats(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	movie := mustRegister(t, db, Movie{FilePath: "/lib/a.mp4"})
	if _, err := db.CreateMosaicBatchWithAssets(ctx, nil, []Mosaic{{MovieID: movie.ID, FilePath: "/o.webp"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreatePlaylist(ctx, "p"); err != nil {
		t.Fatal(err)
	}

	stats, err := db.RegistryStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Movies != 1 || stats.MosaicBatches != 1 || stats.Mosaics != 1 || stats.Playlists != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestGetMoviesByIDs(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	a := mustRegister(t, db, Movie{FilePath: "/lib/a.mp4"})
	b := mustRegister(t, db, Movie{FilePath: "/lib/b.mp4"})

	movies, err := db.GetMoviesByIDs(ctx, []int64{b.ID, a.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(movies) != 2 || movies[0].ID != b.ID || movies[1].ID != a.ID {
		t.Errorf("Unexpected order: %+v", movies)
	}

	if _, err := db.GetMoviesByIDs(ctx, []int64{a.ID, 999}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestVacuum(t *testing.T) {
	db, _ := setupTestDB(t)
	if err := db.Vacuum(context.Background()); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}
}

func TestWriteTimeoutExcludesLockWait(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	saved := defaultTimeout
	defaultTimeout = 100 * time.Millisecond
	t.Cleanup(func() { defaultTimeout = saved })

	held := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- db.WithTx(ctx, func(tx *Tx) error {
			close(held)
			time.Sleep(3 * defaultTimeout)
			return tx.SetMetadata("holder", "1")
		})
	}()
	<-held

	if err := db.SetMetadata(ctx, "waiter", "1"); err != nil {
		t.Fatalf("SetMetadata() after waiting for the write lock error = %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("holding transaction error = %v", err)
	}
	if v, err := db.GetMetadata(ctx, "waiter"); err != nil || v != "1" {
		t.Errorf("GetMetadata(waiter) = %q, %v", v, err)
	}
}
