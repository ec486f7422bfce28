package filesystem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"
)

type recordingObserver struct {
	mu       sync.Mutex
	attempts map[string]int
	success  map[string]int
	failures map[string]int
	ops      map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		attempts: map[string]int{},
		success:  map[string]int{},
		failures: map[string]int{},
		ops:      map[string]int{},
	}
}

func (r *recordingObserver) ObserveOperation(op string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op]++
}

func (r *recordingObserver) ObserveRetryAttempt(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[op]++
}

func (r *recordingObserver) ObserveRetrySuccess(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.success[op]++
}

func (r *recordingObserver) ObserveRetryFailure(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[op]++
}

func withObserver(t *testing.T) *recordingObserver {
	t.Helper()
	original := defaultObserver
	obs := newRecordingObserver()
	SetObserver(obs)
	t.Cleanup(func() { defaultObserver = original })
	return obs
}

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
}

func TestIsStale(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "ESTALE error", err: syscall.ESTALE, want: true},
		{name: "wrapped ESTALE", err: &os.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}, want: true},
		{name: "ENOENT error", err: syscall.ENOENT, want: false},
		{name: "generic error", err: os.ErrNotExist, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isStale(tt.err); got != tt.want {
				t.Errorf("isStale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithRetry_RecoversFromStaleHandle(t *testing.T) {
	obs := withObserver(t)

	calls := 0
	got, err := withRetry(context.Background(), "stat", "/nfs/movie.mkv", fastConfig(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, syscall.ESTALE
		}
		return 42, nil
	})

	if err != nil {
		t.Fatalf("withRetry() error = %v", err)
	}
	if got != 42 {
		t.Errorf("withRetry() = %d, want 42", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if obs.attempts["stat"] != 2 {
		t.Errorf("retry attempts = %d, want 2", obs.attempts["stat"])
	}
	if obs.success["stat"] != 1 {
		t.Errorf("retry successes = %d, want 1", obs.success["stat"])
	}
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	obs := withObserver(t)

	calls := 0
	_, err := withRetry(context.Background(), "readdir", "/nfs/dir", fastConfig(), func() (struct{}, error) {
		calls++
		return struct{}{}, syscall.ESTALE
	})

	if !errors.Is(err, syscall.ESTALE) {
		t.Fatalf("withRetry() error = %v, want ESTALE", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if obs.failures["readdir"] != 1 {
		t.Errorf("retry failures = %d, want 1", obs.failures["readdir"])
	}
}

func TestWithRetry_DoesNotRetryOtherErrors(t *testing.T) {
	withObserver(t)

	calls := 0
	_, err := withRetry(context.Background(), "open", "/x", fastConfig(), func() (int, error) {
		calls++
		return 0, os.ErrPermission
	})

	if !errors.Is(err, os.ErrPermission) {
		t.Fatalf("withRetry() error = %v, want ErrPermission", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetry_StopsOnCancel(t *testing.T) {
	withObserver(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	config := RetryConfig{MaxRetries: 5, InitialBackoff: time.Second, MaxBackoff: time.Second}
	start := time.Now()
	_, err := withRetry(ctx, "stat", "/x", config, func() (int, error) {
		return 0, syscall.ESTALE
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("withRetry() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("withRetry did not stop promptly after cancellation")
	}
}

func TestStatWithRetry_Success(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	info, err := StatWithRetry(context.Background(), testFile, fastConfig())
	if err != nil {
		t.Fatalf("StatWithRetry() error = %v, want nil", err)
	}
	if info.Size() != 4 {
		t.Errorf("FileInfo.Size() = %d, want 4", info.Size())
	}
}

func TestStatWithRetry_NotExist(t *testing.T) {
	nonExistent := filepath.Join(t.TempDir(), "nonexistent.txt")

	info, err := StatWithRetry(context.Background(), nonExistent, fastConfig())
	if !os.IsNotExist(err) {
		t.Errorf("StatWithRetry() error = %v, want os.IsNotExist", err)
	}
	if info != nil {
		t.Error("StatWithRetry() returned non-nil FileInfo for non-existent file")
	}
}

func TestReadDirWithRetry(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"a.mp4", "b.mov"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(tmpDir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadDirWithRetry(context.Background(), tmpDir, fastConfig())
	if err != nil {
		t.Fatalf("ReadDirWithRetry() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("len(entries) = %d, want 3", len(entries))
	}
}

func TestOpenWithRetry_Success(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.txt")
	content := []byte("test content")
	if err := os.WriteFile(testFile, content, 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	file, err := OpenWithRetry(context.Background(), testFile, fastConfig())
	if err != nil {
		t.Fatalf("OpenWithRetry() error = %v, want nil", err)
	}
	defer file.Close()

	buf := make([]byte, len(content))
	if _, err := file.Read(buf); err != nil {
		t.Errorf("file.Read() error = %v", err)
	}
	if !bytes.Equal(buf, content) {
		t.Errorf("file.Read() content = %q, want %q", string(buf), string(content))
	}
}

func BenchmarkStatWithRetry_Success(b *testing.B) {
	testFile := filepath.Join(b.TempDir(), "test.txt")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		b.Fatalf("Failed to create test file: %v", err)
	}

	config := DefaultRetryConfig()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := StatWithRetry(ctx, testFile, config); err != nil {
			b.Fatalf("StatWithRetry error: %v", err)
		}
	}
}
