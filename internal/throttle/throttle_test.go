package throttle

import (
	"context"
	"errors"
	"math"
	"runtime/debug"
	"sync"
	"testing"
	"time"
)

type fakeSampler struct {
	mu     sync.Mutex
	sample Sample
	err    error
	calls  int
}

func (f *fakeSampler) Sample(context.Context) (Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.sample, f.err
}

func (f *fakeSampler) set(s Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sample = s
}

func testConfig(minP, initial, maxP int) Config {
	return Config{
		MinPermits:            minP,
		MaxPermits:            maxP,
		InitialPermits:        initial,
		Interval:              5 * time.Millisecond,
		MemoryCriticalPercent: 90,
		MemoryHighPercent:     80,
		MemoryTargetPercent:   60,
		CPUHighPercent:        90,
		CPUTargetPercent:      50,
	}
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name                       string
		in                         Config
		wantMin, wantInit, wantMax int
	}{
		{"initial above max", Config{MinPermits: 1, MaxPermits: 2, InitialPermits: 5}, 1, 2, 2},
		{"max below min", Config{MinPermits: 3, MaxPermits: 1, InitialPermits: 1}, 3, 3, 3},
		{"initial below min", Config{MinPermits: 2, MaxPermits: 4, InitialPermits: 1}, 2, 2, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.normalize()
			if got.MinPermits != tt.wantMin || got.InitialPermits != tt.wantInit || got.MaxPermits != tt.wantMax {
				t.Errorf("normalize() = min %d init %d max %d, want %d %d %d",
					got.MinPermits, got.InitialPermits, got.MaxPermits, tt.wantMin, tt.wantInit, tt.wantMax)
			}
			if got.Interval <= 0 || got.MemoryHighPercent <= 0 {
				t.Error("normalize() left zero thresholds")
			}
		})
	}
}

func TestAdjustRules(t *testing.T) {
	tests := []struct {
		name   string
		start  int
		sample Sample
		want   int
	}{
		{"critical memory drops to floor", 4, Sample{MemoryPercent: 95}, 1},
		{"critical heap drops to floor", 4, Sample{MemoryPercent: 10, HeapPercent: 91}, 1},
		{"high memory removes one", 4, Sample{MemoryPercent: 85}, 3},
		{"high cpu removes one", 4, Sample{MemoryPercent: 10, CPUPercent: 95}, 3},
		{"headroom adds one", 4, Sample{MemoryPercent: 10, CPUPercent: 10}, 5},
		{"growth capped at max", 6, Sample{MemoryPercent: 10, CPUPercent: 10}, 6},
		{"shrink capped at min", 1, Sample{MemoryPercent: 85}, 1},
		{"between target and high holds", 4, Sample{MemoryPercent: 70, CPUPercent: 10}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(testConfig(1, tt.start, 6), nil)
			c.adjust(tt.sample)
			if got := c.Capacity(); got != tt.want {
				t.Errorf("Capacity() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAdmitBlocksUntilRelease(t *testing.T) {
	c := New(testConfig(1, 1, 1), nil)
	ctx := context.Background()

	first, err := c.Admit(ctx)
	if err != nil {
		t.Fatal(err)
	}

	admitted := make(chan *Permit)
	go func() {
		p, err := c.Admit(ctx)
		if err != nil {
			t.Errorf("second Admit failed: %v", err)
			close(admitted)
			return
		}
		admitted <- p
	}()

	select {
	case <-admitted:
		t.Fatal("second Admit should block while capacity is exhausted")
	case <-time.After(30 * time.Millisecond):
	}

	first.Release()

	select {
	case p := <-admitted:
		p.Release()
	case <-time.After(time.Second):
		t.Fatal("second Admit did not proceed after release")
	}

	if c.InUse() != 0 {
		t.Errorf("InUse() = %d, want 0", c.InUse())
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	c := New(testConfig(1, 2, 2), nil)

	p, err := c.Admit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	p.Release()
	p.Release()

	if c.InUse() != 0 {
		t.Errorf("InUse() = %d after double release, want 0", c.InUse())
	}

	var nilPermit *Permit
	nilPermit.Release()
}

func TestAdmitCancellation(t *testing.T) {
	c := New(testConfig(1, 1, 1), nil)
	held, err := c.Admit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release()

	t.Run("cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err := c.Admit(ctx)
		if !errors.Is(err, ErrAdmissionCancelled) {
			t.Errorf("Admit() error = %v, want ErrAdmissionCancelled", err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Admit() error = %v, should wrap context.Canceled", err)
		}
	})

	t.Run("deadline is still a cancellation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := c.Admit(ctx)
		if !errors.Is(err, ErrAdmissionCancelled) {
			t.Errorf("Admit() error = %v, want ErrAdmissionCancelled", err)
		}
	})

	t.Run("already cancelled with free capacity", func(t *testing.T) {
		free := New(testConfig(1, 1, 1), nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := free.Admit(ctx); !errors.Is(err, ErrAdmissionCancelled) {
			t.Errorf("Admit() error = %v, want ErrAdmissionCancelled", err)
		}
		if free.InUse() != 0 {
			t.Errorf("InUse() = %d, want 0", free.InUse())
		}
	})

	if c.Waiting() != 0 {
		t.Errorf("Waiting() = %d after cancellations, want 0", c.Waiting())
	}
}

func TestDoReleasesOnErrorAndPanic(t *testing.T) {
	c := New(testConfig(1, 1, 1), nil)
	ctx := context.Background()

	wantErr := errors.New("render failed")
	if err := c.Do(ctx, func(context.Context) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("Do() error = %v, want %v", err, wantErr)
	}
	if c.InUse() != 0 {
		t.Errorf("InUse() = %d after error, want 0", c.InUse())
	}

	func() {
		defer func() { _ = recover() }()
		_ = c.Do(ctx, func(context.Context) error { panic("boom") })
	}()
	if c.InUse() != 0 {
		t.Errorf("InUse() = %d after panic, want 0", c.InUse())
	}
}

func TestGrowthWakesWaiters(t *testing.T) {
	c := New(testConfig(1, 1, 3), nil)
	ctx := context.Background()

	held, err := c.Admit(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p, err := c.Admit(ctx)
		if err != nil {
			t.Errorf("Admit failed: %v", err)
			return
		}
		p.Release()
	}()

	// Let the goroutine start waiting.
	deadline := time.Now().Add(time.Second)
	for c.Waiting() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	c.adjust(Sample{MemoryPercent: 10, CPUPercent: 10})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by capacity growth")
	}
}

func TestShrinkKeepsIssuedPermits(t *testing.T) {
	c := New(testConfig(1, 3, 3), nil)
	ctx := context.Background()

	var permits []*Permit
	for i := 0; i < 3; i++ {
		p, err := c.Admit(ctx)
		if err != nil {
			t.Fatal(err)
		}
		permits = append(permits, p)
	}

	c.adjust(Sample{MemoryPercent: 99})
	if c.Capacity() != 1 || c.InUse() != 3 {
		t.Errorf("Capacity/InUse = %d/%d, want 1/3", c.Capacity(), c.InUse())
	}

	for _, p := range permits {
		p.Release()
	}

	shortCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	p, err := c.Admit(shortCtx)
	if err != nil {
		t.Fatalf("Admit after releases failed: %v", err)
	}
	p.Release()
}

func TestStartAdjustsFromSampler(t *testing.T) {
	sampler := &fakeSampler{sample: Sample{MemoryPercent: 10, CPUPercent: 10}}
	c := New(testConfig(1, 1, 4), sampler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for c.Capacity() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Capacity() != 4 {
		t.Fatalf("Capacity() = %d, want growth to 4", c.Capacity())
	}

	sampler.set(Sample{MemoryPercent: 95})
	deadline = time.Now().Add(2 * time.Second)
	for c.Capacity() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Capacity() != 1 {
		t.Errorf("Capacity() = %d, want floor of 1", c.Capacity())
	}
}

func TestSampleMemory(t *testing.T) {
	if got := (Sample{MemoryPercent: 40, HeapPercent: 70}).Memory(); got != 70 {
		t.Errorf("Memory() = %v, want 70", got)
	}
	if got := (Sample{MemoryPercent: 40}).Memory(); got != 40 {
		t.Errorf("Memory() = %v, want 40", got)
	}
}

func TestConfigureMemoryLimit(t *testing.T) {
	original := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(original) })

	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "1073741824")
	t.Setenv("MEMORY_RATIO", "0.5")

	result := ConfigureMemoryLimit()
	if !result.Configured || result.Source != "MEMORY_LIMIT" {
		t.Fatalf("Unexpected result: %+v", result)
	}
	if result.GoMemLimit != 536870912 {
		t.Errorf("GoMemLimit = %d, want 536870912", result.GoMemLimit)
	}
	if got := debug.SetMemoryLimit(-1); got != 536870912 {
		t.Errorf("runtime limit = %d, want 536870912", got)
	}
	if heapPercent() <= 0 || heapPercent() > 100 {
		t.Errorf("heapPercent() = %v with a limit set", heapPercent())
	}
}

func TestConfigureMemoryLimitInvalid(t *testing.T) {
	original := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(original) })

	t.Setenv("GOMEMLIMIT", "")

	for _, value := range []string{"", "lots", "-5"} {
		t.Setenv("MEMORY_LIMIT", value)
		if result := ConfigureMemoryLimit(); result.Configured {
			t.Errorf("MEMORY_LIMIT=%q should not configure a limit: %+v", value, result)
		}
	}

	t.Setenv("MEMORY_LIMIT", "1099511627776")
	t.Setenv("MEMORY_RATIO", "7")
	if result := ConfigureMemoryLimit(); result.Ratio != DefaultMemoryRatio {
		t.Errorf("Out of range ratio should fall back to default, got %v", result.Ratio)
	}
}

func TestHeapPercentWithoutLimit(t *testing.T) {
	original := debug.SetMemoryLimit(math.MaxInt64)
	t.Cleanup(func() { debug.SetMemoryLimit(original) })

	if got := heapPercent(); got != 0 {
		t.Errorf("heapPercent() = %v without a limit, want 0", got)
	}
}
