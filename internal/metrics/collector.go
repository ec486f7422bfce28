package metrics

import (
	"context"
	"sync"
	"time"

	"media-registry/internal/logging"
)

const collectTimeout = 10 * time.Second

// StatsProvider reports row counts for the registry tables.
type StatsProvider interface {
	RegistryStats(ctx context.Context) (Stats, error)
}

// Stats holds the row counts exported as gauges.
type Stats struct {
	Movies         int
	Folders        int
	MosaicBatches  int
	Mosaics        int
	PreviewBatches int
	Previews       int
	Playlists      int
}

// rows pairs each table label with its count.
func (s Stats) rows() map[string]int {
	return map[string]int{
		"movies":          s.Movies,
		"library_folders": s.Folders,
		"mosaic_batches":  s.MosaicBatches,
		"mosaics":         s.Mosaics,
		"preview_batches": s.PreviewBatches,
		"previews":        s.Previews,
		"playlists":       s.Playlists,
	}
}

// Collector refreshes the RegistryRows gauges on a fixed interval. A failed
// refresh leaves the previous values in place.
type Collector struct {
	provider StatsProvider
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewCollector returns a collector polling provider every interval.
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		provider: provider,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start collects once immediately and then on every tick until Stop.
func (c *Collector) Start() {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			c.collect()
			select {
			case <-ticker.C:
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight refresh to finish. It is
// safe to call more than once, but only after Start.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Collector) collect() {
	if c.provider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	stats, err := c.provider.RegistryStats(ctx)
	if err != nil {
		logging.Warn("Registry gauge refresh failed: %v", err)
		return
	}
	for table, n := range stats.rows() {
		RegistryRows.WithLabelValues(table).Set(float64(n))
	}
	logging.Debug("Registry gauges refreshed: movies=%d mosaics=%d previews=%d playlists=%d",
		stats.Movies, stats.Mosaics, stats.Previews, stats.Playlists)
}
