package database

import (
	"context"

	"media-registry/internal/metrics"
)

type countQuery struct {
	query string
	dest  *int
}

// RegistryStats counts the rows of each registry table. Asset tables count
// as empty while the legacy schema is unmigrated.
func (d *Database) RegistryStats(ctx context.Context) (metrics.Stats, error) {
	var stats metrics.Stats
	err := d.read(ctx, "registry_stats", func(ctx context.Context, q querier) error {
		legacy, err := hasLegacySchema(ctx, q)
		if err != nil {
			return err
		}

		counts := []countQuery{
			{"SELECT COUNT(*) FROM movies", &stats.Movies},
			{"SELECT COUNT(*) FROM library_items WHERE kind = 'folder'", &stats.Folders},
			{"SELECT COUNT(*) FROM mosaic_batches", &stats.MosaicBatches},
			{"SELECT COUNT(*) FROM preview_batches", &stats.PreviewBatches},
			{"SELECT COUNT(*) FROM playlists", &stats.Playlists},
		}
		if !legacy {
			counts = append(counts,
				countQuery{"SELECT COUNT(*) FROM mosaics", &stats.Mosaics},
				countQuery{"SELECT COUNT(*) FROM previews", &stats.Previews},
			)
		}

		for _, c := range counts {
			if err := q.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
				return err
			}
		}
		return nil
	})
	return stats, err
}
