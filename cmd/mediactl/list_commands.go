package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"media-registry/internal/database"
	"media-registry/internal/startup"
)

func newMoviesCommand(ctx *commandContext) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "movies",
		Short: "List registered movies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(db *database.Database) error {
				movies, err := db.ListMovies(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}
				if len(movies) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No movies")
					return nil
				}
				rows := make([][]string, 0, len(movies))
				for _, m := range movies {
					rows = append(rows, []string{
						strconv.FormatInt(m.ID, 10),
						m.Name,
						formatDuration(m.DurationSeconds),
						fmt.Sprintf("%dx%d", m.Width, m.Height),
						humanBytes(m.FileSize),
						m.FilePath,
					})
				}
				printTable(cmd.OutOrStdout(),
					[]string{"ID", "Name", "Duration", "Size", "File size", "Path"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight})
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum movies to list, 0 for all")
	cmd.Flags().IntVar(&offset, "offset", 0, "Movies to skip")
	return cmd
}

func newBatchesCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string
	var limit int

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List mosaic and preview batches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := []database.BatchKind{database.BatchKindMosaic, database.BatchKindPreview}
			if kindFlag != "" {
				kind := database.BatchKind(kindFlag)
				if !kind.Valid() {
					return fmt.Errorf("unknown batch kind %q", kindFlag)
				}
				kinds = []database.BatchKind{kind}
			}

			return ctx.withStore(cmd.Context(), func(db *database.Database) error {
				var batches []database.Batch
				for _, kind := range kinds {
					list, err := db.ListBatches(cmd.Context(), kind, limit)
					if err != nil {
						return err
					}
					batches = append(batches, list...)
				}
				sort.SliceStable(batches, func(i, j int) bool {
					return batches[i].StartedAt.After(batches[j].StartedAt)
				})
				if limit > 0 && len(batches) > limit {
					batches = batches[:limit]
				}
				printBatches(cmd, batches)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", "", "Only list batches of this kind (mosaic or preview)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum batches to list, 0 for all")
	return cmd
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show registry row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(db *database.Database) error {
				stats, err := db.RegistryStats(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Movies", strconv.Itoa(stats.Movies)},
					{"Folders", strconv.Itoa(stats.Folders)},
					{"Mosaic batches", strconv.Itoa(stats.MosaicBatches)},
					{"Mosaics", strconv.Itoa(stats.Mosaics)},
					{"Preview batches", strconv.Itoa(stats.PreviewBatches)},
					{"Previews", strconv.Itoa(stats.Previews)},
					{"Playlists", strconv.Itoa(stats.Playlists)},
				}
				printTable(cmd.OutOrStdout(), []string{"Table", "Rows"}, rows, []columnAlignment{alignLeft, alignRight})
				return nil
			})
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := startup.GetBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "mediactl %s (%s, %s/%s)\n", info.Version, info.GoVersion, info.OS, info.Arch)
			return nil
		},
	}
}
