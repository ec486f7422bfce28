package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"media-registry/internal/database"
	"media-registry/internal/logging"
	"media-registry/internal/pipeline"
	"media-registry/internal/render"
)

type generateOptions struct {
	movieIDs     []int64
	all          bool
	failFast     bool
	skipExisting bool
	linkMosaic   bool
	quiet        bool

	size         string
	density      string
	layout       string
	format       string
	quality      int
	noTimestamps bool

	previewType string
	duration    float64
	segments    int
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:       "generate mosaic|preview",
		Short:     "Generate mosaics or previews as one batch",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(pipeline.KindMosaic), string(pipeline.KindPreview)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := pipeline.Kind(args[0])
			settings, err := opts.settings(kind)
			if err != nil {
				return err
			}
			if opts.all == (len(opts.movieIDs) > 0) {
				return errors.New("give either --movie or --all")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ctrl, err := ctx.controller(cmd.Context())
			if err != nil {
				return err
			}

			if err := render.InitVips(); err != nil {
				logging.Warn("libvips unavailable, WebP mosaics will fail: %v", err)
			}
			defer render.ShutdownVips()

			renderer, err := render.New(render.Config{
				FFmpegPath: cfg.FFmpegPath,
				OutputDir:  cfg.OutputDir,
				Timeout:    cfg.GenerationTimeout,
			})
			if err != nil {
				return err
			}

			return ctx.withStore(cmd.Context(), func(db *database.Database) error {
				var movies []database.Movie
				if opts.all {
					movies, err = db.ListMovies(cmd.Context(), 0, 0)
				} else {
					movies, err = db.GetMoviesByIDs(cmd.Context(), opts.movieIDs)
				}
				if err != nil {
					return err
				}
				if len(movies) == 0 {
					return errors.New("no movies registered")
				}

				p := pipeline.New(db, renderer, ctrl)
				if !opts.quiet {
					p.OnProgress = func(pr pipeline.Progress) {
						if pr.Item == nil {
							return
						}
						line := fmt.Sprintf("[%3.0f%%] movie %d %s", pr.Percent, pr.Item.MovieID, pr.Item.Status)
						if pr.Item.Error != "" {
							line += ": " + pr.Item.Error
						}
						fmt.Fprintln(cmd.ErrOrStderr(), line)
					}
				}

				batch, runErr := p.RunBatch(cmd.Context(), kind, movies, settings)
				if batch != nil {
					printBatches(cmd, []database.Batch{*batch})
				}
				return runErr
			})
		},
	}

	flags := cmd.Flags()
	flags.Int64SliceVar(&opts.movieIDs, "movie", nil, "Movie IDs to include (repeatable or comma separated)")
	flags.BoolVar(&opts.all, "all", false, "Include every registered movie")
	flags.BoolVar(&opts.failFast, "fail-fast", false, "Roll back the whole batch on the first failure")
	flags.BoolVar(&opts.skipExisting, "skip-existing", false, "Skip movies that already have a matching asset")
	flags.BoolVar(&opts.linkMosaic, "link-mosaic", false, "Link previews to the movie's latest mosaic")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print per-movie progress")

	flags.StringVar(&opts.size, "size", "", "Size preset: small, medium or large")
	flags.StringVar(&opts.density, "density", "", "Mosaic frame density: low, medium, high or ultra")
	flags.StringVar(&opts.layout, "layout", "", "Mosaic layout: grid or wide")
	flags.StringVar(&opts.format, "format", "", "Output format")
	flags.IntVar(&opts.quality, "quality", 0, "Mosaic encoder quality (1-100)")
	flags.BoolVar(&opts.noTimestamps, "no-timestamps", false, "Omit frame timestamps on mosaics")

	flags.StringVar(&opts.previewType, "type", "", "Preview type: clip or montage")
	flags.Float64Var(&opts.duration, "duration", 0, "Preview duration in seconds")
	flags.IntVar(&opts.segments, "segments", 0, "Montage segment count")

	return cmd
}

// settings builds validated batch settings from the defaults and the flags.
func (o generateOptions) settings(kind pipeline.Kind) (pipeline.Settings, error) {
	s := pipeline.Settings{
		Mosaic:       render.DefaultMosaicSettings(),
		Preview:      render.DefaultPreviewSettings(),
		FailFast:     o.failFast,
		SkipExisting: o.skipExisting,
		LinkMosaic:   o.linkMosaic,
	}

	switch kind {
	case pipeline.KindMosaic:
		setIf(&s.Mosaic.Size, o.size)
		setIf(&s.Mosaic.Density, o.density)
		setIf(&s.Mosaic.Layout, o.layout)
		setIf(&s.Mosaic.Format, o.format)
		if o.quality != 0 {
			s.Mosaic.Quality = o.quality
		}
		if o.noTimestamps {
			s.Mosaic.Timestamps = false
		}
		return s, s.Mosaic.Validate()
	case pipeline.KindPreview:
		setIf(&s.Preview.Type, o.previewType)
		setIf(&s.Preview.Size, o.size)
		setIf(&s.Preview.Format, o.format)
		if o.duration > 0 {
			s.Preview.DurationSeconds = o.duration
		}
		if o.segments > 0 {
			s.Preview.Segments = o.segments
		}
		return s, s.Preview.Validate()
	}
	return s, fmt.Errorf("%w: %q", pipeline.ErrInvalidKind, kind)
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func printBatches(cmd *cobra.Command, batches []database.Batch) {
	if len(batches) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No batches")
		return
	}
	rows := make([][]string, 0, len(batches))
	for _, b := range batches {
		rows = append(rows, []string{
			strconv.FormatInt(b.ID, 10),
			string(b.Kind),
			string(b.Status),
			strconv.Itoa(b.ItemCount),
			strconv.Itoa(b.FailedCount),
			formatStamp(&b.StartedAt),
			formatStamp(b.EndedAt),
			b.ErrorMessage,
		})
	}
	printTable(cmd.OutOrStdout(),
		[]string{"ID", "Kind", "Status", "Items", "Failed", "Started", "Ended", "Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight})
}
