package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"media-registry/internal/database"
	"media-registry/internal/playlist"
)

func newPlaylistCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playlist",
		Short: "List and import playlists",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List playlists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(db *database.Database) error {
				playlists, err := db.ListPlaylists(cmd.Context())
				if err != nil {
					return err
				}
				if len(playlists) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No playlists")
					return nil
				}
				rows := make([][]string, 0, len(playlists))
				for _, p := range playlists {
					rows = append(rows, []string{
						strconv.FormatInt(p.ID, 10),
						p.Name,
						formatStamp(&p.CreatedAt),
						formatStamp(&p.UpdatedAt),
					})
				}
				printTable(cmd.OutOrStdout(), []string{"ID", "Name", "Created", "Updated"}, rows,
					[]columnAlignment{alignRight})
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Show a playlist's items in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid playlist id %q", args[0])
			}
			return ctx.withStore(cmd.Context(), func(db *database.Database) error {
				p, err := db.GetPlaylist(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%d items)\n", p.Name, len(p.Items))
				rows := make([][]string, 0, len(p.Items))
				for _, item := range p.Items {
					rows = append(rows, []string{
						strconv.Itoa(item.Position),
						strconv.FormatInt(item.MovieID, 10),
						item.MovieName,
						item.MoviePath,
					})
				}
				printTable(cmd.OutOrStdout(), []string{"#", "Movie", "Name", "Path"}, rows,
					[]columnAlignment{alignRight, alignRight})
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Import a Windows Media Player (.wpl) playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(db *database.Database) error {
				result, err := playlist.NewImporter(db).ImportWPL(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Imported %q as playlist %d: %d resolved, %d unresolved\n",
					result.Playlist.Name, result.Playlist.ID, len(result.Resolved), len(result.Unresolved))
				for _, u := range result.Unresolved {
					fmt.Fprintf(out, "  unresolved %s: %s\n", u.Entry.Src, u.Reason)
				}
				return nil
			})
		},
	})

	return cmd
}
