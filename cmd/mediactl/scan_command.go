package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"media-registry/internal/database"
	"media-registry/internal/scanner"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var showTree bool

	cmd := &cobra.Command{
		Use:   "scan PATH",
		Short: "Scan a directory tree into the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}
			if _, err := os.Stat(root); err != nil {
				return err
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ctrl, err := ctx.controller(cmd.Context())
			if err != nil {
				return err
			}

			return ctx.withStore(cmd.Context(), func(db *database.Database) error {
				s := scanner.New(db, scanner.NewFFprobeExtractor(cfg.FFprobePath, cfg.ProbeTimeout), ctrl)
				item, scanErr := s.Scan(cmd.Context(), root, nil)

				out := cmd.OutOrStdout()
				printScanProgress(cmd, s.Progress())
				if item != nil {
					if showTree {
						fmt.Fprintln(out, "Tree:")
						printTree(cmd, item, 1)
					}
					printScanErrors(cmd, item)
				}
				return scanErr
			})
		},
	}

	cmd.Flags().BoolVar(&showTree, "tree", false, "Print the scanned folder tree")
	return cmd
}

func printScanProgress(cmd *cobra.Command, p scanner.Progress) {
	rows := [][]string{
		{"Folders", strconv.FormatInt(p.FoldersDiscovered, 10)},
		{"Files", strconv.FormatInt(p.FilesDiscovered, 10)},
		{"Registered", strconv.FormatInt(p.VideosRegistered, 10)},
		{"Deduplicated", strconv.FormatInt(p.VideosDeduplicated, 10)},
		{"Skipped", strconv.FormatInt(p.Skipped, 10)},
		{"Errors", strconv.FormatInt(p.Errors, 10)},
	}
	printTable(cmd.OutOrStdout(), []string{"Scan", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}

func printTree(cmd *cobra.Command, item *database.LibraryItem, depth int) {
	out := cmd.OutOrStdout()
	indent := fmt.Sprintf("%*s", depth*2, "")
	fmt.Fprintf(out, "%s%s/ (%d movies)\n", indent, item.Name, len(item.Movies))
	for _, m := range item.Movies {
		fmt.Fprintf(out, "%s  %s  %s\n", indent, m.Name, humanBytes(m.FileSize))
	}
	for _, child := range item.Children {
		printTree(cmd, child, depth+1)
	}
}

func printScanErrors(cmd *cobra.Command, item *database.LibraryItem) {
	for _, msg := range item.ErrorMessages() {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", item.URL, msg)
	}
	for _, child := range item.Children {
		printScanErrors(cmd, child)
	}
}
