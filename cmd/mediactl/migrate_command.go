package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"media-registry/internal/database"
	"media-registry/internal/migration"
)

// stdinIsTerminal is replaced in tests.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate a legacy registry to the normalized schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(db *database.Database) error {
				engine := migration.NewEngine(db)
				pending, err := engine.Pending(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !pending {
					fmt.Fprintln(out, "Nothing to migrate")
					return nil
				}

				rows, err := db.CountLegacyRows(cmd.Context())
				if err != nil {
					return err
				}
				if !yes {
					ok, err := confirm(cmd, fmt.Sprintf("Migrate %d legacy rows in %s?", rows, db.Path()))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(out, "Aborted")
						return nil
					}
				}

				report, err := engine.MigrateToNewSchema(cmd.Context())
				if err != nil {
					var rowErr *migration.RowError
					if errors.As(err, &rowErr) {
						return fmt.Errorf("migration rolled back: %w", err)
					}
					return err
				}

				fmt.Fprintf(out, "Migrated %d legacy rows in %v\n", report.LegacyRows, report.Duration.Round(time.Millisecond))
				fmt.Fprintf(out, "  Batch:           %d\n", report.BatchID)
				fmt.Fprintf(out, "  Movies created:  %d\n", report.MoviesCreated)
				fmt.Fprintf(out, "  Movies reused:   %d\n", report.MoviesReused)
				fmt.Fprintf(out, "  Mosaics created: %d\n", report.MosaicsCreated)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether a legacy migration is pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(db *database.Database) error {
				engine := migration.NewEngine(db)
				pending, err := engine.Pending(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Pending:   %s\n", yesNo(pending))
				if pending {
					rows, err := db.CountLegacyRows(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Rows:      %d\n", rows)
				} else {
					at, err := db.LegacyMigrationCompletedAt(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Completed: %s\n", formatStamp(&at))
				}
				fmt.Fprintf(out, "Lock file: %s\n", engine.LockPath())
				return nil
			})
		},
	})

	return cmd
}

// confirm asks a yes/no question on an interactive terminal.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	if !stdinIsTerminal() {
		return false, errors.New("stdin is not a terminal; pass --yes to confirm")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
