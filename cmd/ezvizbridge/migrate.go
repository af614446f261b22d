package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-ezviz/migrations"
)

// newMigrateCmd inspects the database schema and can apply or revert
// migrations. The bridge itself migrates on every start.
func newMigrateCmd(configPath *string) *cobra.Command {
	var apply, down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Show, apply or revert database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cliTimeout)
			defer cancel()

			db, err := database.Open(ctx, database.Config{
				Path:        cfg.Database.Path,
				WALMode:     cfg.Database.WALMode,
				BusyTimeout: cfg.Database.BusyTimeout,
			})
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close() //nolint:errcheck // Read-mostly session

			out := cmd.OutOrStdout()
			switch {
			case apply:
				n, err := db.Migrate(ctx, migrations.FS)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Applied %d migration(s).\n", n)
			case down:
				version, err := db.MigrateDown(ctx, migrations.FS)
				if err != nil {
					return err
				}
				if version == "" {
					fmt.Fprintln(out, "Nothing to revert.")
				} else {
					fmt.Fprintf(out, "Reverted %s.\n", version)
				}
			}
			return printMigrationStatus(ctx, out, db)
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "apply pending migrations")
	cmd.Flags().BoolVar(&down, "down", false, "revert the most recent migration")
	cmd.MarkFlagsMutuallyExclusive("apply", "down")
	return cmd
}

func printMigrationStatus(ctx context.Context, w io.Writer, db *database.DB) error {
	applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED AT")
	names := make(map[string]string)
	all, err := database.LoadMigrations(migrations.FS)
	if err != nil {
		return err
	}
	for _, m := range all {
		names[m.Version] = m.Name
	}
	for _, r := range applied {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Version, names[r.Version], r.AppliedAt.Local().Format(time.DateTime))
	}
	for _, m := range pending {
		fmt.Fprintf(tw, "%s\t%s\tpending\n", m.Version, m.Name)
	}
	return tw.Flush()
}
