package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/pvrun/internal/history"
	"github.com/nerrad567/pvrun/internal/infrastructure/database"
	"github.com/nerrad567/pvrun/internal/launcher"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		filter history.Filter
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := launcher.OpenHistoryReader(cmd.Context(), a.cfg.History)
			if errors.Is(err, database.ErrNotFound) {
				fmt.Fprintf(a.stderr, "no run history at %s\n", a.cfg.History.Path)
				return nil
			}
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // Read-only use

			result, err := history.NewSQLiteRepository(db.DB).List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tAPP\tEXIT\tDURATION\tRELEASE ERRORS\tERROR")
			for _, r := range result.Runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					shortID(r.ID),
					r.StartedAt.Local().Format(time.DateTime),
					filepath.Base(r.App),
					exitColumn(r),
					durationColumn(r),
					r.ReleaseErrors,
					r.Error,
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if result.Total > len(result.Runs) {
				fmt.Fprintf(a.stdout, "showing %d of %d runs\n", len(result.Runs), result.Total)
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.IntVarP(&filter.Limit, "limit", "n", 20, "maximum number of runs")
	fs.StringVar(&filter.App, "app", "", "only runs of this application path")
	fs.BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func exitColumn(r history.Run) string {
	switch {
	case r.DryRun:
		return "dry-run"
	case r.ExitCode != nil:
		return fmt.Sprint(*r.ExitCode)
	case r.FinishedAt == nil:
		return "running"
	default:
		return "-"
	}
}

func durationColumn(r history.Run) string {
	if r.FinishedAt == nil {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}
