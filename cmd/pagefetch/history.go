package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/pagefetch/internal/config"
	"github.com/nao1215/pagefetch/internal/database"
	"github.com/nao1215/pagefetch/internal/model"
)

// defaultHistoryLimit is the number of runs listed without --limit.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs recorded in the history database",
		Long: `History lists past runs, newest first, with their totals.

With --run, it shows the outcome counts of one run and every URL that
failed in it.

Examples:
  # List the 20 most recent runs
  pagefetch history

  # Show the failures of run 12
  pagefetch history --run 12`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().Int64P("run", "r", 0,
		"Show the details of one run")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Number of runs to list (0 for all)")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Run history directory")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	runID, err := cmd.Flags().GetInt64("run")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dbDir, opts)
	if errors.Is(err, database.ErrNoHistory) {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
		return nil
	}
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	if runID != 0 {
		return showRun(ctx, db, runID, cmd.OutOrStdout())
	}
	return listRuns(ctx, db, limit, cmd.OutOrStdout())
}

// listRuns writes a table of the most recent runs.
func listRuns(ctx context.Context, db *database.HistoryDB, limit int, w io.Writer) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.StartedAt.Local().Format(time.DateTime),
			runElapsed(r),
			r.URLFile,
			strconv.Itoa(r.URLCount),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
		})
	}

	return markdown.NewMarkdown(w).
		Table(markdown.TableSet{
			Header: []string{"Run", "Started", "Elapsed", "URL list", "URLs", "Saved", "Failed"},
			Rows:   rows,
		}).
		Build()
}

// runElapsed returns the duration of a run, or "unfinished" if it was
// never closed.
func runElapsed(r database.RunRecord) string {
	if !r.Finished() {
		return "unfinished"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}

// showRun writes the outcome counts and failures of one run.
func showRun(ctx context.Context, db *database.HistoryDB, runID int64, w io.Writer) error {
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	counts, err := db.CountByReason(ctx, runID)
	if err != nil {
		return err
	}
	failures, err := db.ListFailures(ctx, runID)
	if err != nil {
		return err
	}

	md := markdown.NewMarkdown(w)
	md.H2f("Run %d", run.ID)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Started", run.StartedAt.Local().Format(time.DateTime)},
			{"Elapsed", runElapsed(*run)},
			{"URL list", run.URLFile},
			{"Proxy list", run.ProxyFile},
			{"URLs", strconv.Itoa(run.URLCount)},
			{"Proxies", strconv.Itoa(run.ProxyCount)},
		},
	})
	md.PlainText("")

	// Counts come from the recorded outcomes, so an interrupted run
	// still shows what it got through.
	rows := [][]string{{"saved", strconv.Itoa(counts[model.ReasonNone])}}
	for _, r := range model.FailureReasons {
		if n := counts[r]; n > 0 {
			rows = append(rows, []string{r.Label(), strconv.Itoa(n)})
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(failures) > 0 {
		failureRows := make([][]string, 0, len(failures))
		for _, f := range failures {
			status := "-"
			if f.StatusCode != 0 {
				status = strconv.Itoa(f.StatusCode)
			}
			failureRows = append(failureRows, []string{f.URL, f.Reason.Label(), status, f.Proxy})
		}
		md.H3("Failures")
		md.PlainText("")
		md.Table(markdown.TableSet{
			Header: []string{"URL", "Reason", "Status", "Proxy"},
			Rows:   failureRows,
		})
	}

	return md.Build()
}
