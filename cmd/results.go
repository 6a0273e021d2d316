package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/spoofguard/internal/store"
	"github.com/andresmejia3/spoofguard/internal/utils"
)

var (
	resultsMethod string
	resultsLimit  int
)

var errNoDatabase = errors.New("no results database configured (use --db, SPOOFGUARD_DATABASE_URL or POSTGRES_HOST)")

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List the evaluations recorded in the results database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runResults(cmd.Context(), os.Stdout)
	},
}

var resultsRmCmd = &cobra.Command{
	Use:   "rm <run_id>",
	Short: "Delete one recorded evaluation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			utils.ShowError("Invalid run ID", err, nil)
			return err
		}
		return runResultsRm(cmd.Context(), id)
	},
}

func init() {
	resultsCmd.Flags().StringVar(&resultsMethod, "method", "", "Only show runs of this method (chi2, lda, svm)")
	resultsCmd.Flags().IntVar(&resultsLimit, "limit", 50, "Maximum number of runs to show")
	resultsCmd.AddCommand(resultsRmCmd)
	rootCmd.AddCommand(resultsCmd)
}

func runResults(ctx context.Context, out io.Writer) error {
	if DB == nil {
		utils.ShowError("Cannot list results", errNoDatabase, nil)
		return errNoDatabase
	}
	runs, err := DB.ListRuns(ctx, resultsMethod, resultsLimit)
	if err != nil {
		utils.ShowError("Failed to list results", err, nil)
		return err
	}
	printRuns(out, runs)
	return nil
}

func printRuns(out io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No results found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tMETHOD\tPROTOCOL\tTHRESHOLD\tDEV HTER\tTEST FAR\tTEST FRR\tTEST HTER\tCREATED")
	fmt.Fprintln(w, "--\t------\t--------\t---------\t--------\t--------\t--------\t---------\t-------")

	for _, r := range runs {
		method := r.Method
		if r.SignFlipped {
			method += " (-)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%.4f\t%.2f%%\t%.2f%%\t%.2f%%\t%.2f%%\t%s\n",
			r.ID, method, r.Protocol, r.Threshold,
			100*r.Devel.HTER(), 100*r.Test.FAR, 100*r.Test.FRR, 100*r.Test.HTER(),
			r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func runResultsRm(ctx context.Context, id int64) error {
	if DB == nil {
		utils.ShowError("Cannot delete results", errNoDatabase, nil)
		return errNoDatabase
	}
	ok, err := DB.DeleteRun(ctx, id)
	if err != nil {
		utils.ShowError("Failed to delete run", err, nil)
		return err
	}
	if !ok {
		err := fmt.Errorf("run %d not found", id)
		utils.ShowError("Failed to delete run", err, nil)
		return err
	}
	fmt.Printf("✅ Run %d deleted\n", id)
	return nil
}
