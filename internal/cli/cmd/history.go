package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"usmconv/internal/config"
	"usmconv/internal/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous conversion runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := config.Load()
			if s.HistoryPath == "" {
				return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("no history path configured")}
			}
			log, closeLog := newLogger(s, false)
			defer closeLog()
			store, err := history.Open(s.HistoryPath, log)
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			defer store.Close()

			fs := cmd.Flags()
			if older, _ := fs.GetDuration("prune"); older > 0 {
				n, err := store.Prune(cmd.Context(), time.Now().Add(-older))
				if err != nil {
					return &ExitError{Code: ExitCLIError, Err: err}
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "pruned %d run(s)\n", n)
			}

			var f history.Filter
			f.Limit, _ = fs.GetInt("limit")
			f.FailedOnly, _ = fs.GetBool("failed")
			f.Mode, _ = fs.GetString("mode")
			runs, err := store.List(cmd.Context(), f)
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			format, _ := fs.GetString("format")
			return writeFormatted(cmd.OutOrStdout(), format, runs, func(w io.Writer) error {
				return printHistory(w, runs)
			})
		},
	}
	fs := cmd.Flags()
	fs.Int("limit", 20, "Show at most N runs (0 shows all)")
	fs.Bool("failed", false, "Only failed runs")
	fs.String("mode", "", "Only runs of one mode: remote, local, extract")
	fs.Duration("prune", 0, "Delete runs that finished longer ago than this before listing")
	fs.String("format", "text", "Output format: text, json, yaml")
	return cmd
}

func printHistory(w io.Writer, runs []history.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tMODE\tPHASE\tELAPSED\tOUTPUT\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Mode, r.Phase, r.Elapsed().Round(time.Second), r.Output, truncate(r.Error, 60))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
