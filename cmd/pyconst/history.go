package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/pyconst/internal/store"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded inspection runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList,
	}
	cmd.Flags().String("source", "", "Only runs from this source: cli | watch | mcp")
	cmd.Flags().String("job", "", "Only runs of this watch job ID")
	cmd.Flags().Duration("since", 0, "Only runs started within this window, e.g. 24h")
	cmd.Flags().Int("limit", 20, "Maximum number of runs")
	cmd.Flags().String("format", "text", "Output format: text | json")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the report of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	show.Flags().String("format", "text", "Output format: text | json")
	show.Flags().Bool("all", false, "Show every condition, not only constant ones")

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a cutoff",
		Args:  cobra.NoArgs,
		RunE:  runHistoryPrune,
	}
	prune.Flags().Duration("older-than", 30*24*time.Hour, "Delete runs started before now minus this duration")
	prune.Flags().Bool("vacuum", false, "Reclaim disk space afterwards")

	cmd.AddCommand(show, prune)
	return cmd
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	a := appFrom(cmd)
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	source, _ := cmd.Flags().GetString("source")
	jobID, _ := cmd.Flags().GetString("job")
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("format")

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	filter := store.RunFilter{Source: source, JobID: jobID, Limit: limit}
	if since > 0 {
		t := time.Now().UTC().Add(-since)
		filter.Since = &t
	}
	runs, err := st.ListRuns(ctx, filter)
	if err != nil {
		return err
	}

	if format == "json" {
		return writeJSON(out, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no recorded runs")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSOURCE\tSTARTED\tFILES\tCONDITIONS\tTRUE\tFALSE\tUNDEFINED\tWARNINGS")
	for _, r := range runs {
		s := r.Summary
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			r.ID, r.Source, r.StartedAt.Local().Format(time.DateTime),
			s.Files, s.Conditions, s.True, s.False, s.Undefined, s.Warnings)
	}
	return tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	ctx := cmd.Context()
	format, _ := cmd.Flags().GetString("format")
	all, _ := cmd.Flags().GetBool("all")

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := st.LoadReport(ctx, args[0])
	if err != nil {
		return err
	}
	if format == "json" {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	printReport(cmd.OutOrStdout(), a.au, report, all)
	return nil
}

func runHistoryPrune(cmd *cobra.Command, _ []string) error {
	a := appFrom(cmd)
	ctx := cmd.Context()
	olderThan, _ := cmd.Flags().GetDuration("older-than")
	vacuum, _ := cmd.Flags().GetBool("vacuum")

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.PruneRuns(ctx, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pruned %s\n", plural(int(n), "run"))
	if vacuum {
		return st.Vacuum(ctx)
	}
	return nil
}
