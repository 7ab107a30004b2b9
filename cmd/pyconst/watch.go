package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/pyconst/internal/scheduler"
	"github.com/rendis/pyconst/internal/store"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage and run scheduled re-inspections",
	}

	add := &cobra.Command{
		Use:   "add <name> <paths...>",
		Short: "Schedule a set of paths for periodic inspection",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runWatchAdd,
	}
	add.Flags().String("cron", "@hourly", "Cron schedule: 5-field expression or descriptor such as @every 30m")
	add.Flags().String("fail-on", "", "expr gate marking a run as gated, e.g. summary.undefined > 0")

	list := &cobra.Command{
		Use:   "list",
		Short: "List watch jobs",
		Args:  cobra.NoArgs,
		RunE:  runWatchList,
	}
	list.Flags().String("format", "text", "Output format: text | json")

	rm := &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a watch job",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatchRemove,
	}

	run := &cobra.Command{
		Use:   "run <name>",
		Short: "Run a watch job now",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatchRun,
	}

	pause := &cobra.Command{
		Use:   "pause <name>",
		Short: "Disable a watch job",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return setWatchEnabled(cmd, args[0], false) },
	}
	resume := &cobra.Command{
		Use:   "resume <name>",
		Short: "Re-enable a watch job",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return setWatchEnabled(cmd, args[0], true) },
	}

	start := &cobra.Command{
		Use:   "start",
		Short: "Run the scheduler in the foreground until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runWatchStart,
	}

	cmd.AddCommand(add, list, rm, run, pause, resume, start)
	return cmd
}

// newScheduler wires a scheduler over st using the resolved config.
func (a *app) newScheduler(st store.Store, hook scheduler.RunHook) (*scheduler.Scheduler, error) {
	in, err := a.inspector(nil)
	if err != nil {
		return nil, err
	}
	opts, err := a.cfg.watchOptions()
	if err != nil {
		return nil, err
	}
	opts.OnRun = hook
	return scheduler.NewScheduler(st, a.batch(in), a.logger, opts), nil
}

func runWatchAdd(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	ctx := cmd.Context()
	cronExpr, _ := cmd.Flags().GetString("cron")
	failOn, _ := cmd.Flags().GetString("fail-on")

	paths := make([]string, 0, len(args)-1)
	for _, p := range args[1:] {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", p, err)
		}
		paths = append(paths, abs)
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	sched, err := a.newScheduler(st, nil)
	if err != nil {
		return err
	}

	job, err := sched.AddJob(ctx, args[0], cronExpr, paths, failOn)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added watch job %s (%s), next run %s\n",
		job.Name, job.CronExpression, formatTime(job.NextRunAt))
	return nil
}

func runWatchList(cmd *cobra.Command, _ []string) error {
	a := appFrom(cmd)
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	format, _ := cmd.Flags().GetString("format")

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	jobs, err := st.ListWatchJobs(ctx, store.WatchJobFilter{})
	if err != nil {
		return err
	}
	if format == "json" {
		return writeJSON(out, jobs)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(out, "no watch jobs")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSCHEDULE\tENABLED\tNEXT RUN\tLAST RUN\tSTATUS\tPATHS")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\t%s\n",
			j.Name, j.CronExpression, j.Enabled, formatTime(j.NextRunAt), formatTime(j.LastRunAt),
			orDash(j.LastRunStatus), strings.Join(j.Paths, ","))
	}
	return tw.Flush()
}

func runWatchRemove(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	ctx := cmd.Context()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	sched, err := a.newScheduler(st, nil)
	if err != nil {
		return err
	}
	if err := sched.RemoveJob(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed watch job %s\n", args[0])
	return nil
}

func runWatchRun(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	sched, err := a.newScheduler(st, nil)
	if err != nil {
		return err
	}

	job, err := sched.RunNow(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "watch job %s: %s", job.Name, job.LastRunStatus)
	if job.LastRunID != "" {
		fmt.Fprintf(out, " (run %s)", job.LastRunID)
	}
	fmt.Fprintln(out)

	switch job.LastRunStatus {
	case store.StatusGated:
		return exitError(exitFindings, "fail-on gate tripped: %s", job.FailOn)
	case store.StatusError:
		return exitError(1, "watch job %s failed", job.Name)
	}
	return nil
}

func setWatchEnabled(cmd *cobra.Command, name string, enabled bool) error {
	a := appFrom(cmd)
	ctx := cmd.Context()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	job, err := st.GetWatchJob(ctx, name)
	if err != nil {
		return err
	}
	update := store.WatchJobUpdate{Enabled: &enabled}
	if enabled {
		// A resumed job runs at its next activation, not for every tick it missed.
		sched, err := a.newScheduler(st, nil)
		if err != nil {
			return err
		}
		next, err := sched.CalculateNextRun(job.CronExpression, time.Now().UTC())
		if err != nil {
			return err
		}
		update.NextRunAt = &next
	}
	if err := st.UpdateWatchJob(ctx, job.ID, update); err != nil {
		return err
	}
	state := "paused"
	if enabled {
		state = "resumed"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s watch job %s\n", state, job.Name)
	return nil
}

func runWatchStart(cmd *cobra.Command, _ []string) error {
	a := appFrom(cmd)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	return runScheduler(ctx, a, st, nil)
}

// runScheduler recovers missed jobs, then schedules until ctx is done.
func runScheduler(ctx context.Context, a *app, st store.Store, hook scheduler.RunHook) error {
	sched, err := a.newScheduler(st, hook)
	if err != nil {
		return err
	}
	if err := sched.RecoverMissed(ctx); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return sched.Stop()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
