package main

import (
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/rendis/pyconst/internal/engine"
	"github.com/rendis/pyconst/internal/expressions"
	"github.com/rendis/pyconst/internal/store"
	"github.com/rendis/pyconst/pkg/schema"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <paths...>",
		Short: "Inspect Python files and directories for constant conditions",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCheck,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("all", false, "Show every condition, not only constant ones")
	cmd.Flags().String("where", "", "CEL predicate selecting findings, e.g. finding.verdict == 'true'")
	cmd.Flags().String("jq", "", "jq program applied to the JSON report")
	cmd.Flags().String("fail-on", "", "expr gate over the report; exit 1 when true, e.g. summary.undefined > 0")
	cmd.Flags().Bool("progress", false, "Show a progress bar on stderr")
	cmd.Flags().Bool("record", false, "Save the run to the history database")
	cmd.Flags().StringArray("var", nil, "Bind a name for evaluation: name=value (repeatable)")

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	format, _ := cmd.Flags().GetString("format")
	all, _ := cmd.Flags().GetBool("all")
	where, _ := cmd.Flags().GetString("where")
	jq, _ := cmd.Flags().GetString("jq")
	failOn, _ := cmd.Flags().GetString("fail-on")
	progress, _ := cmd.Flags().GetBool("progress")
	record, _ := cmd.Flags().GetBool("record")
	varPairs, _ := cmd.Flags().GetStringArray("var")

	if format != "text" && format != "json" {
		return exitError(exitUsage, "unknown format %q: want text or json", format)
	}
	gate := expressions.NewExprEngine()
	if failOn != "" {
		if err := gate.CheckGate(failOn); err != nil {
			return err
		}
	}

	vars, err := parseVars(varPairs)
	if err != nil {
		return err
	}
	in, err := a.inspector(vars)
	if err != nil {
		return err
	}

	var opts []engine.BatchOption
	if progress {
		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("inspecting"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		opts = append(opts, engine.WithProgress(func(done, total int, _ string) {
			if bar.GetMax() != total {
				bar.ChangeMax(total)
			}
			_ = bar.Set(done)
		}))
		defer func() { _ = bar.Finish() }()
	}

	report, err := a.batch(in, opts...).Run(ctx, args)
	if err != nil {
		return err
	}

	if record {
		st, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.SaveRun(ctx, report, store.RunMeta{Source: store.SourceCLI}); err != nil {
			return err
		}
		a.logger.Info("run recorded", "run_id", report.RunID)
	}

	gated := false
	if failOn != "" {
		if gated, err = gate.Gate(ctx, failOn, report); err != nil {
			return err
		}
	}

	shown := report
	if where != "" {
		cel, err := expressions.NewCELEngine()
		if err != nil {
			return err
		}
		if shown, err = cel.Filter(ctx, where, report); err != nil {
			return err
		}
	}

	switch {
	case jq != "":
		results, err := expressions.NewGoJQEngine().Transform(ctx, jq, shown)
		if err != nil {
			return err
		}
		for _, r := range results {
			if err := writeJSON(out, r); err != nil {
				return err
			}
		}
	case format == "json":
		if err := writeJSON(out, shown); err != nil {
			return err
		}
	default:
		printReport(out, a.au, shown, all || where != "")
	}

	if gated {
		return exitError(exitFindings, "fail-on gate tripped: %s", failOn)
	}
	if allUnreadable(report) {
		return exitError(exitNotFound, "no file could be inspected")
	}
	return nil
}

func allUnreadable(report *schema.Report) bool {
	if len(report.Files) == 0 {
		return false
	}
	for _, fr := range report.Files {
		if fr.Error == "" {
			return false
		}
	}
	return true
}
