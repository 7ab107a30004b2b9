package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/pyconst/internal/inspect"
	"github.com/rendis/pyconst/pkg/schema"
)

func newFixtureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture <paths...>",
		Short: "Check files annotated with # true / # false / # undefined comments",
		Long: "Each if/elif header followed by a comment such as '# true', '# false' or\n" +
			"'# undefined' (optionally with 'Warning: ...' lines) is inspected and compared\n" +
			"against that expectation. Exits 1 on any mismatch.",
		Args: cobra.MinimumNArgs(1),
		RunE: runFixture,
	}
	cmd.Flags().String("format", "text", "Output format: text | json")
	return cmd
}

func runFixture(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return exitError(exitUsage, "unknown format %q: want text or json", format)
	}

	files, err := inspect.CollectFiles(args)
	if err != nil {
		return err
	}
	in, err := a.inspector(nil)
	if err != nil {
		return err
	}

	total := &schema.CheckResult{}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return exitError(exitNotFound, "file not found: %s", path)
			}
			return fmt.Errorf("reading file: %w", err)
		}
		_, res, err := in.CheckSource(ctx, path, string(data))
		if err != nil {
			return err
		}
		a.logger.Debug("fixture checked", "file", path, "checked", res.Checked, "mismatches", len(res.Mismatches))
		total.Merge(res)
	}

	if format == "json" {
		if err := writeJSON(out, total); err != nil {
			return err
		}
	} else {
		for _, m := range total.Mismatches {
			fmt.Fprintln(out, a.au.Red(m.String()))
		}
		status := a.au.Green(fmt.Sprintf("%s checked, all expectations hold", plural(total.Checked, "condition")))
		if !total.OK() {
			status = a.au.Red(fmt.Sprintf("%s checked, %s", plural(total.Checked, "condition"), plural(len(total.Mismatches), "mismatch")))
		}
		fmt.Fprintln(out, status)
	}

	if !total.OK() {
		return exitError(exitFindings, "%d fixture mismatches", len(total.Mismatches))
	}
	return nil
}
