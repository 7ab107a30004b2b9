package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/logrusorgru/aurora/v4"

	"github.com/rendis/pyconst/pkg/schema"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// notable reports whether a finding is worth showing without --all.
func notable(f schema.Finding) bool {
	return f.Verdict.Determined() || len(f.Warnings) > 0 || f.Error != ""
}

// printReport renders a report as human-readable text.
func printReport(w io.Writer, au *aurora.Aurora, report *schema.Report, all bool) {
	for _, fr := range report.Files {
		if fr.Error != "" {
			fmt.Fprintf(w, "%s: %s\n", fr.File, au.Red("error: "+fr.Error))
			continue
		}
		for _, f := range fr.Findings {
			if all || notable(f) {
				printFinding(w, au, f)
			}
		}
	}
	printSummary(w, au, report.Summary)
}

func printFinding(w io.Writer, au *aurora.Aurora, f schema.Finding) {
	loc := fmt.Sprintf("%s:%d:%d:", f.File, f.Line, f.Column)
	fmt.Fprintf(w, "%s %s %s  %s\n", au.Bold(loc), f.Keyword, f.Condition, colorVerdict(au, f.Verdict, findingLabel(f)))
	for _, wr := range f.Warnings {
		line := fmt.Sprintf("  warning: %s", wr.Message)
		if wr.Skipped {
			line += " (short-circuited)"
		}
		fmt.Fprintln(w, au.Yellow(line))
	}
	if f.Error != "" {
		fmt.Fprintln(w, au.Red("  error: "+f.Error))
	}
}

func findingLabel(f schema.Finding) string {
	if f.Message != "" {
		return f.Message
	}
	return string(f.Verdict)
}

func colorVerdict(au *aurora.Aurora, v schema.Verdict, text string) aurora.Value {
	switch v {
	case schema.VerdictTrue:
		return au.Green(text)
	case schema.VerdictFalse:
		return au.Red(text)
	case schema.VerdictUnsupported:
		return au.Faint(text)
	}
	return au.Yellow(text)
}

func printSummary(w io.Writer, au *aurora.Aurora, s schema.Summary) {
	parts := []string{
		fmt.Sprintf("%d true", s.True),
		fmt.Sprintf("%d false", s.False),
		fmt.Sprintf("%d undefined", s.Undefined),
	}
	if s.Unsupported > 0 {
		parts = append(parts, fmt.Sprintf("%d unsupported", s.Unsupported))
	}
	line := fmt.Sprintf("%s, %s: %s; %s",
		plural(s.Files, "file"), plural(s.Conditions, "condition"),
		strings.Join(parts, ", "), plural(s.Warnings, "warning"))
	if s.Errors > 0 {
		line += ", " + plural(s.Errors, "error")
	}
	fmt.Fprintln(w, au.Bold(line))
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	if strings.HasSuffix(noun, "ch") {
		return fmt.Sprintf("%d %ses", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// parseVars turns name=value pairs into binding data. Values stay strings
// and are parsed as Python literals by the evaluator.
func parseVars(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, val, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid --var %q: want name=value", p)
		}
		out[name] = strings.TrimSpace(val)
	}
	return out, nil
}
