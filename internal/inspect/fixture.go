package inspect

import (
	"context"
	"regexp"
	"strings"

	"github.com/rendis/pyconst/pkg/schema"
)

// Expectation is what a fixture comment claims about its condition.
type Expectation struct {
	Verdict  schema.Verdict
	Warnings []string
}

var (
	listedWarnings = regexp.MustCompile(`(?i)^\w+\s+warnings:\s*(.*)$`)
	listItem       = regexp.MustCompile(`\d+\.\s+`)
)

// ParseExpectation reads the comment convention: the first word of the
// first comment is true, false or undefined; "Warning: <msg>" names one
// expected warning and "N warnings: 1. <msg>, 2. <msg>" several. ok is
// false when the comments carry no verdict.
func ParseExpectation(comments []string) (exp Expectation, ok bool) {
	if len(comments) == 0 {
		return exp, false
	}
	fields := strings.Fields(strings.ToLower(comments[0]))
	if len(fields) == 0 {
		return exp, false
	}
	switch v := schema.Verdict(strings.TrimRight(fields[0], ".,:;!")); v {
	case schema.VerdictTrue, schema.VerdictFalse, schema.VerdictUndefined:
		exp.Verdict = v
	default:
		return exp, false
	}

	for _, c := range comments {
		if rest, found := cutPrefixFold(c, "warning:"); found {
			exp.Warnings = append(exp.Warnings, cleanMessage(rest))
			continue
		}
		if m := listedWarnings.FindStringSubmatch(c); m != nil {
			exp.Warnings = append(exp.Warnings, splitList(m[1])...)
		}
	}
	return exp, true
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

func splitList(s string) []string {
	idx := listItem.FindAllStringIndex(s, -1)
	var out []string
	for i, loc := range idx {
		end := len(s)
		if i+1 < len(idx) {
			end = idx[i+1][0]
		}
		out = append(out, cleanMessage(s[loc[1]:end]))
	}
	return out
}

func cleanMessage(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), " ,.;")
}

// CheckFixture compares report findings with the expectations written in
// the comments of conds. Conditions without a verdict comment are skipped.
func CheckFixture(report *schema.FileReport, conds []Condition) *schema.CheckResult {
	byLine := make(map[int]schema.Finding, len(report.Findings))
	for _, f := range report.Findings {
		byLine[f.Line] = f
	}

	result := &schema.CheckResult{}
	for _, c := range conds {
		exp, ok := ParseExpectation(c.Comments)
		if !ok {
			continue
		}
		result.Checked++

		f, found := byLine[c.Line]
		if !found {
			result.Mismatches = append(result.Mismatches, schema.Mismatch{
				File: report.File, Line: c.Line, Field: "verdict", Expected: string(exp.Verdict), Actual: "missing",
			})
			continue
		}
		if f.Verdict != exp.Verdict {
			result.Mismatches = append(result.Mismatches, schema.Mismatch{
				File: report.File, Line: c.Line, Field: "verdict", Expected: string(exp.Verdict), Actual: string(f.Verdict),
			})
		}

		var got []string
		for _, w := range f.Warnings {
			got = append(got, w.Message)
		}
		if want, have := joinMessages(exp.Warnings), joinMessages(got); want != have {
			result.Mismatches = append(result.Mismatches, schema.Mismatch{
				File: report.File, Line: c.Line, Field: "warnings", Expected: want, Actual: have,
			})
		}
	}
	return result
}

func joinMessages(msgs []string) string {
	if len(msgs) == 0 {
		return "none"
	}
	return "[" + strings.Join(msgs, "; ") + "]"
}

// CheckSource inspects src and checks it against its fixture comments.
func (in *Inspector) CheckSource(ctx context.Context, name, src string) (*schema.FileReport, *schema.CheckResult, error) {
	report, err := in.InspectSource(ctx, name, src)
	if err != nil {
		return nil, nil, err
	}
	return report, CheckFixture(report, Scan(src)), nil
}
