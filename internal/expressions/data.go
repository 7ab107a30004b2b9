package expressions

import "github.com/rendis/pyconst/pkg/schema"

// FindingData is the map form of a finding exposed to CEL and expr, keyed
// by JSON field names with integer positions.
func FindingData(f schema.Finding) map[string]any {
	warnings := make([]any, 0, len(f.Warnings))
	for _, w := range f.Warnings {
		warnings = append(warnings, map[string]any{
			"kind":     w.Kind,
			"message":  w.Message,
			"operands": w.Operands,
			"line":     int64(w.Line),
			"column":   int64(w.Column),
			"skipped":  w.Skipped,
		})
	}
	return map[string]any{
		"file":      f.File,
		"line":      int64(f.Line),
		"column":    int64(f.Column),
		"keyword":   f.Keyword,
		"condition": f.Condition,
		"verdict":   string(f.Verdict),
		"value":     f.Value,
		"message":   f.Message,
		"warnings":  warnings,
		"error":     f.Error,
	}
}

// SummaryData is the map form of a run summary.
func SummaryData(s schema.Summary) map[string]any {
	return map[string]any{
		"files":       int64(s.Files),
		"conditions":  int64(s.Conditions),
		"true":        int64(s.True),
		"false":       int64(s.False),
		"undefined":   int64(s.Undefined),
		"unsupported": int64(s.Unsupported),
		"warnings":    int64(s.Warnings),
		"errors":      int64(s.Errors),
	}
}

// filterReport returns a copy of report keeping the findings keep accepts,
// with the summary recomputed.
func filterReport(report *schema.Report, keep func(schema.Finding) (bool, error)) (*schema.Report, error) {
	out := *report
	out.Files = make([]*schema.FileReport, 0, len(report.Files))
	out.Summary = schema.Summary{}
	for _, fr := range report.Files {
		nf := &schema.FileReport{File: fr.File, Error: fr.Error, Findings: []schema.Finding{}}
		for _, f := range fr.Findings {
			ok, err := keep(f)
			if err != nil {
				return nil, err
			}
			if ok {
				nf.Findings = append(nf.Findings, f)
			}
		}
		out.Files = append(out.Files, nf)
		out.Summary.Add(nf)
	}
	return &out, nil
}
