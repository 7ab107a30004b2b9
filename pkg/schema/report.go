package schema

import (
	"fmt"
	"time"
)

// Verdict is the folded outcome of one condition.
type Verdict string

const (
	VerdictTrue        Verdict = "true"
	VerdictFalse       Verdict = "false"
	VerdictUndefined   Verdict = "undefined"
	VerdictUnsupported Verdict = "unsupported" // condition could not be parsed
)

// Determined reports whether the verdict is a constant truth value.
func (v Verdict) Determined() bool {
	return v == VerdictTrue || v == VerdictFalse
}

// WarningRecord is the serializable form of an evaluation warning.
type WarningRecord struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Operands string `json:"operands,omitempty"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Skipped  bool   `json:"skipped,omitempty"` // raised inside a short-circuited operand
}

// Finding is the inspection result for a single if/elif condition.
type Finding struct {
	File      string          `json:"file"`
	Line      int             `json:"line"`
	Column    int             `json:"column"`
	Keyword   string          `json:"keyword"`
	Condition string          `json:"condition"`
	Verdict   Verdict         `json:"verdict"`
	Value     string          `json:"value,omitempty"`
	Message   string          `json:"message,omitempty"`
	Warnings  []WarningRecord `json:"warnings,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// FileReport collects every finding of one source file.
type FileReport struct {
	File     string    `json:"file"`
	Findings []Finding `json:"findings"`
	Error    string    `json:"error,omitempty"`
}

// Summary aggregates verdict and warning counts across reports.
type Summary struct {
	Files       int `json:"files"`
	Conditions  int `json:"conditions"`
	True        int `json:"true"`
	False       int `json:"false"`
	Undefined   int `json:"undefined"`
	Unsupported int `json:"unsupported"`
	Warnings    int `json:"warnings"`
	Errors      int `json:"errors"`
}

// Add folds a file report into the summary.
func (s *Summary) Add(r *FileReport) {
	s.Files++
	if r.Error != "" {
		s.Errors++
	}
	for _, f := range r.Findings {
		s.Conditions++
		switch f.Verdict {
		case VerdictTrue:
			s.True++
		case VerdictFalse:
			s.False++
		case VerdictUndefined:
			s.Undefined++
		case VerdictUnsupported:
			s.Unsupported++
		}
		s.Warnings += len(f.Warnings)
	}
}

// Report is the result of one inspection run over a set of paths.
type Report struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Paths      []string      `json:"paths"`
	Files      []*FileReport `json:"files"`
	Summary    Summary       `json:"summary"`
}

// Findings flattens the findings of every file in the report.
func (r *Report) Findings() []Finding {
	var out []Finding
	for _, f := range r.Files {
		out = append(out, f.Findings...)
	}
	return out
}

// Mismatch is a fixture expectation that the inspection did not meet.
type Mismatch struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Field    string `json:"field"` // verdict | warnings
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s:%d: %s: expected %s, got %s", m.File, m.Line, m.Field, m.Expected, m.Actual)
}

// CheckResult aggregates fixture comparisons.
type CheckResult struct {
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// OK returns true when every expectation held.
func (r *CheckResult) OK() bool {
	return len(r.Mismatches) == 0
}

// Merge combines another CheckResult into this one.
func (r *CheckResult) Merge(other *CheckResult) {
	if other == nil {
		return
	}
	r.Checked += other.Checked
	r.Mismatches = append(r.Mismatches, other.Mismatches...)
}

// ToError converts the result to a PyconstError if any expectation failed.
func (r *CheckResult) ToError() error {
	if r.OK() {
		return nil
	}

	msg := r.Mismatches[0].String()
	if len(r.Mismatches) > 1 {
		msg = fmt.Sprintf("fixture check failed with %d mismatches", len(r.Mismatches))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"checked":        r.Checked,
			"mismatch_count": len(r.Mismatches),
			"mismatches":     r.Mismatches,
		})
}
