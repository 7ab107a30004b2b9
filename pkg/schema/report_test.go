package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckResult_EmptyIsOK(t *testing.T) {
	r := &CheckResult{}
	assert.True(t, r.OK())
	assert.Nil(t, r.ToError())
}

func TestCheckResult_Merge(t *testing.T) {
	r1 := &CheckResult{Checked: 2}
	r2 := &CheckResult{Checked: 3, Mismatches: []Mismatch{{File: "a.py", Line: 4, Field: "verdict", Expected: "true", Actual: "false"}}}

	r1.Merge(r2)
	r1.Merge(nil)

	assert.Equal(t, 5, r1.Checked)
	assert.Len(t, r1.Mismatches, 1)
	assert.False(t, r1.OK())
}

func TestCheckResult_ToError_Single(t *testing.T) {
	r := &CheckResult{Checked: 1, Mismatches: []Mismatch{{File: "a.py", Line: 4, Field: "verdict", Expected: "true", Actual: "false"}}}

	err := r.ToError()
	require.NotNil(t, err)

	pe, ok := err.(*PyconstError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeValidation, pe.Code)
	assert.Equal(t, "a.py:4: verdict: expected true, got false", pe.Message)
	assert.Equal(t, 1, pe.Details["mismatch_count"])
}

func TestCheckResult_ToError_Multiple(t *testing.T) {
	r := &CheckResult{Checked: 4, Mismatches: []Mismatch{{}, {}}}

	pe, ok := r.ToError().(*PyconstError)
	require.True(t, ok)
	assert.Contains(t, pe.Message, "2 mismatches")
	assert.Equal(t, 4, pe.Details["checked"])
}

func TestSummary_Add(t *testing.T) {
	var s Summary
	s.Add(&FileReport{File: "a.py", Findings: []Finding{
		{Verdict: VerdictTrue},
		{Verdict: VerdictFalse, Warnings: []WarningRecord{{Kind: "DivisionByZero"}}},
		{Verdict: VerdictUndefined},
		{Verdict: VerdictUnsupported},
	}})
	s.Add(&FileReport{File: "b.py", Error: "boom"})

	assert.Equal(t, Summary{Files: 2, Conditions: 4, True: 1, False: 1, Undefined: 1, Unsupported: 1, Warnings: 1, Errors: 1}, s)
}

func TestVerdict_Determined(t *testing.T) {
	assert.True(t, VerdictTrue.Determined())
	assert.True(t, VerdictFalse.Determined())
	assert.False(t, VerdictUndefined.Determined())
	assert.False(t, VerdictUnsupported.Determined())
}

func TestPyconstError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewErrorf(ErrCodeStore, "insert run %s", "r1").WithFile("a.py").WithCause(cause)

	assert.Equal(t, "[STORE_ERROR] a.py: insert run r1", err.Error())
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("record: %w", err)
	assert.True(t, HasCode(wrapped, ErrCodeStore))
	assert.False(t, HasCode(wrapped, ErrCodeParse))
	assert.False(t, HasCode(cause, ErrCodeStore))
}
