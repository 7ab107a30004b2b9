package eval

import (
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pyconst/internal/ast"
	"github.com/rendis/pyconst/internal/diag"
	"github.com/rendis/pyconst/internal/value"
	"github.com/rendis/pyconst/pkg/schema"
)

func run(t *testing.T, ev *Evaluator, src string) Result {
	t.Helper()
	res, err := ev.EvaluateSource(src)
	require.NoError(t, err, src)
	return res
}

func messages(ws []diag.Warning) []string {
	var out []string
	for _, w := range ws {
		out = append(out, w.Message)
	}
	return out
}

type verdictCase struct {
	src      string
	verdict  schema.Verdict
	warnings []string
}

func checkVerdicts(t *testing.T, ev *Evaluator, cases []verdictCase) {
	t.Helper()
	for _, c := range cases {
		res := run(t, ev, c.src)
		assert.Equal(t, c.verdict, res.Verdict(), c.src)
		assert.Equal(t, c.warnings, messages(res.Warnings), c.src)
	}
}

func TestUnobviousConditions(t *testing.T) {
	ev := New(Options{ScanSkipped: true})
	checkVerdicts(t, ev, []verdictCase{
		{"+5 == 5", schema.VerdictTrue, nil},
		{"-1 < 2 > 1", schema.VerdictTrue, nil},
		{"1 > 2 < 3", schema.VerdictFalse, nil},
		{"(4 < 5 > 3 and 5) == 5 and (4 > 5 < 3 and 5) == False", schema.VerdictTrue, nil},
		{"4 > 5 < a and a * a >= 0", schema.VerdictFalse, nil},
		{"-a == 0", schema.VerdictUndefined, nil},
		{"a == 0 and a == 1 or a == 0", schema.VerdictUndefined, nil},
		{"-1 < 2 > 1 < 10 > -0 < 123 < 147 > 23 == 23 >= True == 1 <= 2 > False != 1 != 0", schema.VerdictTrue, nil},
		{"0 < True > 0 and - 1 + (123 - 44) and False < 1 > 0 >= -1 <= True < (1 ** 123) + 322", schema.VerdictTrue, nil},
		{"5 % 3 == 2", schema.VerdictTrue, nil},
		{"-5 % 3 == 1", schema.VerdictTrue, nil},
		{"5 % -3 == -1", schema.VerdictTrue, nil},
		{"-5 % -3 == -2", schema.VerdictTrue, nil},
		{"5 % 3 == -1", schema.VerdictFalse, nil},
		{"-5 % 3 == -2", schema.VerdictFalse, nil},
		{"5 % -3 == 1", schema.VerdictFalse, nil},
		{"-5 % -3 == 2", schema.VerdictFalse, nil},
		{"1 // 0 == 15 or -10 % (5 - 10 // 2) + 15 == 17", schema.VerdictUndefined, []string{"Division by 0", "Taking modulo by 0"}},
		{"(3 or -10 % 0) < 5", schema.VerdictTrue, []string{"Taking modulo by 0"}},
		{"1 >> -1 == 2", schema.VerdictUndefined, []string{"Shifting by negative number (-1)"}},
		{"1 << (17 - 20) == 0", schema.VerdictUndefined, []string{"Shifting by negative number (-3)"}},
		{"0 ** 0 == 1", schema.VerdictTrue, nil},
		{"0 ** 0 == 0", schema.VerdictFalse, nil},
		{"(0 ** 1) == 0", schema.VerdictTrue, nil},
		{"0 ** (25 // 6 - 5) == 1", schema.VerdictUndefined, []string{"0 cannot be raised to a negative power (-1)"}},
	})
}

func TestFloatConditions(t *testing.T) {
	ev := New(Options{})
	checkVerdicts(t, ev, []verdictCase{
		{"0.0", schema.VerdictFalse, nil},
		{"-1.0", schema.VerdictTrue, nil},
		{"1e-6", schema.VerdictTrue, nil},
		{"1.0 + 0.5 < 1.6", schema.VerdictTrue, nil},
		{"1.0 + 0.5 < -1.6", schema.VerdictFalse, nil},
		{"0.0 == 0 and 0 == -0.0", schema.VerdictTrue, nil},
		{"1.0 - 1.5 <= -0.4", schema.VerdictTrue, nil},
		{"1.0 - 0.5 < 0.6", schema.VerdictTrue, nil},
		{"1.0 - (0.5 + 0.2) - 0 > 0.6", schema.VerdictFalse, nil},
		{"7.5 // 1.8 == 4.0", schema.VerdictTrue, nil},
		{"-7.5 // 1.8 == -5.0", schema.VerdictTrue, nil},
		{"7.5 // -1.8 == -5.0", schema.VerdictTrue, nil},
		{"-7.5 // -1.8 == 4.0", schema.VerdictTrue, nil},
		{"7.5 % 1.8 < 0.3 + 1e-6 and 7.5 % 1.8 > 0.3 - 1e-6", schema.VerdictTrue, nil},
		{"-7.5 % 1.8 < 1.5 + 1e-6 and -7.5 % 1.8 > 1.5 - 1e-6", schema.VerdictTrue, nil},
		{"7.5 % -1.8 < -1.5 + 1e-6 and 7.5 % -1.8 > -1.5 - 1e-6", schema.VerdictTrue, nil},
		{"-7.5 % -1.8 < -0.3 + 1e-6 and -7.5 % -1.8 > -0.3 - 1e-6", schema.VerdictTrue, nil},
		{"1 % (1 / 3) < 1e-6 and 1 % (1 / 3) > -1e-6", schema.VerdictTrue, nil},
	})
}

func TestNumericTower(t *testing.T) {
	ev := New(Options{})
	checkVerdicts(t, ev, []verdictCase{
		{"-2 ** 2 == -4", schema.VerdictTrue, nil},
		{"2 ** -1 == 0.5", schema.VerdictTrue, nil},
		{"1 / 2 == 0.5", schema.VerdictTrue, nil},
		{"2 ** 100 > 10 ** 30", schema.VerdictTrue, nil},
		{"10 ** 20 == 1e20", schema.VerdictTrue, nil},
		{"2 ** 53 + 1 == 2.0 ** 53", schema.VerdictFalse, nil},
		{"10 & 12.3 == 8", schema.VerdictUndefined, []string{"Bitwise operation on non-integer operand (float)"}},
		{"(0x10 | 0b1) == 17", schema.VerdictTrue, nil},
		{"~0 == -1", schema.VerdictTrue, nil},
	})

	res := run(t, ev, "True & True")
	assert.True(t, value.Identical(value.Bool(true), res.Value))

	res = run(t, ev, "(4 < 5 > 3 and 5)")
	assert.True(t, value.Identical(value.IntFrom(5), res.Value))
}

func TestFloatOperandWarnings(t *testing.T) {
	ev := New(Options{ScanSkipped: true})
	checkVerdicts(t, ev, []verdictCase{
		{"7.5 // 0", schema.VerdictUndefined, []string{"Division by 0"}},
		{"7.5 % 0", schema.VerdictUndefined, []string{"Taking modulo by 0"}},
		{"7.5 / 0", schema.VerdictUndefined, []string{"Division by 0"}},
		{"7 // -0.0", schema.VerdictUndefined, []string{"Division by 0"}},
		{"7 % 0.0 == 1", schema.VerdictUndefined, []string{"Taking modulo by 0"}},
		{"1.5 % False", schema.VerdictUndefined, []string{"Taking modulo by 0"}},
		{"a // 0.0 > 1", schema.VerdictUndefined, []string{"Division by 0"}},
		{"~1.5", schema.VerdictUndefined, []string{"Bitwise operation on non-integer operand (float)"}},
		{"~1.5 == -2 or 1", schema.VerdictUndefined, []string{"Bitwise operation on non-integer operand (float)"}},
		{"-0.0 == 0", schema.VerdictTrue, nil},
		{"not -0.0", schema.VerdictTrue, nil},
	})
}

func TestShortCircuit(t *testing.T) {
	plain := New(Options{})
	scan := New(Options{ScanSkipped: true})

	res := run(t, plain, "0 and 1 // 0")
	assert.True(t, value.Identical(value.IntFrom(0), res.Value))
	assert.Empty(t, res.Warnings)

	res = run(t, scan, "0 and 1 // 0")
	assert.True(t, value.Identical(value.IntFrom(0), res.Value))
	require.Len(t, res.Warnings, 1)
	assert.True(t, res.Warnings[0].Skipped)
	assert.Equal(t, diag.DivisionByZero, res.Warnings[0].Kind)

	res = run(t, scan, "1 < 0 < 1 // 0")
	assert.Equal(t, schema.VerdictFalse, res.Verdict())
	require.Len(t, res.Warnings, 1)
	assert.True(t, res.Warnings[0].Skipped)

	res = run(t, plain, "(3 or -10 % 0) < 5")
	assert.Equal(t, schema.VerdictTrue, res.Verdict())
	assert.Empty(t, res.Warnings)

	// An unknown left operand evaluates the right one for real.
	res = run(t, plain, "a or 1 // 0")
	assert.False(t, res.Value.IsDefined())
	require.Len(t, res.Warnings, 1)
	assert.False(t, res.Warnings[0].Skipped)
}

func TestChainUnknownLinks(t *testing.T) {
	ev := New(Options{})
	checkVerdicts(t, ev, []verdictCase{
		{"a < 1 < 0", schema.VerdictFalse, nil},
		{"a < 1 < 2", schema.VerdictUndefined, nil},
		{"1 < a < 0 > 1", schema.VerdictFalse, nil},
		{"not a", schema.VerdictUndefined, nil},
		{"not 0", schema.VerdictTrue, nil},
		{"int(input()) == 3", schema.VerdictUndefined, nil},
		{"'abc' == 'abc'", schema.VerdictUndefined, nil},
	})
}

func TestBindings(t *testing.T) {
	ev := New(Options{Bindings: Bindings{"x": value.IntFrom(2), "flag": value.Bool(false)}})
	checkVerdicts(t, ev, []verdictCase{
		{"x + 1 == 3", schema.VerdictTrue, nil},
		{"flag or x > 5", schema.VerdictFalse, nil},
		{"y == 1", schema.VerdictUndefined, nil},
	})
}

func TestWarningPosition(t *testing.T) {
	res := run(t, New(Options{}), "1 + (\n  5 // 0)")
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, diag.Pos{Offset: 8, Line: 2, Column: 3}, res.Warnings[0].Pos)
	assert.Equal(t, "5 // 0", res.Warnings[0].Operands)
}

func TestMalformedTrees(t *testing.T) {
	ev := New(Options{})
	one := &ast.IntLit{Value: value.IntFrom(1).BigInt()}

	malformed := []ast.Expr{
		nil,
		&ast.Binary{Op: ast.Add, X: nil, Y: one},
		&ast.Binary{Op: ast.BinaryOp(99), X: one, Y: one},
		&ast.Compare{Left: one, Ops: []ast.CompareOp{ast.Lt, ast.Gt}, Rights: []ast.Expr{one}},
		&ast.Compare{Left: one},
		&ast.Logical{Op: ast.LogicalOp(9), X: one, Y: one},
		&ast.IntLit{},
	}
	for _, e := range malformed {
		_, err := ev.SafeEvaluate(e)
		require.Error(t, err)
		assert.True(t, schema.HasCode(err, schema.ErrCodeMalformedTree), "%#v", e)
	}

	assert.Panics(t, func() { ev.Evaluate(nil) })
}

func TestParseErrorsSurface(t *testing.T) {
	_, err := New(Options{}).EvaluateSource("1 +")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeParse))
}

func TestConcurrentEvaluation(t *testing.T) {
	ev := New(Options{ScanSkipped: true})
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res, err := ev.EvaluateSource(fmt.Sprintf("%d // 0 == 1 or %d %% 7 >= 0", n, n))
			assert.NoError(t, err)
			assert.Len(t, res.Warnings, 1)
			assert.Equal(t, schema.VerdictUndefined, res.Verdict())
		}(i)
	}
	wg.Wait()
}

func TestEvaluationProperties(t *testing.T) {
	ev := New(Options{})
	properties := gopter.NewProperties(nil)

	properties.Property("floor division identity holds through the parser", prop.ForAll(
		func(a, b int64) bool {
			if b == 0 {
				return true
			}
			src := fmt.Sprintf("(%d) == ((%d) // (%d)) * (%d) + (%d) %% (%d)", a, a, b, b, a, b)
			res, err := ev.EvaluateSource(src)
			return err == nil && res.Verdict() == schema.VerdictTrue && len(res.Warnings) == 0
		},
		gen.Int64(),
		gen.Int64(),
	))

	properties.Property("a chain equals the conjunction of its links", prop.ForAll(
		func(a, b, c int) bool {
			chain, err1 := ev.EvaluateSource(fmt.Sprintf("(%d) < (%d) <= (%d)", a, b, c))
			links, err2 := ev.EvaluateSource(fmt.Sprintf("(%d) < (%d) and (%d) <= (%d)", a, b, b, c))
			return err1 == nil && err2 == nil && chain.Verdict() == links.Verdict()
		},
		gen.IntRange(-5, 5),
		gen.IntRange(-5, 5),
		gen.IntRange(-5, 5),
	))

	properties.TestingRun(t)
}
