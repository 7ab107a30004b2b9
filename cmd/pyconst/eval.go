package main

import (
	"fmt"
	"io"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/rendis/pyconst/internal/ast"
	"github.com/rendis/pyconst/internal/eval"
	"github.com/rendis/pyconst/internal/expressions"
	"github.com/rendis/pyconst/internal/parser"
	"github.com/rendis/pyconst/internal/value"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Fold a single Python expression",
		Args:  cobra.ExactArgs(1),
		RunE:  runEval,
	}

	cmd.Flags().StringArray("var", nil, "Bind a name: name=value (repeatable)")
	cmd.Flags().Bool("dump", false, "Print the parsed expression tree")
	cmd.Flags().String("format", "text", "Output format: text | json")

	return cmd
}

func runEval(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	out := cmd.OutOrStdout()
	expression := args[0]

	varPairs, _ := cmd.Flags().GetStringArray("var")
	dump, _ := cmd.Flags().GetBool("dump")
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return exitError(exitUsage, "unknown format %q: want text or json", format)
	}

	vars, err := parseVars(varPairs)
	if err != nil {
		return err
	}
	data := make(map[string]any, len(a.cfg.Bindings)+len(vars))
	for k, v := range a.cfg.Bindings {
		data[k] = v
	}
	for k, v := range vars {
		data[k] = v
	}

	if dump {
		tree, err := parser.Parse(expression)
		if err != nil {
			return err
		}
		printer := pp.New()
		printer.SetColoringEnabled(a.color)
		printer.SetOutput(out)
		if _, err := printer.Println(dumpTree(tree)); err != nil {
			return err
		}
	}

	engine := expressions.NewPythonEngine(a.cfg.limits(), a.cfg.ScanSkipped)
	if format == "json" {
		res, err := engine.Evaluate(cmd.Context(), expression, data)
		if err != nil {
			return err
		}
		return writeJSON(out, res)
	}

	res, err := engine.Fold(cmd.Context(), expression, data)
	if err != nil {
		return err
	}
	printResult(out, a, res)
	return nil
}

func printResult(w io.Writer, a *app, res eval.Result) {
	v := res.Value
	text := fmt.Sprintf("%s (%s)", v, v.TypeName())
	switch {
	case !v.IsDefined():
		fmt.Fprintln(w, a.au.Yellow(text))
	case v.Truth() == value.TruthTrue:
		fmt.Fprintln(w, a.au.Green(text))
	default:
		fmt.Fprintln(w, a.au.Red(text))
	}
	for _, wr := range res.Warnings {
		line := fmt.Sprintf("  warning: %s", wr.Message)
		if wr.Skipped {
			line += " (short-circuited)"
		}
		fmt.Fprintln(w, a.au.Yellow(line))
	}
}

// dumpNode is a printable view of an expression tree.
type dumpNode struct {
	Node     string
	Op       string
	Text     string
	Span     string
	Children []dumpNode
}

func dumpTree(e ast.Expr) dumpNode {
	n := dumpNode{Span: fmt.Sprintf("%d:%d-%d:%d", e.Pos().Line, e.Pos().Column, e.End().Line, e.End().Column)}
	switch x := e.(type) {
	case *ast.IntLit:
		n.Node, n.Text = "Int", ast.Format(x)
	case *ast.FloatLit:
		n.Node, n.Text = "Float", ast.Format(x)
	case *ast.BoolLit:
		n.Node, n.Text = "Bool", ast.Format(x)
	case *ast.Name:
		n.Node, n.Text = "Name", x.Name
	case *ast.Opaque:
		n.Node, n.Text = "Opaque", x.Text
	case *ast.Paren:
		n.Node = "Paren"
		n.Children = []dumpNode{dumpTree(x.X)}
	case *ast.Unary:
		n.Node, n.Op = "Unary", x.Op.String()
		n.Children = []dumpNode{dumpTree(x.X)}
	case *ast.Not:
		n.Node, n.Op = "Not", "not"
		n.Children = []dumpNode{dumpTree(x.X)}
	case *ast.Binary:
		n.Node, n.Op = "Binary", x.Op.String()
		n.Children = []dumpNode{dumpTree(x.X), dumpTree(x.Y)}
	case *ast.Logical:
		n.Node, n.Op = "Logical", x.Op.String()
		n.Children = []dumpNode{dumpTree(x.X), dumpTree(x.Y)}
	case *ast.Compare:
		n.Node = "Compare"
		for i, op := range x.Ops {
			if i > 0 {
				n.Op += " "
			}
			n.Op += op.String()
		}
		n.Children = []dumpNode{dumpTree(x.Left)}
		for _, r := range x.Rights {
			n.Children = append(n.Children, dumpTree(r))
		}
	default:
		n.Node, n.Text = fmt.Sprintf("%T", e), ast.Format(e)
	}
	return n
}
