package main

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"

	"github.com/rendis/pyconst/internal/expressions"
	"github.com/rendis/pyconst/internal/parser"
	"github.com/rendis/pyconst/internal/value"
)

const replHelpMessage = `
Enter a Python expression to fold it, or 'name = expression' to bind a name.
Commands are prefixed with a dot. Valid commands are:

.vars          List bound names
.unset <name>  Remove a binding
.dump <expr>   Print the parsed expression tree
.exit          Exit the REPL
.help          Print this help message

Press ^D on an empty line to exit`

const replAssistanceMessage = `Type '.help' for assistance.`

var assignment = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=([^=].*)$`)

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactively fold Python expressions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			s := newReplSession(a, cmd.OutOrStdout())
			fmt.Fprintf(s.out, "pyconst %s\n%s\n\n", version, replAssistanceMessage)
			prompt.New(s.execute, s.complete,
				prompt.OptionPrefix(">>> "),
				prompt.OptionTitle("pyconst"),
				prompt.OptionSetExitCheckerOnInput(func(_ string, breakline bool) bool {
					return breakline && s.done
				}),
			).Run()
			return nil
		},
	}
}

// replSession holds the bindings accumulated across REPL lines.
type replSession struct {
	app    *app
	out    io.Writer
	engine *expressions.PythonEngine
	vars   map[string]any
	done   bool
}

func newReplSession(a *app, out io.Writer) *replSession {
	vars := make(map[string]any, len(a.cfg.Bindings))
	for k, v := range a.cfg.Bindings {
		vars[k] = v
	}
	return &replSession{
		app:    a,
		out:    out,
		engine: expressions.NewPythonEngine(a.cfg.limits(), a.cfg.ScanSkipped),
		vars:   vars,
	}
}

func (s *replSession) execute(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if strings.HasPrefix(line, ".") {
		s.command(line)
		return
	}
	if m := assignment.FindStringSubmatch(line); m != nil {
		s.bind(m[1], strings.TrimSpace(m[2]))
		return
	}

	res, err := s.engine.Fold(context.Background(), line, s.vars)
	if err != nil {
		s.printErr(err)
		return
	}
	printResult(s.out, s.app, res)
}

func (s *replSession) bind(name, expression string) {
	res, err := s.engine.Fold(context.Background(), expression, s.vars)
	if err != nil {
		s.printErr(err)
		return
	}
	s.vars[name] = res.Value
	fmt.Fprintf(s.out, "%s = %s\n", name, res.Value)
	for _, w := range res.Warnings {
		fmt.Fprintln(s.out, s.app.au.Yellow("  warning: "+w.Message))
	}
}

func (s *replSession) command(line string) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case ".exit", ".quit":
		s.done = true
	case ".help":
		fmt.Fprintln(s.out, replHelpMessage)
	case ".vars":
		for _, name := range s.names() {
			fmt.Fprintf(s.out, "%s = %v\n", name, s.vars[name])
		}
	case ".unset":
		delete(s.vars, arg)
	case ".dump":
		tree, err := parser.Parse(arg)
		if err != nil {
			s.printErr(err)
			return
		}
		fmt.Fprintf(s.out, "%+v\n", dumpTree(tree))
	default:
		fmt.Fprintln(s.out, s.app.au.Red(fmt.Sprintf("Unknown command. %s", replAssistanceMessage)))
	}
}

func (s *replSession) printErr(err error) {
	fmt.Fprintln(s.out, s.app.au.Red("error: "+err.Error()))
}

func (s *replSession) names() []string {
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var replKeywords = []prompt.Suggest{
	{Text: "and", Description: "logical and"},
	{Text: "or", Description: "logical or"},
	{Text: "not", Description: "logical not"},
	{Text: "True", Description: "bool"},
	{Text: "False", Description: "bool"},
	{Text: ".vars", Description: "list bound names"},
	{Text: ".unset", Description: "remove a binding"},
	{Text: ".dump", Description: "print the expression tree"},
	{Text: ".help", Description: "print help"},
	{Text: ".exit", Description: "exit the REPL"},
}

func (s *replSession) complete(d prompt.Document) []prompt.Suggest {
	word := d.GetWordBeforeCursor()
	if word == "" {
		return nil
	}
	suggests := append([]prompt.Suggest{}, replKeywords...)
	for _, name := range s.names() {
		desc := "binding"
		if v, ok := s.vars[name].(value.Value); ok {
			desc = v.TypeName() + " " + v.String()
		}
		suggests = append(suggests, prompt.Suggest{Text: name, Description: desc})
	}
	return prompt.FilterHasPrefix(suggests, word, false)
}
