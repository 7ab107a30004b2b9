package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/logrusorgru/aurora/v4"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/rendis/pyconst/internal/engine"
	"github.com/rendis/pyconst/internal/expressions"
	"github.com/rendis/pyconst/internal/inspect"
	"github.com/rendis/pyconst/internal/logging"
	"github.com/rendis/pyconst/internal/store"
	"github.com/rendis/pyconst/internal/telemetry"
	"github.com/rendis/pyconst/pkg/schema"
)

// app is the per-invocation state shared by subcommands. It is built in the
// root command's PersistentPreRunE once flags are parsed.
type app struct {
	cfg    Config
	logger *slog.Logger
	au     *aurora.Aurora
	color  bool
}

type appKey struct{}

// appFrom returns the app stored on the command's context.
func appFrom(cmd *cobra.Command) *app {
	if a, ok := cmd.Context().Value(appKey{}).(*app); ok {
		return a
	}
	a := &app{cfg: defaultConfig(), logger: logging.Discard()}
	a.au = aurora.New(aurora.WithColors(false))
	return a
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pyconst",
		Short: "Find constant if/elif conditions in Python source",
		Long: "pyconst folds Python numeric expressions (ints, floats, bools) at analysis time and\n" +
			"reports if/elif conditions that are always true, always false, or would raise.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage:      true,
		PersistentPreRunE: setupApp,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (default: .pyconst.yaml in the working directory)")
	pf.String("db", "", "History database path")
	pf.String("log-level", "", "Log level: debug | info | warn | error")
	pf.String("log-format", "", "Log format: text | json")
	pf.Bool("verbose", false, "Enable verbose/debug logging")
	pf.Bool("no-color", false, "Disable colored output")
	pf.Int("pool-size", 0, "Files inspected concurrently")
	pf.Int("max-int-bits", 0, "Largest integer result, in bits")

	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("pyconst version %s\n", version))

	root.AddCommand(
		newCheckCmd(),
		newEvalCmd(),
		newFixtureCmd(),
		newReplCmd(),
		newHistoryCmd(),
		newWatchCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return root
}

// setupApp resolves configuration and builds the logger.
func setupApp(cmd *cobra.Command, _ []string) error {
	explicit, _ := cmd.Flags().GetString("config")
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	cfg, err := loadConfig(explicit, wd)
	if err != nil {
		return err
	}

	// Layer 4: flags override.
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath, _ = flags.GetString("db")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}
	if v, _ := flags.GetBool("verbose"); v {
		cfg.LogLevel = "debug"
	}
	if v, _ := flags.GetBool("no-color"); v {
		cfg.Color = "never"
	}
	if flags.Changed("pool-size") {
		cfg.PoolSize, _ = flags.GetInt("pool-size")
	}
	if flags.Changed("max-int-bits") {
		cfg.MaxIntBits, _ = flags.GetInt("max-int-bits")
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return schema.NewError(schema.ErrCodeConfig, err.Error())
	}
	a := &app{
		cfg:    cfg,
		logger: logging.New(cmd.ErrOrStderr(), level, cfg.LogFormat == "json"),
		color:  useColor(cfg.Color, cmd.OutOrStdout()),
	}
	a.au = aurora.New(aurora.WithColors(a.color))
	if cfg.Source != "" {
		a.logger.Debug("config loaded", "path", cfg.Source)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, appKey{}, a))
	return nil
}

// useColor resolves the color setting against the output stream.
func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// inspector builds an Inspector from the resolved config plus extra
// bindings given on the command line.
func (a *app) inspector(extra map[string]any) (*inspect.Inspector, error) {
	data := make(map[string]any, len(a.cfg.Bindings)+len(extra))
	for k, v := range a.cfg.Bindings {
		data[k] = v
	}
	for k, v := range extra {
		data[k] = v
	}
	bindings, err := expressions.Bindings(data)
	if err != nil {
		return nil, err
	}
	return inspect.New(inspect.Config{
		Limits:        a.cfg.limits(),
		Bindings:      bindings,
		HideSkipped:   !a.cfg.IncludeSkippedWarnings,
		NoScanSkipped: !a.cfg.ScanSkipped,
	}, a.logger, telemetry.Global()), nil
}

// batch builds a batch runner over in.
func (a *app) batch(in *inspect.Inspector, opts ...engine.BatchOption) *engine.Batch {
	opts = append([]engine.BatchOption{engine.WithPoolSize(a.cfg.PoolSize)}, opts...)
	return engine.NewBatch(in, a.logger, telemetry.Global(), opts...)
}

// openStore opens and migrates the history database.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	if dir := filepath.Dir(a.cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	st, err := store.NewLibSQLStore(a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	a.logger.Debug("history database opened", "path", a.cfg.DBPath)
	return st, nil
}
