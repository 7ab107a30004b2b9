package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/pyconst/internal/expressions"
	"github.com/rendis/pyconst/internal/store"
	"github.com/rendis/pyconst/pkg/mcp"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pyconst tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().Bool("no-history", false, "Run without the history database")
	cmd.Flags().Bool("watch", false, "Also run the watch scheduler and notify clients of each run")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a := appFrom(cmd)
	noHistory, _ := cmd.Flags().GetBool("no-history")
	watch, _ := cmd.Flags().GetBool("watch")
	if noHistory && watch {
		return exitError(exitUsage, "--watch needs the history database")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if !noHistory {
		s, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		st = s
	}

	in, err := a.inspector(nil)
	if err != nil {
		return err
	}
	srv, err := mcp.NewServer(mcp.ServerDeps{
		Python:    expressions.NewPythonEngine(a.cfg.limits(), a.cfg.ScanSkipped),
		Inspector: in,
		Store:     st,
		Logger:    a.logger,
		Version:   version,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		if err := srv.Serve(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if watch {
		g.Go(func() error {
			return runScheduler(gctx, a, st, srv.Notifier().OnRun)
		})
	}
	a.logger.Info("mcp server listening on stdio", "watch", watch, "history", st != nil)
	return g.Wait()
}
