package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/apexion-ai/vesselcheck/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		addr string
		seed bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP chat API",
		Example: `  vesselcheck serve --addr :8080 --seed
  VESSELCHECK_PROVIDER=anthropic vesselcheck serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr, seed)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides listen_addr)")
	cmd.Flags().BoolVar(&seed, "seed", false, "load the built-in checklist when the database is empty")

	return cmd
}

func runServe(ctx context.Context, addr string, seed bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, "")
	if err != nil {
		return err
	}
	defer a.Close()

	if addr != "" {
		a.cfg.ListenAddr = addr
	}
	if seed {
		if _, err := seedStore(ctx, a.store, "", a.log); err != nil {
			return err
		}
	}

	srv := server.NewServer(a.orch, a.store, a.memory, server.Options{
		Addr:          a.cfg.ListenAddr,
		Version:       appVersion,
		HistoryWindow: a.cfg.HistoryWindow,
		ModelTimeout:  a.cfg.ModelTimeout,
		Logger:        a.log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		a.memory.RunSweeper(gctx, a.cfg.Memory.SweepInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}
