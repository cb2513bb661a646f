package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/werewolf-backend/internal/config"
	"github.com/DoyleJ11/werewolf-backend/internal/httpapi"
	"github.com/DoyleJ11/werewolf-backend/internal/hub"
	"github.com/DoyleJ11/werewolf-backend/internal/journal"
	"github.com/DoyleJ11/werewolf-backend/internal/logging"
	"github.com/DoyleJ11/werewolf-backend/internal/runner"
	"github.com/DoyleJ11/werewolf-backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

var (
	envFile string
	addr    string
)

var rootCmd = &cobra.Command{
	Use:           "werewolf-server",
	Short:         "Serve werewolf lobbies over websockets",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.Addr = addr
		}
		log, err := logging.New(cfg.LogLevel, cfg.Dev)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func init() {
	rootCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides ADDR")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) (err error) {
	var j journal.Journal = journal.Nop{}
	var store *journal.Store
	if cfg.DatabaseURL != "" {
		store, err = journal.Open(cfg.DatabaseURL, log)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, store.Close()) }()
		j = store
	}

	g, ctx := errgroup.WithContext(ctx)

	// The hub and the journal writer outlive ctx. Shutdown stops the server,
	// then the lobbies, and only then the writer that flushes their entries.
	hubCtx, cancelHub := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelHub()
	journalCtx, stopJournal := context.WithCancel(context.WithoutCancel(ctx))
	defer stopJournal()
	h := hub.NewHub(hubCtx, hub.Options{
		Logger:  log,
		Mailbox: cfg.Mailbox,
		RunGame: runner.New(runner.Config{Timeout: cfg.PhaseTimeout}).Run,
		Journal: j,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(h, log, ws.Options{OriginPatterns: cfg.OriginPatterns}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if store != nil {
		g.Go(func() error { return store.Run(journalCtx) })
	}
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		defer stopJournal()
		return multierr.Combine(
			srv.Shutdown(shutdownCtx),
			h.Shutdown(shutdownCtx),
		)
	})
	return g.Wait()
}
