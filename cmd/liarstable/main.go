package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/liars-table/internal/config"
	"github.com/DoyleJ11/liars-table/internal/hub"
	"github.com/DoyleJ11/liars-table/internal/logging"
	"github.com/DoyleJ11/liars-table/internal/session"
	"github.com/DoyleJ11/liars-table/internal/store"
	"github.com/DoyleJ11/liars-table/internal/transport"
	"github.com/DoyleJ11/liars-table/internal/viewapi"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &config.Config{}
	cobra.CheckErr(newCmd(cfg).ExecuteContext(ctx))
}

func newCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "liarstable",
		Short: "Client sync layer for a Liar's Table game authority.",
		Args:  cobra.ExactArgs(0),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.ApplyEnv(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	config.BindFlags(cmd.Flags(), cfg)
	cmd.AddCommand(newSchemaCmd())

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := logging.New(cfg.LogLevel, cfg.Dev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	h := hub.NewHub(ctx, opener(cfg, st, log), log)
	if _, err := h.Ensure(ctx, cfg.Table); err != nil {
		return multierr.Combine(err, h.Shutdown(), st.Close())
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           viewapi.SetupRoutes(h, log.Named("viewapi")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("view api listening",
			zap.String("addr", cfg.Listen),
			zap.String("mode", cfg.Mode),
			zap.String("table", cfg.Table),
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs error
		errs = multierr.Append(errs, srv.Shutdown(sctx))
		errs = multierr.Append(errs, h.Shutdown())
		errs = multierr.Append(errs, st.Close())
		return errs
	})

	err = g.Wait()
	log.Info("stopped", zap.Error(err))
	return err
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.StoreDSN == "" {
		return store.NewMemory(), nil
	}
	return store.OpenPostgres(cfg.StoreDSN)
}

// opener builds a session per table over the configured transport.
func opener(cfg *config.Config, st store.Store, log *zap.Logger) hub.Factory {
	return func(ctx context.Context, table string) (*session.Session, error) {
		return session.New(ctx, session.Config{
			Table:  table,
			Store:  st,
			Logger: log,
			Dial: func(opts transport.Options) transport.Transport {
				opts = cfg.TransportOptions(opts)
				if config.Mode(cfg.Mode) == config.ModePoll {
					return transport.NewPoll(cfg.PollURL, cfg.CommandURL, nil, opts)
				}
				return transport.NewPush(cfg.WSURL, opts)
			},
		})
	}
}
