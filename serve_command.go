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

	"loom_autopublisher/ledger"
	"loom_autopublisher/observe"
	"loom_autopublisher/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		addr    string
		mockLLM bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			logger := ctx.logger

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdownMetrics, err := observe.InitProvider(runCtx, "loom-autopublisher", version)
			if err != nil {
				return fmt.Errorf("init metrics: %w", err)
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownMetrics(sctx); err != nil {
					logger.Warn("metrics shutdown failed", "err", err)
				}
			}()
			metrics := observe.DefaultMetrics()

			store, err := ledger.Open(cfg.LedgerPath)
			if err != nil {
				return err
			}
			defer store.Close()

			synth, err := ctx.buildSynthesizer(mockLLM, metrics)
			if err != nil {
				return err
			}
			orch, err := ctx.buildOrchestrator(synth, metrics, store)
			if err != nil {
				return err
			}
			srv, err := server.New(orch, synth, store,
				server.WithBrandStyle(ctx.brandStyle()),
				server.WithLogger(logger.With("component", "server")),
			)
			if err != nil {
				return err
			}

			listen := cfg.ServerAddr
			if addr != "" {
				listen = addr
			}
			httpSrv := &http.Server{
				Addr:              listen,
				Handler:           srv.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting web server", "addr", listen)
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-runCtx.Done():
			}

			logger.Info("shutting down web server")
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(sctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server_addr)")
	cmd.Flags().BoolVar(&mockLLM, "mock-llm", false, "Use the offline mock model")
	return cmd
}
