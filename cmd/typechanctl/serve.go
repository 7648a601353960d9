package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/typechan/internal/config"
	"github.com/danmuck/typechan/internal/observability"
	"github.com/danmuck/typechan/internal/rpc"
	"github.com/danmuck/typechan/internal/transport"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var path string
	cfg := config.DefaultServerConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an echo RPC server with a metrics endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path != "" {
				loaded, err := config.LoadServerConfig(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if err := config.ValidateServerConfig(cfg); err != nil {
				return err
			}
			if cfg.RegistryPath == "" {
				return errors.New("serve requires a registry file")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "server config file")
	cmd.Flags().StringVar(&cfg.Name, "name", cfg.Name, "rpc name")
	cmd.Flags().StringVar(&cfg.RegistryPath, "registry", cfg.RegistryPath, "registry file")
	cmd.Flags().StringVar(&cfg.RequestFormat, "request", cfg.RequestFormat, "request format")
	cmd.Flags().StringVar(&cfg.ReplyFormat, "reply", cfg.ReplyFormat, "reply format")
	cmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "metrics listen address, empty to disable")
	return cmd
}

func newRouter(reg *transport.FileRegistry) http.Handler {
	observability.RegisterMetrics()
	r := chi.NewRouter()
	r.Use(observability.RequestLogger(log.Logger), observability.RequestMetricsMiddleware("typechanctl"))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/channels", func(w http.ResponseWriter, _ *http.Request) {
		for _, name := range reg.Names() {
			_, _ = w.Write([]byte(name + "\n"))
		}
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func runServer(ctx context.Context, cfg config.ServerConfig) error {
	reg, err := transport.OpenFileRegistry(cfg.RegistryPath)
	if err != nil {
		return err
	}
	defer reg.Close()
	if err := reg.Watch(); err != nil {
		log.Warn().Err(err).Msg("registry watch disabled")
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: newRouter(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	server, err := rpc.BindServerFormat(reg, cfg.Name, cfg.RequestFormat, cfg.ReplyFormat)
	if err != nil {
		return err
	}
	defer server.Close()
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	log.Info().Str("rpc", cfg.Name).Str("request", cfg.RequestFormat).Str("reply", cfg.ReplyFormat).Msg("serving")
	err = rpc.Serve(ctx, server, func(_ context.Context, req []any) ([]any, error) {
		return req, nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
