package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"scscp.dev/scscpd"
	"scscp.dev/scscpd/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the SCSCP server",
	Long: `Start the SCSCP server in the foreground.

Configuration is read from defaults, an optional --config file, and
SCSCPD_-prefixed environment variables, in that order of precedence.

Examples:
  scscpd serve
  scscpd serve --config /etc/scscpd/config.yaml
  SCSCPD_ADDR=0.0.0.0:26133 scscpd serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)

	registerer := prometheus.NewRegistry()
	svc := server.NewService()

	acceptor := server.NewAcceptor(svc.Mux(),
		server.Addr(cfg.Addr),
		server.AcceptGrace(cfg.AcceptGrace),
		server.MetricsRegisterer(registerer),
		server.SessionOptions(
			scscp.ServiceName(cfg.ServiceName),
			scscp.ServiceVersion(cfg.ServiceVersion),
			scscp.ServiceID(cfg.ServiceID),
			scscp.WithLogger(logger),
			scscp.ReapInterval(cfg.ReapInterval),
			scscp.ReapMaxAge(cfg.ReapMaxAge),
		),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("scscpd listening", "addr", cfg.Addr, "service_name", cfg.ServiceName, "service_version", cfg.ServiceVersion)
	if err := acceptor.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("scscpd stopped")
	return nil
}
