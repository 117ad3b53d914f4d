package main

import (
	"context"
	"errors"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/indigo-web/strand"
	"github.com/indigo-web/strand/internal/logging"
	"github.com/indigo-web/strand/metrics"
	"github.com/spf13/cobra"
)

const metricsShutdownTimeout = 5 * time.Second

var serveFlags struct {
	listen    string
	logLevel  string
	tlsAddr   string
	tlsCert   string
	tlsKey    string
	autoHTTPS []string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server",
	Long: `Start the server with the demo application.

The server shuts down gracefully on SIGINT or SIGTERM: no new connections are
accepted and the requests in flight are answered within the shutdown timeout.

Examples:
  # Start with the defaults
  strand serve

  # Override the listen address
  strand serve --listen 0.0.0.0:8080

  # Serve HTTPS as well
  strand serve --tls-addr :8443 --tls-cert cert.pem --tls-key key.pem`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listen, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&serveFlags.tlsAddr, "tls-addr", "", "address of the TLS listener")
	serveCmd.Flags().StringVar(&serveFlags.tlsCert, "tls-cert", "", "certificate file of the TLS listener")
	serveCmd.Flags().StringVar(&serveFlags.tlsKey, "tls-key", "", "key file of the TLS listener")
	serveCmd.Flags().StringSliceVar(&serveFlags.autoHTTPS, "auto-https", nil,
		"obtain certificates for the domains via ACME (self-signed on localhost)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if serveFlags.listen != "" {
		cfg.NET.Addr = serveFlags.listen
	}

	if serveFlags.logLevel != "" {
		cfg.Log.Level = serveFlags.logLevel
	}

	logger, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := strand.New(cfg).
		Logger(logger).
		Listen(cfg.NET.Addr)

	if cfg.Metrics.Enabled {
		m := metrics.New(cfg.Metrics.Namespace, nil)
		app.Metrics(m)

		go serveMetrics(ctx, cfg.Metrics.Addr, m, logger)
	}

	switch {
	case serveFlags.tlsAddr == "":
	case len(serveFlags.autoHTTPS) > 0:
		app.AutoHTTPS(serveFlags.tlsAddr, serveFlags.autoHTTPS...)
	case serveFlags.tlsCert != "" && serveFlags.tlsKey != "":
		app.HTTPS(serveFlags.tlsAddr, serveFlags.tlsCert, serveFlags.tlsKey)
	default:
		return errors.New("--tls-addr requires either --tls-cert with --tls-key or --auto-https")
	}

	logger.Info("starting",
		slog.String("version", Version),
		slog.Duration("keepalive", cfg.KeepAlive.Timeout),
		slog.Bool("compression", cfg.Compression.Enabled),
	)

	return app.Serve(ctx, demo(logger))
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *slog.Logger) {
	mux := nethttp.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &nethttp.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", slog.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		logger.Error("metrics server failed", slog.Any("error", err))
	}
}
