package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jmcleod/backdrop/api"
	"github.com/jmcleod/backdrop/config"
	"github.com/jmcleod/backdrop/editor"
	"github.com/jmcleod/backdrop/internal/util"
	"github.com/jmcleod/backdrop/ledger"
	"github.com/jmcleod/backdrop/metrics"
	"github.com/jmcleod/backdrop/segment"
	"github.com/jmcleod/backdrop/session"
)

const lockoutSweepInterval = 5 * time.Minute

var (
	port    int
	dataDir string
	tlsCert string
	tlsKey  string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the background editor server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyServerFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger := cfg.Log.NewLogger()
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		repo, err := openRepository(ctx, cfg.Storage, false)
		if err != nil {
			return err
		}
		defer repo.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		editorMetrics := metrics.NewEditor(reg)

		usage := ledger.NewStore(repo,
			ledger.WithClock(clockwork.NewRealClock()),
			ledger.WithLogger(logger))

		gateway := segment.NewLimited(
			segment.NewBreaker(
				segment.NewHTTPClient(cfg.Segmentation.URL, nil),
				segment.BreakerSettings{
					ConsecutiveFailures: cfg.Segmentation.BreakerFailures,
					OpenTimeout:         cfg.Segmentation.BreakerOpenTimeout,
					OnStateChange:       editorMetrics.BreakerStateChanged,
				}),
			cfg.Segmentation.MaxConcurrent)

		sessions := session.NewMemoryStore(cfg.Session.IdleTimeout)
		defer sessions.Close()
		metrics.RegisterActiveSessions(reg, sessions.Len)

		ctrlOpts := []editor.Option{
			editor.WithUsageRecorder(usage),
			editor.WithObserver(editorMetrics),
			editor.WithSegmentTimeout(cfg.Segmentation.Timeout),
			editor.WithLogger(logger),
		}
		if cfg.Progress.WebhookURL != "" {
			webhook := api.NewProgressWebhook(cfg.Progress.WebhookURL, cfg.Progress.QueueSize, logger)
			defer webhook.Close()
			ctrlOpts = append(ctrlOpts, editor.WithProgress(webhook))
		}
		ctrl := editor.NewController(sessions, gateway, ctrlOpts...)

		proxies, err := api.WithTrustedProxies(cfg.Server.TrustedProxies)
		if err != nil {
			return err
		}
		a := api.New(ctrl, usage,
			api.WithLogger(logger),
			api.WithOperator(cfg.Operator.UserID, cfg.Operator.Token),
			api.WithMaxUpload(cfg.Server.MaxUpload),
			api.WithRateLimit(cfg.Server.RateLimit),
			api.WithAccessDeniedCounter(editorMetrics.AccessDenied),
			api.WithAlertFunc(func(evt api.AlertEvent) {
				logger.Warn("alert", "type", evt.Type, "message", evt.Message,
					"count", evt.Count, "threshold", evt.Threshold)
			}),
			proxies,
		)
		go a.SweepLoop(ctx, lockoutSweepInterval)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Use(api.SecurityHeaders)
		r.Use(metrics.NewHTTP(reg).Middleware)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		r.Mount("/api/v1", a.Router())

		tlsConfig, err := serverTLSConfig(cfg.Server)
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           r,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.ReadTimeout + cfg.Segmentation.Timeout,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if tlsConfig != nil {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		logger.Info("starting server",
			"port", cfg.Server.Port,
			"tls", tlsConfig != nil,
			"storage", cfg.Storage.Backend,
			"segmentation_url", cfg.Segmentation.URL)

		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// applyServerFlags overrides configuration values with flags given on the
// command line.
func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Changed("data-dir") {
		cfg.Storage.DataDir = dataDir
	}
	if flags.Changed("tls-cert") {
		cfg.Server.TLSCert = tlsCert
	}
	if flags.Changed("tls-key") {
		cfg.Server.TLSKey = tlsKey
	}
}

// serverTLSConfig returns nil when the server should speak plain HTTP.
func serverTLSConfig(cfg config.ServerConfig) (*tls.Config, error) {
	var cert tls.Certificate
	switch {
	case cfg.TLSCert != "" && cfg.TLSKey != "":
		var err error
		cert, err = tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
	case cfg.SelfSigned:
		var err error
		cert, err = util.GenerateSelfSignedCert()
		if err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		fmt.Println("Using self-signed runtime generated certificate for TLS")
	default:
		return nil, nil
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8443, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
}
