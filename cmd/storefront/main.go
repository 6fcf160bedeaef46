// Package main starts the storefront edge server: it serves the built
// single-page bundle and proxies the backend paths to the API origin.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atinyakov/sockcs/internal/config"
	"github.com/atinyakov/sockcs/internal/logger"
	"github.com/atinyakov/sockcs/internal/middleware"
	"github.com/atinyakov/sockcs/internal/server/handler/http"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		static     string
		apiBase    string
	)

	cmd := &cobra.Command{
		Use:          "storefront",
		Short:        "Serve the storefront bundle and proxy the backend",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := config.Load(configPath)
			if err != nil {
				return err
			}
			opts.Address = cmp.Or(addr, opts.Address)
			opts.StaticDir = cmp.Or(static, opts.StaticDir)
			if apiBase != "" {
				opts.SetAPIBase(apiBase)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path (JSON)")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address, overrides SERVER_ADDRESS")
	cmd.Flags().StringVar(&static, "static", "", "bundle directory, overrides STATIC_DIR")
	cmd.Flags().StringVar(&apiBase, "api", "", "backend origin, overrides API_BASE")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Build version: %s\nBuild date: %s\n",
				cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
		},
	})
	return cmd
}

func serve(ctx context.Context, opts *config.Options) error {
	log := logger.New()
	if err := log.Init(opts.LogLevel); err != nil {
		return err
	}
	zapLogger := log.Log
	defer func() { _ = zapLogger.Sync() }()

	if st, err := os.Stat(opts.StaticDir); err != nil || !st.IsDir() {
		zapLogger.Warn("static bundle directory missing, client routes will answer 503",
			zap.String("dir", opts.StaticDir))
	}

	router, err := http.NewRouter(http.RouterConfig{
		APIBase: opts.APIBase,
		Static:  os.DirFS(opts.StaticDir),
	}, middleware.NewMetrics(), zapLogger)
	if err != nil {
		return err
	}

	server := &nethttp.Server{
		Addr:              opts.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	useTLS := opts.TLSCert != "" && opts.TLSKey != ""
	if useTLS {
		cert, err := tls.LoadX509KeyPair(opts.TLSCert, opts.TLSKey)
		if err != nil {
			return fmt.Errorf("failed to load server TLS cert/key: %w", err)
		}
		server.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		zapLogger.Info("starting storefront server",
			zap.String("addr", opts.Address),
			zap.String("api", opts.APIBase),
			zap.Bool("tls", useTLS),
		)
		if useTLS {
			errCh <- server.ListenAndServeTLS("", "")
		} else {
			errCh <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	zapLogger.Info("shutting down storefront server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
