package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vtt-om/arrowhead-client-go/pkg/client"
	"github.com/vtt-om/arrowhead-client-go/pkg/config"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	cmd := &cobra.Command{
		Use:   "ahprovider",
		Short: "Reference Arrowhead provider system",
		Long: `ahprovider registers itself and the services listed in its configuration
with the Service Registry, serves them over HTTP(S) and unregisters them again
on shutdown.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(verbose)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if err := run(logger); err != nil {
				logger.Error("provider exited with error", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "config/provider.json", "provider configuration file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "development logging")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Require(config.RoleProvider); err != nil {
		return err
	}
	cc, err := cfg.CertContext()
	if err != nil {
		return err
	}
	c, err := client.New(cfg.ClientSystem(), cfg.CoreURLs(), cfg.ClientOptions(cc, logger)...)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Arrowhead registration ───────────────────────────────────────────────
	if err := c.Bootstrap(ctx); err != nil {
		return err
	}
	if err := c.RegisterServices(ctx, cfg.Registrations()); err != nil {
		return err
	}
	defer func() {
		unregCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := c.UnregisterServices(unregCtx, cfg.ServiceDefinitions()); err != nil {
			logger.Error("unregister services", zap.Error(err))
		}
	}()

	// ── HTTP server ──────────────────────────────────────────────────────────
	limiterCtx, cancelLimiter := context.WithCancel(context.Background())
	defer cancelLimiter()
	router, err := newRouter(limiterCtx, cfg, cc.Secure(), logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Provider.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var tlsCfg *tls.Config
	if cc.Secure() {
		tlsCfg, err = cc.ServerTLSConfig()
		if err != nil {
			return err
		}
		srv.TLSConfig = tlsCfg
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("provider listening",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", tlsCfg != nil),
			zap.Strings("services", cfg.ServiceDefinitions()),
		)
		var err error
		if tlsCfg != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down provider")
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	return nil
}
