package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/ecovision/internal/grpchealth"
	"github.com/example/ecovision/internal/handlers"
	"github.com/example/ecovision/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP classification API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := envFromContext(cmd.Context())
		if err != nil {
			return err
		}
		cfg, logger := e.cfg, e.logger

		startupCtx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		repo, closeRepo, err := openHistory(startupCtx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeRepo()

		cache, closeCache, err := openCache(startupCtx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeCache()

		dispatcher := newDispatcher(cfg, logger, false)
		uc := usecase.NewClassificationUseCase(dispatcher, repo, cache, logger)

		gin.SetMode(cfg.Server.Mode)
		router := handlers.NewRouter(uc, logger, handlers.Options{
			MaxUploadSize:  cfg.Server.MaxUploadBytes,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
		})

		if cfg.GRPC.HealthAddr != "" {
			lis, err := net.Listen("tcp", cfg.GRPC.HealthAddr)
			if err != nil {
				return fmt.Errorf("listen grpc health: %w", err)
			}
			health := grpchealth.NewServer(logger)
			health.SetServing("", true)
			health.SetServing(grpchealth.ServiceClassifier, true)
			health.SetServing(grpchealth.ServiceRemote, cfg.Gemini.APIKey != "")
			go func() {
				if err := health.Serve(lis); err != nil {
					logger.Error("gRPC health server failed", zap.Error(err))
				}
			}()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				health.Stop(ctx)
			}()
		}

		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		logger.Info("EcoVision API listening", zap.String("addr", cfg.Server.Addr))
		if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
			logger.Error("server failed", zap.Error(err))
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

// serveHTTPServerWithOptions serves until the server fails or a signal
// arrives, then drains in-flight classifications for at most
// shutdownTimeout. A nil listener uses server.Addr; a nil signalCh listens
// for SIGINT and SIGTERM.
func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	if signalCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signalCh = ch
	}

	serveErr := make(chan error, 1)
	go func() {
		serve := server.ListenAndServe
		if listener != nil {
			serve = func() error { return server.Serve(listener) }
		}
		if err := serve(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	var sig os.Signal
	select {
	case err := <-serveErr:
		return err
	case received, ok := <-signalCh:
		if !ok {
			return <-serveErr
		}
		sig = received
	}

	logger.Info("received shutdown signal, draining requests",
		zap.String("signal", sig.String()),
		zap.Duration("timeout", shutdownTimeout),
	)
	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shutdown did not complete", zap.Error(err))
		return err
	}
	err := <-serveErr
	logger.Info("server stopped", zap.Duration("drained_in", time.Since(started)))
	return err
}
