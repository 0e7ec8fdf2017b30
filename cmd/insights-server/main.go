package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	"stockinsights/internal/config"
	"stockinsights/internal/httpapi"
	"stockinsights/internal/live"
	"stockinsights/internal/util"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfgPath := config.Path()
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if n, err := a.sessions.Restore(ctx); err != nil {
		logger.Warn("restoring sessions", "error", err)
	} else if n > 0 {
		logger.Info("restored sessions", "count", n)
	}

	api := httpapi.NewServer(a.svc, a.strings, a.sessions, logger).WithStreamBuffer(cfg.Dashboard.StreamBuffer)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: api.Handler(),
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr())
	if err != nil {
		logger.Error("grpc listen failed", "addr", cfg.Server.GRPCAddr(), "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer()
	live.NewServer(a.sessions, cfg.Dashboard.StreamBuffer, logger).RegisterGRPC(grpcServer)

	go func() {
		logger.Info("insights server listening", "addr", httpServer.Addr, "config", cfgPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()
	go func() {
		logger.Info("event stream listening", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}

	// Closing the sessions ends their event streams.
	a.sessions.Shutdown()
	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}
}
