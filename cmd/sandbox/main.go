package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"

	grpcadapter "github.com/transfa/transfa-core/internal/adapter/grpc"
	"github.com/transfa/transfa-core/internal/config"
	"github.com/transfa/transfa-core/internal/sandbox"
)

func main() {
	// 1. Load configuration and logger
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel, cfg.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// 2. Initialize the in-memory ledger with the demo accounts
	ledger := sandbox.NewLedger(sandbox.Options{}, logger.Named("ledger"))
	if err := sandbox.SeedDemo(ledger); err != nil {
		logger.Fatal("Failed to seed sandbox ledger", zap.Error(err))
	}
	logger.Info("Sandbox accounts seeded", zap.String("money_drop", sandbox.DemoMoneyDrop))

	// 3. Start HTTP server
	httpServer := &http.Server{
		Addr:              cfg.SandboxHTTPAddr,
		Handler:           sandbox.NewRouter(ledger, sandbox.DemoTokens, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.SandboxHTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// 4. Start gRPC server with AuthInterceptor
	grpcServer := grpclib.NewServer(
		grpclib.UnaryInterceptor(grpcadapter.AuthInterceptor(sandbox.DemoTokens)),
	)
	grpcadapter.RegisterTransferServiceServer(grpcServer, grpcadapter.NewServer(ledger))

	lis, err := net.Listen("tcp", cfg.SandboxGRPCAddr)
	if err != nil {
		logger.Fatal("Failed to listen", zap.String("addr", cfg.SandboxGRPCAddr), zap.Error(err))
	}
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.SandboxGRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("Failed to serve gRPC", zap.Error(err))
		}
	}()

	// Graceful shutdown
	waitForShutdown(logger, httpServer, grpcServer)
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down both servers
func waitForShutdown(logger *zap.Logger, httpServer *http.Server, grpcServer *grpclib.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("Shutting down gracefully", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	grpcServer.GracefulStop()
	logger.Info("Servers stopped")
}
