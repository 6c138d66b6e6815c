package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	pb "stock-exchange/src/grpc_control"
	"stock-exchange/src/logger"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

// -----------------------------------------------------------------------------

// serve runs the API server, the broadcast loop and the gRPC health server until
// SIGINT/SIGTERM, then shuts them down in order.
func serve(parent context.Context, path string) error {
	conf, appLogger, err := loadConfig(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setupApp(ctx, conf, appLogger)
	if err != nil {
		return err
	}
	defer a.Store.Close()

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", conf.GrpcHost, conf.GrpcPort))
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC: %w", err)
	}
	grpcServer := grpc.NewServer()
	control := pb.NewControlService(a.Store, a.Broadcast, conf.BroadcastInterval(), logger.NewLogger(conf.MConfig, "ControlService"))
	control.Register(grpcServer)

	g, gctx := errgroup.WithContext(ctx)

	// 1. HTTP + WebSocket API
	g.Go(a.API.Start)

	// 2. Broadcast loop
	g.Go(func() error { return a.Broadcast.Run(gctx) })

	// 3. gRPC health server
	g.Go(func() error {
		appLogger.Info("Starting gRPC Control Server on %s", lis.Addr())
		return grpcServer.Serve(lis)
	})
	g.Go(func() error { return control.Run(gctx) })

	// 4. Shutdown once a signal arrives or any component fails
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		grpcServer.GracefulStop()
		return a.API.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Exchange stopped with error: %v", err)
		return err
	}
	appLogger.Info("Shutdown complete.")
	return nil
}

// -----------------------------------------------------------------------------

// migrate creates the ledger schema and exits.
func migrate(ctx context.Context, path string) error {
	conf, appLogger, err := loadConfig(path)
	if err != nil {
		return err
	}

	store, err := setupDatabase(ctx, conf.MConfig, appLogger)
	if err != nil {
		return err
	}
	defer store.Close()

	appLogger.Info("Schema ready on %s", conf.Storage.DBType)
	return nil
}
