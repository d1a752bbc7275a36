package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

// ListenAndServe binds httpAddr and grpcAddr and serves until ctx ends.
func (s *Service) ListenAndServe(ctx context.Context, httpAddr, grpcAddr string) error {
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", httpAddr, err)
	}
	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("listen grpc %s: %w", grpcAddr, err)
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve runs the HTTP and gRPC servers on the given listeners until ctx
// ends or either server fails.
func (s *Service) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	httpSrv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	grpcSrv := grpc.NewServer()
	RegisterInferenceServer(grpcSrv, s)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http listening", zap.String("addr", httpLis.Addr().String()))
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.logger.Info("grpc listening", zap.String("addr", grpcLis.Addr().String()))
		if err := grpcSrv.Serve(grpcLis); err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		if err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
