package infra

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// DrainFunc finishes background work after the listener has stopped.
type DrainFunc func(ctx context.Context) error

// HTTPServer owns the API listener and the work that must finish before exit.
type HTTPServer struct {
	server          *http.Server
	shutdownTimeout time.Duration
	drains          []DrainFunc
}

func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           handler,
			ReadTimeout:       cfg.HTTPReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.HTTPWriteTimeout,
			IdleTimeout:       cfg.HTTPIdleTimeout,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// OnShutdown registers fn to run, in order, once the listener is closed.
// All drains share the shutdown timeout.
func (s *HTTPServer) OnShutdown(fn DrainFunc) {
	s.drains = append(s.drains, fn)
}

// Serve listens on the configured address until ctx is cancelled.
func (s *HTTPServer) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener, then graceful shutdown
// followed by the registered drains.
func (s *HTTPServer) ServeListener(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	var errs []error
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http: %w", err))
	}
	for _, drain := range s.drains {
		if err := drain(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	<-errCh
	return errors.Join(errs...)
}
