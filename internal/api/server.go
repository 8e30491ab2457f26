// Package api serves the daemon status endpoints over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/ganeti-eventd/internal/api/handler"
	"github.com/cuongbtq/ganeti-eventd/internal/api/router"
)

// Server is the optional status HTTP server
type Server struct {
	logger   *slog.Logger
	srv      *http.Server
	listener net.Listener
}

// NewServer binds addr and prepares the status routes. Binding happens
// here so a bad address is reported before the daemon starts.
func NewServer(addr, environment string, deps *handler.Dependencies) (*Server, error) {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return &Server{
		logger: deps.Logger,
		srv: &http.Server{
			Handler:           router.SetupRouter(deps),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		listener: ln,
	}, nil
}

// Addr returns the bound address
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start serves requests in the background
func (s *Server) Start() {
	s.logger.Info("Starting status server", slog.String("address", s.Addr()))

	go func() {
		if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server failed", slog.Any("error", err))
		}
	}()
}

// Shutdown stops the server, waiting up to timeout for open requests
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("status server forced to shutdown: %w", err)
	}

	s.logger.Info("Status server shutdown complete")
	return nil
}
