package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"interview-concierge/internal/auth"
	"interview-concierge/internal/handler"
	"interview-concierge/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server owns the router and the HTTP listener
type Server struct {
	router *gin.Engine
	srv    *http.Server
	logger *zap.Logger
}

// NewServer assembles the router: recovery, request logging and CORS on
// every route, the passcode gate on the API.
func NewServer(addr, allowedOrigin string, h *handler.Handler, gate *auth.Service, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(allowedOrigin))

	h.RegisterRoutes(router, middleware.AuthMiddleware(gate, logger))

	return &Server{
		router: router,
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Server starting", zap.String("address", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
