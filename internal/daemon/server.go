package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/perkshq/perks/internal/account"
	"github.com/perkshq/perks/internal/api"
	"go.uber.org/zap"
)

// Server serves the control API on the account's Unix domain socket.
type Server struct {
	app        *fiber.App
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer binds the API to the account socket.
func NewServer(p Params, logger *zap.Logger, handlers *api.Handlers) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = account.SocketPath(p.Account)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	handlers.Register(app)

	return &Server{
		app:        app,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start begins serving requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("api server starting", zap.String("socket", s.socketPath))
	return s.app.Listener(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("api server stopping")
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		s.logger.Warn("shutdown error", zap.Error(err))
	}
	_ = os.Remove(s.socketPath)
}
