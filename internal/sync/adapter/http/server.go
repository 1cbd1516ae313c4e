package http

import (
	"context"
	"time"

	"storage-sync-worker/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const shutdownTimeout = 10 * time.Second

// Server is the optional status server. It is only started when an address is configured.
type Server struct {
	app    *fiber.App
	addr   string
	logger logger.Logger
}

// NewServer builds a fiber app serving handler on addr.
func NewServer(addr string, handler *StatusHandler, log logger.Logger) *Server {
	log = log.WithComponent("status-server")
	app := fiber.New(fiber.Config{
		AppName:               "storage-sync-worker",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.WithError(err).Error("HTTP error")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Internal Server Error",
			})
		},
	})
	app.Use(recover.New())
	handler.RegisterRoutes(app)

	return &Server{app: app, addr: addr, logger: log}
}

// App exposes the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens until ctx is cancelled, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(map[string]interface{}{"addr": s.addr}).Info("Status server listening")
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			s.logger.WithError(err).Warn("Status server forced to shut down")
		}
		<-errCh
		s.logger.Info("Status server stopped")
		return nil
	}
}
