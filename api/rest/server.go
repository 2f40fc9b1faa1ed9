// Package rest provides the HTTP surface of a coordinator: run progress,
// the final report and the websocket endpoint workers connect to.
package rest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"yqhp/taskfarm/internal/manager"
	"yqhp/taskfarm/pkg/types"
)

// Server represents the REST API server.
type Server struct {
	app      *fiber.App
	config   *Config
	progress *manager.Progress
	hub      *WorkerHub

	mu     sync.RWMutex
	report *types.Report
}

// Config holds the configuration for the REST API server.
type Config struct {
	// Address is the address to listen on (e.g., ":8080").
	Address string `yaml:"address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// AccessLog enables per-request logging.
	AccessLog bool `yaml:"access_log"`
}

// DefaultConfig returns a default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse answers the health check.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Workers   int    `json:"workers_connected"`
}

// NewServer creates a new REST API server. progress and hub may be nil.
func NewServer(config *Config, progress *manager.Progress, hub *WorkerHub) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		ErrorHandler:          customErrorHandler,
		AppName:               "Task Farm",
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		DisableStartupMessage: true,
	})

	s := &Server{
		app:      app,
		config:   config,
		progress: progress,
		hub:      hub,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
	}))

	if s.config.AccessLog {
		s.app.Use(fiberlogger.New(fiberlogger.Config{
			Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
			TimeFormat: "2006-01-02 15:04:05",
		}))
	}
}

func (s *Server) setupRoutes() {
	api := s.app.Group("/api/v1")
	api.Get("/health", s.healthCheck)
	api.Get("/progress", s.getProgress)
	api.Get("/report", s.getReport)

	if s.hub != nil {
		s.hub.Route(s.app)
	}
}

// SetReport publishes the finished run's report.
func (s *Server) SetReport(r *types.Report) {
	s.mu.Lock()
	s.report = r
	s.mu.Unlock()
}

func (s *Server) healthCheck(c *fiber.Ctx) error {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if s.hub != nil {
		resp.Workers = s.hub.Connected()
	}
	return c.JSON(resp)
}

func (s *Server) getProgress(c *fiber.Ctx) error {
	if s.progress == nil {
		return fiber.NewError(fiber.StatusNotFound, "no run is being tracked")
	}
	return c.JSON(s.progress.Snapshot())
}

func (s *Server) getReport(c *fiber.Ctx) error {
	s.mu.RLock()
	r := s.report
	s.mu.RUnlock()
	if r == nil {
		return fiber.NewError(fiber.StatusNotFound, "run has not finished")
	}
	return c.JSON(r)
}

// Start starts the REST API server.
func (s *Server) Start() error {
	return s.app.Listen(s.config.Address)
}

// StartWithContext serves until ctx is done.
func (s *Server) StartWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.app.Listen(s.config.Address)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   fmt.Sprintf("error_%d", code),
		Message: message,
	})
}
