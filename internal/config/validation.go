package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields returns the names of the invalid fields.
func (e ValidationErrors) Fields() []string {
	out := make([]string, len(e))
	for i, err := range e {
		out[i] = err.Field
	}
	return out
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the entire configuration and returns ValidationErrors if any.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = nil

	v.validateManager(&cfg.Manager)
	v.validateWorker(&cfg.Worker)
	v.validateTransport(&cfg.Transport)
	v.validateServer(&cfg.Server)
	v.validateMandelbrot(&cfg.Mandelbrot)
	v.validateLogging(&cfg.Logging)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// Validate validates cfg with a fresh Validator.
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

func (v *Validator) validateManager(cfg *ManagerConfig) {
	if cfg.NumWorkers < 1 {
		v.addError("manager.num_workers", "num_workers must be a positive integer")
	}
	if cfg.RegisterTimeout < 0 {
		v.addError("manager.register_timeout", "register timeout must be non-negative")
	}
	if cfg.RunTimeout < 0 {
		v.addError("manager.run_timeout", "run timeout must be non-negative")
	}
}

func (v *Validator) validateWorker(cfg *WorkerConfig) {
	if cfg.Rank < 0 {
		v.addError("worker.rank", "rank must be non-negative")
	}
	if cfg.ManagerURL != "" && !isValidManagerURL(cfg.ManagerURL) {
		v.addError("worker.manager_url", "manager url must be a ws(s):// or http(s):// URL, or host:port")
	}
}

// isValidManagerURL accepts the forms the worker client dials: ws, wss,
// http and https URLs, and a bare host:port.
func isValidManagerURL(raw string) bool {
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
		return true
	}
	return false
}

func (v *Validator) validateTransport(cfg *TransportConfig) {
	switch cfg.Kind {
	case TransportInproc, TransportWebSocket:
	case TransportRedis:
		if cfg.Redis.Addr == "" {
			v.addError("transport.redis.addr", "addr is required for the redis transport")
		}
		if cfg.Redis.DB < 0 {
			v.addError("transport.redis.db", "db must be non-negative")
		}
		if cfg.Redis.PollInterval < 0 {
			v.addError("transport.redis.poll_interval", "poll interval must be non-negative")
		}
		if cfg.Redis.Size != 0 && cfg.Redis.Size < 2 {
			v.addError("transport.redis.size", "group size must be at least 2")
		}
	default:
		v.addError("transport.kind", fmt.Sprintf("unknown transport %q, expected inproc, websocket or redis", cfg.Kind))
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Address == "" {
		v.addError("server.address", "address is required")
	} else if !isValidAddress(cfg.Address) {
		v.addError("server.address", "invalid address format, expected host:port or :port")
	}
	if cfg.ReadTimeout < 0 {
		v.addError("server.read_timeout", "read timeout must be non-negative")
	}
	if cfg.WriteTimeout < 0 {
		v.addError("server.write_timeout", "write timeout must be non-negative")
	}
}

func (v *Validator) validateMandelbrot(cfg *MandelbrotConfig) {
	if cfg.Nx < 1 {
		v.addError("mandelbrot.nx", "nx must be a positive integer")
	}
	if cfg.Ny < 1 {
		v.addError("mandelbrot.ny", "ny must be a positive integer")
	}
	if cfg.Tasks < 1 {
		v.addError("mandelbrot.tasks", "ntasks must be a positive integer")
	} else if cfg.Nx >= 1 && cfg.Tasks > cfg.Nx {
		v.addError("mandelbrot.tasks", "ntasks must not exceed nx")
	}
	if cfg.MaxIters < 1 {
		v.addError("mandelbrot.max_iters", "max_iters must be a positive integer")
	}
	if cfg.XMax <= cfg.XMin {
		v.addError("mandelbrot.x_max", "x_max must be greater than x_min")
	}
	if cfg.YMax <= cfg.YMin {
		v.addError("mandelbrot.y_max", "y_max must be greater than y_min")
	}
}

func (v *Validator) validateLogging(cfg *LoggingConfig) {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("unknown level %q", cfg.Level))
	}
	switch cfg.Format {
	case "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("unknown format %q, expected json or console", cfg.Format))
	}
	switch cfg.Output {
	case "stdout", "stderr":
	case "file", "both":
		if cfg.FilePath == "" {
			v.addError("logging.file_path", "file_path is required for file output")
		}
	default:
		v.addError("logging.output", fmt.Sprintf("unknown output %q", cfg.Output))
	}
}

// isValidAddress checks if an address is valid (host:port or :port format).
func isValidAddress(addr string) bool {
	_, port, err := net.SplitHostPort(addr)
	return err == nil && port != ""
}
