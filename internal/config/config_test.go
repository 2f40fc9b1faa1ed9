package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "farm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, TransportInproc, cfg.Transport.Kind)
	assert.Equal(t, -2.0, cfg.Mandelbrot.XMin)
	assert.Equal(t, 1.5, cfg.Mandelbrot.YMax)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "none.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
manager:
  num_workers: 8
  run_timeout: 2m
transport:
  kind: redis
  redis:
    addr: redis:6379
    run_id: r1
mandelbrot:
  nx: 400
  ny: 300
  tasks: 40
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Manager.NumWorkers)
	assert.Equal(t, 2*time.Minute, cfg.Manager.RunTimeout)
	assert.Equal(t, TransportRedis, cfg.Transport.Kind)
	assert.Equal(t, "redis:6379", cfg.Transport.Redis.Addr)
	assert.Equal(t, "taskfarm", cfg.Transport.Redis.Prefix, "unset fields keep defaults")
	assert.Equal(t, 400, cfg.Mandelbrot.Nx)
	assert.Equal(t, 40, cfg.Mandelbrot.Tasks)
	require.NoError(t, Validate(cfg))
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "manager: [")
	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestPrecedence(t *testing.T) {
	path := writeConfig(t, "manager:\n  num_workers: 3\nmandelbrot:\n  nx: 50\n")
	t.Setenv("FARM_MANAGER_NUM_WORKERS", "5")
	t.Setenv("FARM_MANDELBROT_MAX_ITERS", "77")
	t.Setenv("FARM_REDIS_POLL_INTERVAL", "250ms")

	cfg, err := NewLoader().
		WithConfigPath(path).
		WithCmdArgs(map[string]string{"manager.num_workers": "7", "mandelbrot.x_min": "-1.25"}).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Manager.NumWorkers)
	assert.Equal(t, 50, cfg.Mandelbrot.Nx)
	assert.Equal(t, 77, cfg.Mandelbrot.MaxIters)
	assert.Equal(t, -1.25, cfg.Mandelbrot.XMin)
	assert.Equal(t, 250*time.Millisecond, cfg.Transport.Redis.PollInterval)
}

func TestBadEnvValue(t *testing.T) {
	t.Setenv("FARM_MANAGER_NUM_WORKERS", "many")
	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestSetValue(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, SetValue(cfg, "transport.redis.addr", "10.0.0.1:6379"))
	require.NoError(t, SetValue(cfg, "server.enabled", "true"))
	require.NoError(t, SetValue(cfg, "worker.manager_url", "ws://m:8080/api/v1/worker-ws"))

	assert.Equal(t, "10.0.0.1:6379", cfg.Transport.Redis.Addr)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, "ws://m:8080/api/v1/worker-ws", cfg.Worker.ManagerURL)

	assert.Error(t, SetValue(cfg, "nope.field", "1"))
	assert.Error(t, SetValue(cfg, "manager.num_workers.x", "1"))
	assert.Error(t, SetValue(cfg, "manager.num_workers", "x"))
}

func TestValidationErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Manager.NumWorkers = 0
	cfg.Mandelbrot.Nx = 10
	cfg.Mandelbrot.Tasks = 11
	cfg.Mandelbrot.Ny = 0
	cfg.Transport.Kind = "carrier-pigeon"
	cfg.Logging.Output = "file"
	cfg.Worker.ManagerURL = "ftp://x"
	cfg.Server.Enabled = true
	cfg.Server.Address = "nope"

	err := Validate(cfg)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.ElementsMatch(t, []string{
		"manager.num_workers",
		"worker.manager_url",
		"transport.kind",
		"server.address",
		"mandelbrot.ny",
		"mandelbrot.tasks",
		"logging.file_path",
	}, verrs.Fields())
	assert.Contains(t, err.Error(), "num_workers must be a positive integer")
}

func TestRedisValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transport.Kind = TransportRedis
	cfg.Transport.Redis.Addr = ""
	cfg.Transport.Redis.Size = 1

	var verrs ValidationErrors
	require.ErrorAs(t, Validate(cfg), &verrs)
	assert.ElementsMatch(t, []string{"transport.redis.addr", "transport.redis.size"}, verrs.Fields())
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()
	p := cfg.Mandelbrot.Params()
	require.NoError(t, p.Validate())
	assert.Equal(t, cfg.Mandelbrot.Nx, p.Nx)

	lc := cfg.Logging.Logger()
	assert.Equal(t, "info", lc.Level)
	assert.Equal(t, "stderr", lc.Output)
}

func TestExampleConfig(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, TransportWebSocket, cfg.Transport.Kind)
	assert.Equal(t, time.Minute, cfg.Manager.RegisterTimeout)
	assert.Equal(t, time.Hour, cfg.Transport.Redis.KeyTTL)
	assert.Equal(t, DefaultConfig().Mandelbrot, cfg.Mandelbrot)
}

func TestManagerURLForms(t *testing.T) {
	valid := []string{
		"ws://localhost:8080/api/v1/worker-ws",
		"wss://farm.example.com",
		"http://localhost:8080",
		"https://farm.example.com/",
		"localhost:8080",
	}
	for _, u := range valid {
		cfg := DefaultConfig()
		cfg.Worker.ManagerURL = u
		assert.NoError(t, Validate(cfg), u)
	}

	invalid := []string{"ftp://x", "http://", "ws://"}
	for _, u := range invalid {
		cfg := DefaultConfig()
		cfg.Worker.ManagerURL = u
		err := Validate(cfg)
		var verrs ValidationErrors
		require.ErrorAs(t, err, &verrs, u)
		assert.Equal(t, []string{"worker.manager_url"}, verrs.Fields(), u)
	}
}
