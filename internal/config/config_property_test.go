package config

import (
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestConfigRoundTripProperty checks that serializing and parsing a
// configuration yields an equal configuration.
func TestConfigRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("config round-trip preserves data", prop.ForAll(
		func(workers, nx, ny, tasks, kind int, timeoutSec int64, addr string) bool {
			cfg := DefaultConfig()
			cfg.Manager.NumWorkers = workers
			cfg.Manager.RunTimeout = time.Duration(timeoutSec) * time.Second
			cfg.Mandelbrot.Nx = nx
			cfg.Mandelbrot.Ny = ny
			cfg.Mandelbrot.Tasks = tasks
			cfg.Transport.Kind = transportKinds[kind]
			cfg.Transport.Redis.Addr = addr

			data, err := cfg.Serialize()
			if err != nil {
				return false
			}
			parsed, err := ParseConfig(data)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(cfg, parsed)
		},
		gen.IntRange(1, 512),
		gen.IntRange(1, 4096),
		gen.IntRange(1, 4096),
		gen.IntRange(1, 1000),
		gen.IntRange(0, len(transportKinds)-1),
		gen.Int64Range(0, 86400),
		gen.AlphaString(),
	))

	properties.Property("cmd override wins over defaults", prop.ForAll(
		func(workers int) bool {
			cfg, err := NewLoader().WithCmdArgs(map[string]string{
				"manager.num_workers": strconv.Itoa(workers),
			}).Load()
			return err == nil && cfg.Manager.NumWorkers == workers
		},
		gen.IntRange(1, 10000),
	))

	properties.TestingRun(t)
}

var transportKinds = []string{TransportInproc, TransportWebSocket, TransportRedis}
