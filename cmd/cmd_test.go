package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/taskfarm/internal/config"
)

// execute runs the root command with fresh flag state.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "taskfarm "+Version)
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "m.png")
	report := filepath.Join(dir, "report.json")

	out, err := execute(t, "run",
		"-n", "3", "--nx", "40", "--ny", "30", "--tasks", "8", "--max-iters", "50",
		"--output", png, "--json", report)
	require.NoError(t, err)

	assert.Contains(t, out, "has done")
	assert.Contains(t, out, "Run took")

	info, err := os.Stat(png)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	var decoded struct {
		Report struct {
			PerWorker map[string]int `json:"per_worker"`
			Stats     struct {
				TotalTasks int `json:"total_tasks"`
			} `json:"stats"`
		} `json:"report"`
		Output string `json:"output"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 8, decoded.Report.Stats.TotalTasks)
	assert.Len(t, decoded.Report.PerWorker, 3)
	assert.Equal(t, png, decoded.Output)
}

func TestRunCommandQuiet(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "run", "-q",
		"-n", "2", "--nx", "20", "--ny", "20", "--tasks", "4", "--max-iters", "20",
		"--output", filepath.Join(dir, "m.png"))
	require.NoError(t, err)
	assert.NotContains(t, out, "has done")
}

func TestRunCommandRejectsBadInput(t *testing.T) {
	cases := map[string][]string{
		"zero tasks":   {"--tasks", "0"},
		"negative nx":  {"--nx", "-5"},
		"too many":     {"--nx", "10", "--tasks", "11"},
		"zero workers": {"-n", "0"},
		"not a number": {"--ny", "abc"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, append([]string{"run", "-q", "--output", ""}, args...)...)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigBindings(t *testing.T) {
	resetFlags(rootCmd)
	require.NoError(t, runCmd.Flags().Set("workers", "7"))
	require.NoError(t, runCmd.Flags().Set("json", "out.json"))

	cfg, err := loadConfig(runCmd, mandelbrotFlags)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Manager.NumWorkers)
	assert.Equal(t, "out.json", cfg.Report.JSONPath)
	assert.Equal(t, config.DefaultConfig().Mandelbrot.Nx, cfg.Mandelbrot.Nx)
}

func TestWorkerRequiresRankForRedis(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Transport.Kind = config.TransportRedis
	cfg.Transport.Redis.RunID = "r"

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := connectWorker(ctx, cfg)
	assert.ErrorContains(t, err, "worker.rank")

	cfg.Worker.Rank = 1
	_, err = connectWorker(ctx, cfg)
	assert.ErrorContains(t, err, "transport.redis.size")
}

func TestBuildReporters(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Report.Console = true
	cfg.Report.JSONPath = filepath.Join(t.TempDir(), "r.json")

	var out bytes.Buffer
	reps, err := buildReporters(cfg, &out)
	require.NoError(t, err)
	require.Len(t, reps, 2)
	assert.Equal(t, "console", reps[0].Name())
	assert.Equal(t, "json", reps[1].Name())

	cfg.Report.Console = false
	cfg.Report.JSONPath = ""
	reps, err = buildReporters(cfg, &out)
	require.NoError(t, err)
	assert.Empty(t, reps)
}
