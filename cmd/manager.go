package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"yqhp/taskfarm/api/rest"
	"yqhp/taskfarm/internal/config"
	"yqhp/taskfarm/internal/manager"
	"yqhp/taskfarm/internal/metrics"
	"yqhp/taskfarm/internal/transport"
	"yqhp/taskfarm/internal/transport/redistransport"
	"yqhp/taskfarm/pkg/logger"
)

var (
	// manager 命令的 flags
	managerWorkers   int
	managerNx        int
	managerNy        int
	managerTasks     int
	managerMaxIters  int
	managerOutput    string
	managerJSON      string
	managerAddress   string
	managerTransport string
	managerRunID     string
)

// managerCmd 是 manager 子命令
var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "启动管理节点",
	Long: `启动管理节点：等待 N 个工作节点接入，动态分发 Mandelbrot 任务，
全部完成后关闭所有工作节点并输出报告。

工作节点通过 WebSocket (默认) 或 Redis 列表接入。`,
	Example: `  # 等待 4 个 WebSocket 工作节点
  taskfarm manager -n 4 --address :8080

  # 通过 Redis 分发，工作节点使用相同的 run id
  taskfarm manager -n 4 --transport redis --run-id demo`,
	Args: cobra.NoArgs,
	RunE: runManager,
}

func init() {
	rootCmd.AddCommand(managerCmd)

	managerCmd.Flags().IntVarP(&managerWorkers, "workers", "n", 0, "工作节点数")
	managerCmd.Flags().IntVar(&managerNx, "nx", 0, "图像宽度 (像素)")
	managerCmd.Flags().IntVar(&managerNy, "ny", 0, "图像高度 (像素)")
	managerCmd.Flags().IntVar(&managerTasks, "tasks", 0, "任务数 (条带数)")
	managerCmd.Flags().IntVar(&managerMaxIters, "max-iters", 0, "最大迭代次数")
	managerCmd.Flags().StringVarP(&managerOutput, "output", "o", "", "输出 PNG 路径")
	managerCmd.Flags().StringVar(&managerJSON, "json", "", "输出 JSON 报告路径")
	managerCmd.Flags().StringVar(&managerAddress, "address", "", "HTTP 服务地址")
	managerCmd.Flags().StringVar(&managerTransport, "transport", "", "传输方式 (websocket, redis)")
	managerCmd.Flags().StringVar(&managerRunID, "run-id", "", "Redis 传输的运行 ID")
}

var managerBindings = mergeFlags(mandelbrotFlags, map[string]string{
	"address":   "server.address",
	"transport": "transport.kind",
	"run-id":    "transport.redis.run_id",
})

func runManager(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, managerBindings)
	if err != nil {
		return err
	}
	if cfg.Transport.Kind == config.TransportInproc {
		// inproc 只在 run 命令中有意义
		cfg.Transport.Kind = config.TransportWebSocket
	}

	params, tasks, err := buildTasks(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	printBanner(out)

	n := cfg.Manager.NumWorkers
	progress := manager.NewProgress()
	collector := metrics.NewCollector()
	runID := cfg.Transport.Redis.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	var (
		ch  transport.Channel
		hub *rest.WorkerHub
		srv *rest.Server
	)
	switch cfg.Transport.Kind {
	case config.TransportWebSocket:
		hub, err = rest.NewWorkerHub(n, runID)
		if err != nil {
			return err
		}
		ch = hub
		cfg.Server.Enabled = true
	case config.TransportRedis:
		if cfg.Transport.Redis.RunID == "" {
			return fmt.Errorf("transport.redis.run_id is required so that workers can join the run")
		}
		if size := cfg.Transport.Redis.Size; size != 0 && size != n+1 {
			return fmt.Errorf("transport.redis.size is %d but %d workers need a group of %d", size, n, n+1)
		}
		rc, err := redistransport.Dial(ctx, redisOptions(cfg, transport.Coordinator, n+1))
		if err != nil {
			return err
		}
		if err := rc.Purge(ctx); err != nil {
			rc.Close()
			return fmt.Errorf("purge stale messages: %w", err)
		}
		ch = rc
	}
	defer ch.Close()

	if cfg.Server.Enabled {
		srv = rest.NewServer(serverConfig(cfg), progress, hub)
		stopServer := serve(ctx, srv)
		defer func() {
			// hub connections are closed before the server waits on them
			ch.Close()
			stopServer()
		}()
	}

	if !quiet {
		fmt.Fprintf(out, "  运行 ID: %s\n", runID)
		fmt.Fprintf(out, "  传输方式: %s\n", cfg.Transport.Kind)
		fmt.Fprintf(out, "  工作节点数: %d\n", n)
		if srv != nil {
			fmt.Fprintf(out, "  HTTP 地址: %s\n", cfg.Server.Address)
		}
		fmt.Fprintln(out)
	}

	if hub != nil {
		waitCtx := ctx
		if cfg.Manager.RegisterTimeout > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, cfg.Manager.RegisterTimeout)
			defer cancel()
		}
		logger.Info("waiting for workers", "expected", n)
		if err := hub.WaitForWorkers(waitCtx); err != nil {
			return err
		}
	}

	runCtx := ctx
	if cfg.Manager.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Manager.RunTimeout)
		defer cancel()
	}

	m := manager.New(manager.WithRunID(runID), manager.WithObserver(progress, collector))
	report, err := m.Run(runCtx, ch, tasks, n)
	if err != nil {
		return err
	}
	if srv != nil {
		srv.SetReport(report)
	}

	if hub != nil {
		drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := hub.Drain(drainCtx); err != nil {
			logger.Warn("workers did not disconnect", "error", err)
		}
		cancel()
	}

	_, err = finish(ctx, cfg, out, params, report, collector)
	return err
}

func redisOptions(cfg *config.Config, rank transport.Rank, size int) redistransport.Options {
	rc := cfg.Transport.Redis
	return redistransport.Options{
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		Prefix:       rc.Prefix,
		RunID:        rc.RunID,
		Rank:         rank,
		Size:         size,
		PollInterval: rc.PollInterval,
		KeyTTL:       rc.KeyTTL,
	}
}
