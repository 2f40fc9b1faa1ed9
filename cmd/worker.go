package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"yqhp/taskfarm/api/rest/client"
	"yqhp/taskfarm/internal/config"
	"yqhp/taskfarm/internal/mandelbrot"
	"yqhp/taskfarm/internal/transport"
	"yqhp/taskfarm/internal/transport/redistransport"
	"yqhp/taskfarm/internal/worker"
	"yqhp/taskfarm/pkg/logger"
)

var (
	// worker 命令的 flags
	workerManagerURL string
	workerRank       int
	workerName       string
	workerTransport  string
	workerRunID      string
	workerSize       int
)

// workerCmd 是 worker 子命令
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "启动工作节点",
	Long: `启动工作节点：接入管理节点，循环执行收到的任务并回复结果，
收到 SHUTDOWN 后退出。`,
	Example: `  # 通过 WebSocket 接入
  taskfarm worker --manager-url ws://localhost:8080/api/v1/worker-ws

  # 通过 Redis 接入，需指定 rank 和组大小
  taskfarm worker --transport redis --run-id demo --rank 1 --size 5`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().StringVar(&workerManagerURL, "manager-url", "", "管理节点 WebSocket 地址")
	workerCmd.Flags().IntVar(&workerRank, "rank", 0, "请求的 rank (0 表示由管理节点分配)")
	workerCmd.Flags().StringVar(&workerName, "name", "", "工作节点名称")
	workerCmd.Flags().StringVar(&workerTransport, "transport", "", "传输方式 (websocket, redis)")
	workerCmd.Flags().StringVar(&workerRunID, "run-id", "", "Redis 传输的运行 ID")
	workerCmd.Flags().IntVar(&workerSize, "size", 0, "Redis 传输的组大小 (工作节点数 + 1)")
}

var workerBindings = map[string]string{
	"manager-url": "worker.manager_url",
	"rank":        "worker.rank",
	"name":        "worker.name",
	"transport":   "transport.kind",
	"run-id":      "transport.redis.run_id",
	"size":        "transport.redis.size",
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, workerBindings)
	if err != nil {
		return err
	}
	if cfg.Worker.Name == "" {
		cfg.Worker.Name = "worker-" + uuid.New().String()[:8]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch, err := connectWorker(ctx, cfg)
	if err != nil {
		return err
	}
	defer ch.Close()

	registry := worker.NewRegistry()
	if err := mandelbrot.Register(registry); err != nil {
		return err
	}

	logger.Info("worker connected", "name", cfg.Worker.Name, "rank", ch.Rank(), "size", ch.Size())
	stats, err := worker.New(registry).Run(ctx, ch, transport.Coordinator)
	if err != nil {
		return err
	}

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Worker %d has done %d tasks (%d failed, busy %s)\n",
			stats.Rank, stats.Executed, stats.Failed, stats.Busy)
	}
	return nil
}

func connectWorker(ctx context.Context, cfg *config.Config) (transport.Channel, error) {
	switch cfg.Transport.Kind {
	case config.TransportRedis:
		if cfg.Worker.Rank < 1 {
			return nil, fmt.Errorf("worker.rank must be set for the redis transport")
		}
		if cfg.Transport.Redis.Size < 2 {
			return nil, fmt.Errorf("transport.redis.size must be set for the redis transport")
		}
		return redistransport.Dial(ctx, redisOptions(cfg, transport.Rank(cfg.Worker.Rank), cfg.Transport.Redis.Size))
	default:
		return client.Dial(ctx, cfg.Worker.ManagerURL, client.DialOptions{
			Name:             cfg.Worker.Name,
			Rank:             cfg.Worker.Rank,
			HandshakeTimeout: cfg.Manager.RegisterTimeout,
		})
	}
}
