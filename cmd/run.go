package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"yqhp/taskfarm/api/rest"
	"yqhp/taskfarm/internal/config"
	"yqhp/taskfarm/internal/farm"
	"yqhp/taskfarm/internal/mandelbrot"
	"yqhp/taskfarm/internal/manager"
	"yqhp/taskfarm/internal/metrics"
	"yqhp/taskfarm/internal/reporter"
	"yqhp/taskfarm/internal/worker"
	"yqhp/taskfarm/pkg/logger"
)

var (
	// run 命令的 flags
	runWorkers  int
	runNx       int
	runNy       int
	runTasks    int
	runMaxIters int
	runOutput   string
	runJSON     string
	runServe    string
)

// runCmd 是 run 子命令
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "独立模式执行 Mandelbrot 任务",
	Long: `在单个进程内启动一个管理节点和 N 个工作节点，
把 Mandelbrot 图像切分成若干条带并动态分发。`,
	Example: `  # 默认参数
  taskfarm run

  # 8 个工作节点，200 个任务
  taskfarm run -n 8 --tasks 200

  # 指定分辨率并输出 JSON 报告
  taskfarm run --nx 2000 --ny 2000 --json report.json

  # 运行期间提供 REST 进度查询
  taskfarm run --serve :8080`,
	Args: cobra.NoArgs,
	RunE: runStandalone,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runWorkers, "workers", "n", 0, "工作节点数")
	runCmd.Flags().IntVar(&runNx, "nx", 0, "图像宽度 (像素)")
	runCmd.Flags().IntVar(&runNy, "ny", 0, "图像高度 (像素)")
	runCmd.Flags().IntVar(&runTasks, "tasks", 0, "任务数 (条带数)")
	runCmd.Flags().IntVar(&runMaxIters, "max-iters", 0, "最大迭代次数")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "输出 PNG 路径")
	runCmd.Flags().StringVar(&runJSON, "json", "", "输出 JSON 报告路径")
	runCmd.Flags().StringVar(&runServe, "serve", "", "REST 服务地址 (为空则不启动)")
}

func runStandalone(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, mandelbrotFlags)
	if err != nil {
		return err
	}
	if runServe != "" {
		cfg.Server.Enabled = true
		cfg.Server.Address = runServe
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("配置无效: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Manager.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Manager.RunTimeout)
		defer cancel()
	}

	out := cmd.OutOrStdout()
	printBanner(out)

	_, err = executeLocal(ctx, cfg, out)
	return err
}

// executeLocal 在进程内运行一次完整的任务分发
func executeLocal(ctx context.Context, cfg *config.Config, out io.Writer) (*reporter.Summary, error) {
	params, tasks, err := buildTasks(cfg)
	if err != nil {
		return nil, err
	}

	registry := worker.NewRegistry()
	if err := mandelbrot.Register(registry); err != nil {
		return nil, err
	}

	progress := manager.NewProgress()
	collector := metrics.NewCollector()
	runID := uuid.New().String()

	var srv *rest.Server
	if cfg.Server.Enabled {
		srv = rest.NewServer(serverConfig(cfg), progress, nil)
		stopServer := serve(ctx, srv)
		defer stopServer()
	}

	logger.Info("standalone run starting",
		"run", runID, "workers", cfg.Manager.NumWorkers, "tasks", len(tasks),
		"nx", params.Nx, "ny", params.Ny)

	res, err := farm.RunLocal(ctx, tasks, registry, cfg.Manager.NumWorkers, &farm.Options{
		Manager: []manager.Option{
			manager.WithRunID(runID),
			manager.WithObserver(progress, collector),
		},
	})
	if err != nil {
		return nil, err
	}
	if srv != nil {
		srv.SetReport(res.Report)
	}

	return finish(ctx, cfg, out, params, res.Report, collector)
}

func serverConfig(cfg *config.Config) *rest.Config {
	return &rest.Config{
		Address:      cfg.Server.Address,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		AccessLog:    logger.IsDebugEnabled(),
	}
}

// serve 在后台启动 REST 服务，返回的函数停止服务并等待其退出
func serve(ctx context.Context, srv *rest.Server) func() {
	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.StartWithContext(srvCtx); err != nil {
			logger.Error("REST 服务异常退出", "error", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
