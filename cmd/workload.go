package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/duke-git/lancet/v2/maputil"

	"yqhp/taskfarm/internal/config"
	"yqhp/taskfarm/internal/mandelbrot"
	"yqhp/taskfarm/internal/metrics"
	"yqhp/taskfarm/internal/reporter"
	"yqhp/taskfarm/pkg/logger"
	"yqhp/taskfarm/pkg/types"
)

// mandelbrotFlags 是 run 和 manager 共用的负载参数
var mandelbrotFlags = map[string]string{
	"nx":        "mandelbrot.nx",
	"ny":        "mandelbrot.ny",
	"tasks":     "mandelbrot.tasks",
	"max-iters": "mandelbrot.max_iters",
	"output":    "mandelbrot.output",
	"json":      "report.json_path",
	"workers":   "manager.num_workers",
}

func mergeFlags(maps ...map[string]string) map[string]string {
	return maputil.Merge(maps...)
}

// buildTasks 生成 Mandelbrot 任务
func buildTasks(cfg *config.Config) (mandelbrot.Params, []*types.Task, error) {
	params := cfg.Mandelbrot.Params()
	if err := params.Validate(); err != nil {
		return params, nil, fmt.Errorf("invalid mandelbrot parameters: %w", err)
	}
	tasks, err := params.Tasks(cfg.Mandelbrot.Tasks)
	if err != nil {
		return params, nil, err
	}
	return params, tasks, nil
}

// finish 拼接图像并输出报告
func finish(ctx context.Context, cfg *config.Config, out io.Writer, params mandelbrot.Params,
	report *types.Report, collector *metrics.Collector) (*reporter.Summary, error) {
	img, err := mandelbrot.Combine(params, report.Completed)
	if err != nil {
		return nil, fmt.Errorf("combine image: %w", err)
	}

	summary := &reporter.Summary{Report: report}
	if collector != nil {
		summary.Timings = collector.Summary()
	}
	if cfg.Mandelbrot.Output != "" {
		if err := img.SavePNG(cfg.Mandelbrot.Output); err != nil {
			return nil, err
		}
		summary.Output = cfg.Mandelbrot.Output
		logger.Info("image written", "path", cfg.Mandelbrot.Output, "nx", img.Nx, "ny", img.Ny)
	}

	reporters, err := buildReporters(cfg, out)
	if err != nil {
		return summary, err
	}
	if err := reporter.ReportAll(ctx, summary, reporters...); err != nil {
		return summary, err
	}
	return summary, nil
}

// buildReporters 根据 report 配置从注册表创建报告器
func buildReporters(cfg *config.Config, out io.Writer) ([]reporter.Reporter, error) {
	registry := reporter.DefaultRegistry()

	var reporters []reporter.Reporter
	if cfg.Report.Console {
		r, err := registry.Create(reporter.TypeConsole, map[string]any{
			"color":  cfg.Report.Color,
			"writer": out,
		})
		if err != nil {
			return nil, err
		}
		reporters = append(reporters, r)
	}
	if cfg.Report.JSONPath != "" {
		r, err := registry.Create(reporter.TypeJSON, map[string]any{"path": cfg.Report.JSONPath})
		if err != nil {
			return nil, err
		}
		reporters = append(reporters, r)
	}
	return reporters, nil
}
