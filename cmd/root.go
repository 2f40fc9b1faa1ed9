// Package cmd 提供 taskfarm CLI 的命令实现
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"yqhp/taskfarm/internal/config"
	"yqhp/taskfarm/pkg/logger"
)

const (
	// Version 是当前版本号
	Version = "0.1.0"
	// Banner 是启动时显示的 ASCII 艺术
	Banner = `
   _____         _      ___
  |_   _|_ _ ___| |__  | __|_ _ _ _ _ __
    | |/ _' (_-<| / /  | _/ _' | '_| '  \
    |_|\__,_/__/|_\_\  |_|\__,_|_| |_|_|_| %s
`
)

var (
	// 全局配置
	cfgFile string
	debug   bool
	quiet   bool
)

// rootCmd 是根命令
var rootCmd = &cobra.Command{
	Use:   "taskfarm",
	Short: "动态任务分发引擎",
	Long: `taskfarm 把一组独立任务按需分发给 N 个工作节点：
每个工作节点完成一个任务后立即领取下一个，直到队列为空。
内置 Mandelbrot 示例负载，支持进程内、WebSocket 和 Redis 三种传输。`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "静默模式")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadConfig 加载配置并初始化日志。bindings 把命令行 flag 映射到配置路径，
// 只有显式设置的 flag 会覆盖配置。
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	overrides := make(map[string]string)
	for name, path := range bindings {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			overrides[path] = f.Value.String()
		}
	}

	loader := config.NewLoader().WithCmdArgs(overrides)
	if cfgFile != "" {
		loader = loader.WithConfigPath(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	if quiet {
		cfg.Report.Console = false
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}

	logger.Init(cfg.Logging.Logger())
	return cfg, nil
}

func printBanner(w io.Writer) {
	if quiet {
		return
	}
	fmt.Fprintf(w, Banner, Version)
	fmt.Fprintln(w)
}
