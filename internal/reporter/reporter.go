// Package reporter 输出任务分发运行结果
package reporter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"yqhp/taskfarm/internal/metrics"
	"yqhp/taskfarm/pkg/types"
)

// Summary 一次运行的完整结果
type Summary struct {
	Report  *types.Report    `json:"report"`
	Timings *metrics.Summary `json:"timings,omitempty"`
	Output  string           `json:"output,omitempty"`
}

// Reporter 报告输出接口
type Reporter interface {
	// Name 返回报告器名称
	Name() string

	// Report 输出运行结果
	Report(ctx context.Context, s *Summary) error
}

// Type 报告器类型
type Type string

const (
	// TypeConsole 输出到控制台
	TypeConsole Type = "console"
	// TypeJSON 输出到 JSON 文件
	TypeJSON Type = "json"
)

// Factory 根据配置创建报告器
type Factory func(config map[string]any) (Reporter, error)

// Registry 管理报告器工厂
type Registry struct {
	factories map[Type]Factory
	mu        sync.RWMutex
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[Type]Factory),
	}
}

// DefaultRegistry 返回注册了内置报告器的注册表
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(TypeConsole, NewConsoleFactory())
	_ = r.Register(TypeJSON, NewJSONFactory())
	return r
}

// Register 注册报告器工厂
func (r *Registry) Register(t Type, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[t]; exists {
		return fmt.Errorf("报告器类型已注册: %s", t)
	}
	r.factories[t] = factory
	return nil
}

// Create 创建指定类型的报告器
func (r *Registry) Create(t Type, config map[string]any) (Reporter, error) {
	r.mu.RLock()
	factory, exists := r.factories[t]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("未知的报告器类型: %s (可用: %v)", t, r.Types())
	}
	return factory(config)
}

// Types 返回已注册类型
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Type, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ReportAll 依次调用所有报告器，返回第一个错误
func ReportAll(ctx context.Context, s *Summary, reporters ...Reporter) error {
	var first error
	for _, r := range reporters {
		if err := r.Report(ctx, s); err != nil && first == nil {
			first = fmt.Errorf("%s 报告失败: %w", r.Name(), err)
		}
	}
	return first
}
