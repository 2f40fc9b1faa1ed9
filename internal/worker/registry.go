package worker

import (
	"fmt"
	"sort"
	"sync"

	"github.com/duke-git/lancet/v2/maputil"
)

// Registry 按任务类型管理执行器
type Registry struct {
	executors map[string]Executor
	mu        sync.RWMutex
}

// NewRegistry 创建执行器注册表
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
	}
}

// Register 注册执行器，类型重复时返回错误
func (r *Registry) Register(executor Executor) error {
	if executor == nil {
		return fmt.Errorf("不能注册空执行器")
	}

	kind := executor.Kind()
	if kind == "" {
		return fmt.Errorf("执行器类型不能为空")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[kind]; exists {
		return fmt.Errorf("执行器类型已注册: %s", kind)
	}

	r.executors[kind] = executor
	return nil
}

// MustRegister 注册执行器，出错时 panic
func (r *Registry) MustRegister(executor Executor) {
	if err := r.Register(executor); err != nil {
		panic(err)
	}
}

// Get 获取执行器，不存在时返回 nil
func (r *Registry) Get(kind string) Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executors[kind]
}

// GetOrError 获取执行器，不存在时返回错误
func (r *Registry) GetOrError(kind string) (Executor, error) {
	executor := r.Get(kind)
	if executor == nil {
		return nil, NewExecutorNotFoundError(kind)
	}
	return executor, nil
}

// Kinds 返回已注册类型，按字母排序
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := maputil.Keys(r.executors)
	sort.Strings(kinds)
	return kinds
}
