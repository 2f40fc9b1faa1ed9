package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"yqhp/taskfarm/internal/transport"
	"yqhp/taskfarm/pkg/logger"
	"yqhp/taskfarm/pkg/types"
)

// ErrUnexpectedMessage 收到非 TASK/SHUTDOWN 消息
var ErrUnexpectedMessage = errors.New("unexpected message from coordinator")

// Stats 工作节点运行统计
type Stats struct {
	Rank     int           `json:"rank"`
	Executed int           `json:"executed"`
	Failed   int           `json:"failed"`
	Busy     time.Duration `json:"busy"`
}

// Worker 工作节点，从协调者拉取任务执行并回报结果
type Worker struct {
	registry *Registry
	log      *zap.SugaredLogger
	now      func() time.Time
}

// Option 工作节点选项
type Option func(*Worker)

// WithLogger 设置日志
func WithLogger(l *zap.SugaredLogger) Option {
	return func(w *Worker) {
		if l != nil {
			w.log = l
		}
	}
}

// New 创建工作节点
func New(registry *Registry, opts ...Option) *Worker {
	if registry == nil {
		registry = NewRegistry()
	}
	w := &Worker{
		registry: registry,
		log:      logger.Named("worker"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run 执行工作循环，收到 SHUTDOWN 后返回。
// 执行失败（包括 panic 和未知任务类型）编码在 Result.Error 中，
// 工作节点总会回复 TASK_DONE；只有传输错误会让 Run 提前返回。
func (w *Worker) Run(ctx context.Context, ch transport.Channel, coordinator transport.Rank) (*Stats, error) {
	rank := int(ch.Rank())
	stats := &Stats{Rank: rank}
	log := w.log.With("rank", rank)
	log.Debugw("worker started", "kinds", w.registry.Kinds())

	for {
		msg, err := ch.Recv(ctx, coordinator)
		if err != nil {
			log.Errorw("接收消息失败", "error", err)
			return stats, fmt.Errorf("worker %d: receive: %w", rank, err)
		}

		switch msg.Tag {
		case types.TagShutdown:
			log.Debugw("worker shutdown", "executed", stats.Executed, "failed", stats.Failed)
			return stats, nil

		case types.TagTask:
			res := w.Execute(ctx, msg.Task)
			res.Worker = rank
			stats.Executed++
			stats.Busy += res.Duration
			if res.Failed() {
				stats.Failed++
				log.Warnw("任务执行失败", "task", res.TaskID, "error", res.Error)
			}

			if err := ch.Send(ctx, coordinator, types.NewDoneMessage(res)); err != nil {
				log.Errorw("发送结果失败", "task", res.TaskID, "error", err)
				return stats, fmt.Errorf("worker %d: send result %s: %w", rank, res.TaskID, err)
			}

		default:
			return stats, fmt.Errorf("worker %d: %w: %s", rank, ErrUnexpectedMessage, msg.Tag)
		}
	}
}

// Execute 执行单个任务，从不返回 nil
func (w *Worker) Execute(ctx context.Context, task *types.Task) (res *types.Result) {
	start := w.now()
	res = &types.Result{TaskID: task.ID}

	defer func() {
		if v := recover(); v != nil {
			res.Output = nil
			res.Error = NewPanicError(task.ID, v).Error()
		}
		res.Duration = w.now().Sub(start)
	}()

	executor, err := w.registry.GetOrError(task.Kind)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	out, err := executor.Execute(ctx, task.Input)
	if err != nil {
		res.Error = NewExecutionError(task.ID, err).Error()
		return res
	}
	res.Output = out
	return res
}
