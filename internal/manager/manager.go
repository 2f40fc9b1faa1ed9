package manager

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yqhp/taskfarm/internal/transport"
	"yqhp/taskfarm/pkg/logger"
	"yqhp/taskfarm/pkg/types"
)

// Manager schedules tasks onto workers over a transport.Channel.
type Manager struct {
	log       *zap.SugaredLogger
	observers []Observer
	runID     string
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default is the "manager" named logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithObserver registers observers notified of every run event.
func WithObserver(obs ...Observer) Option {
	return func(m *Manager) {
		for _, o := range obs {
			if o != nil {
				m.observers = append(m.observers, o)
			}
		}
	}
}

// WithRunID fixes the run ID. By default each run gets a fresh UUID.
func WithRunID(id string) Option {
	return func(m *Manager) {
		m.runID = id
	}
}

// New creates a Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		log: logger.Named("manager"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run distributes tasks over workers 1..numWorkers of ch, which must be the
// coordinator's endpoint. It returns once every worker has been shut down.
//
// The report lists completions in the order their TASK_DONE messages
// arrived. Run never retries: a transport failure aborts the run with an
// *Error naming the phase and the worker involved.
func (m *Manager) Run(ctx context.Context, ch transport.Channel, tasks []*types.Task, numWorkers int) (*types.Report, error) {
	if err := validate(ch, tasks, numWorkers); err != nil {
		m.log.Errorw("invalid run", "error", err)
		return nil, err
	}

	runID := m.runID
	if runID == "" {
		runID = uuid.New().String()
	}

	r := &run{
		mgr:        m,
		ch:         ch,
		id:         runID,
		log:        m.log.With("run", runID),
		numWorkers: numWorkers,
		pending:    append([]*types.Task(nil), tasks...),
		inFlight:   make(map[int]*types.Task, numWorkers),
		report: &types.Report{
			RunID:     runID,
			Completed: make([]*types.Completion, 0, len(tasks)),
			PerWorker: make(map[int]int, numWorkers),
			Stats: types.RunStats{
				TotalTasks: len(tasks),
				NumWorkers: numWorkers,
			},
		},
	}
	for w := 1; w <= numWorkers; w++ {
		r.report.PerWorker[w] = 0
	}
	return r.execute(ctx)
}

func validate(ch transport.Channel, tasks []*types.Task, numWorkers int) error {
	if numWorkers <= 0 {
		return newConfigError("num_workers must be positive, got %d", numWorkers)
	}
	if ch == nil {
		return newConfigError("channel is nil")
	}
	if ch.Rank() != transport.Coordinator {
		return newConfigError("channel rank is %d, want coordinator rank %d", ch.Rank(), transport.Coordinator)
	}
	if workers := ch.Size() - 1; numWorkers > workers {
		return newConfigError("num_workers %d exceeds group workers %d", numWorkers, workers)
	}

	seen := make(map[string]struct{}, len(tasks))
	for i, t := range tasks {
		if t == nil {
			return newConfigError("task %d is nil", i)
		}
		if t.ID == "" {
			return newConfigError("task %d has empty id", i)
		}
		if _, dup := seen[t.ID]; dup {
			return newConfigError("duplicate task id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

// run holds the scheduling state of one Run call.
type run struct {
	mgr *Manager
	ch  transport.Channel
	id  string
	log *zap.SugaredLogger

	numWorkers int
	pending    []*types.Task
	inFlight   map[int]*types.Task
	closed     int
	report     *types.Report
}

func (r *run) execute(ctx context.Context) (*types.Report, error) {
	r.report.StartTime = r.mgr.now()
	r.emit(Event{
		Type:       EventRunStarted,
		TotalTasks: r.report.Stats.TotalTasks,
		NumWorkers: r.numWorkers,
	})
	r.log.Infow("run started", "tasks", r.report.Stats.TotalTasks, "workers", r.numWorkers)

	// one initial message per worker before any receive
	for w := 1; w <= r.numWorkers; w++ {
		if err := r.feed(ctx, w, PhasePriming); err != nil {
			return nil, err
		}
	}
	r.log.Debugw("priming finished",
		"in_flight", len(r.inFlight),
		"closed", r.closed,
		"pending", len(r.pending))

	for r.closed < r.numWorkers {
		w, res, err := r.receive(ctx)
		if err != nil {
			return nil, err
		}
		if err := r.feed(ctx, w, PhaseDispatch); err != nil {
			return nil, err
		}
		r.log.Debugw("task done", "worker", w, "task", res.TaskID, "failed", res.Failed())
	}

	r.report.EndTime = r.mgr.now()
	r.emit(Event{Type: EventRunFinished, Report: r.report})
	r.log.Infow("run finished",
		"completed", len(r.report.Completed),
		"failed", r.report.Stats.Failed,
		"duration", r.report.Duration())
	return r.report, nil
}

// feed sends worker w the next pending task, or SHUTDOWN if none is left.
func (r *run) feed(ctx context.Context, w int, phase Phase) error {
	if len(r.pending) == 0 {
		if err := r.ch.Send(ctx, transport.Rank(w), types.NewShutdownMessage()); err != nil {
			r.log.Errorw("send shutdown failed", "worker", w, "phase", phase, "error", err)
			return newTransportError(phase, w, "send SHUTDOWN", err)
		}
		r.closed++
		r.report.Stats.ShutdownsSent++
		if phase == PhasePriming {
			r.report.Stats.ClosedDuringPriming++
		}
		r.emit(Event{Type: EventWorkerShutdown, Phase: phase, Worker: w})
		r.log.Debugw("worker shut down", "worker", w, "phase", phase, "closed", r.closed)
		return nil
	}

	task := r.pending[0]
	if err := r.ch.Send(ctx, transport.Rank(w), types.NewTaskMessage(task)); err != nil {
		r.log.Errorw("send task failed", "worker", w, "phase", phase, "task", task.ID, "error", err)
		return newTransportError(phase, w, "send TASK "+task.ID, err)
	}
	r.pending[0] = nil
	r.pending = r.pending[1:]
	r.inFlight[w] = task
	r.report.Stats.TasksSent++
	r.emit(Event{Type: EventTaskDispatched, Phase: phase, Worker: w, Task: task})
	return nil
}

// receive waits for the next TASK_DONE from any worker and records it.
func (r *run) receive(ctx context.Context) (int, *types.Result, error) {
	msg, from, err := r.ch.RecvAny(ctx)
	w := int(from)
	if err != nil {
		r.log.Errorw("receive failed", "worker", w, "error", err)
		return 0, nil, newTransportError(PhaseDispatch, w, "receive TASK_DONE", err)
	}
	if msg.Tag != types.TagTaskDone {
		return 0, nil, newProtocolError(PhaseDispatch, w, "unexpected %s message", msg.Tag)
	}
	task, ok := r.inFlight[w]
	if !ok {
		return 0, nil, newProtocolError(PhaseDispatch, w, "TASK_DONE from worker holding no task")
	}
	res := msg.Result
	if res == nil {
		return 0, nil, newProtocolError(PhaseDispatch, w, "TASK_DONE without a result")
	}
	if res.TaskID != task.ID {
		return 0, nil, newProtocolError(PhaseDispatch, w, "TASK_DONE for %q, worker holds %q", res.TaskID, task.ID)
	}
	delete(r.inFlight, w)

	res.Worker = w
	r.report.Completed = append(r.report.Completed, &types.Completion{Task: task, Result: res, Worker: w})
	r.report.PerWorker[w]++
	r.report.Stats.DoneReceived++
	if res.Failed() {
		r.report.Stats.Failed++
	}
	r.emit(Event{Type: EventTaskCompleted, Phase: PhaseDispatch, Worker: w, Task: task, Result: res})
	return w, res, nil
}

func (r *run) emit(e Event) {
	if len(r.mgr.observers) == 0 {
		return
	}
	e.RunID = r.id
	e.Time = r.mgr.now()
	for _, o := range r.mgr.observers {
		o.OnEvent(e)
	}
}
