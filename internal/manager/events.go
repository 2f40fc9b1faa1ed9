package manager

import (
	"time"

	"yqhp/taskfarm/pkg/types"
)

// EventType identifies what happened during a run.
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventTaskDispatched EventType = "task_dispatched"
	EventTaskCompleted  EventType = "task_completed"
	EventWorkerShutdown EventType = "worker_shutdown"
	EventRunFinished    EventType = "run_finished"
)

// Event is delivered to observers synchronously from the goroutine running
// the schedule. Only the fields relevant to Type are set.
type Event struct {
	Type   EventType
	RunID  string
	Time   time.Time
	Phase  Phase
	Worker int

	// Set for EventTaskDispatched and EventTaskCompleted.
	Task *types.Task
	// Set for EventTaskCompleted.
	Result *types.Result

	// Set for EventRunStarted.
	TotalTasks int
	NumWorkers int

	// Set for EventRunFinished.
	Report *types.Report
}

// Observer receives run events. OnEvent must not block for long: the
// schedule does not advance until it returns.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f(e).
func (f ObserverFunc) OnEvent(e Event) { f(e) }
