package manager

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	RunID      string      `json:"run_id"`
	Running    bool        `json:"running"`
	TotalTasks int         `json:"total_tasks"`
	NumWorkers int         `json:"num_workers"`
	Pending    int         `json:"pending"`
	InFlight   int         `json:"in_flight"`
	Completed  int         `json:"completed"`
	Failed     int         `json:"failed"`
	Closed     int         `json:"closed"`
	PerWorker  map[int]int `json:"per_worker"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    time.Time   `json:"end_time,omitempty"`
}

// Progress tracks the most recent run from its events. It is safe to read
// from other goroutines while the run executes.
type Progress struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewProgress creates an empty tracker.
func NewProgress() *Progress {
	return &Progress{snap: Snapshot{PerWorker: map[int]int{}}}
}

// OnEvent implements Observer.
func (p *Progress) OnEvent(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := &p.snap
	switch e.Type {
	case EventRunStarted:
		*s = Snapshot{
			RunID:      e.RunID,
			Running:    true,
			TotalTasks: e.TotalTasks,
			NumWorkers: e.NumWorkers,
			Pending:    e.TotalTasks,
			PerWorker:  make(map[int]int, e.NumWorkers),
			StartTime:  e.Time,
		}
	case EventTaskDispatched:
		s.Pending--
		s.InFlight++
	case EventTaskCompleted:
		s.InFlight--
		s.Completed++
		s.PerWorker[e.Worker]++
		if e.Result.Failed() {
			s.Failed++
		}
	case EventWorkerShutdown:
		s.Closed++
	case EventRunFinished:
		s.Running = false
		s.EndTime = e.Time
	}
}

// Snapshot returns a copy of the current state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := p.snap
	out.PerWorker = make(map[int]int, len(p.snap.PerWorker))
	for w, n := range p.snap.PerWorker {
		out.PerWorker[w] = n
	}
	return out
}
