package types

import (
	"sort"
	"time"
)

// RunStats counts the protocol traffic of one scheduling run.
type RunStats struct {
	TotalTasks          int `json:"total_tasks"`
	NumWorkers          int `json:"num_workers"`
	TasksSent           int `json:"tasks_sent"`
	ShutdownsSent       int `json:"shutdowns_sent"`
	DoneReceived        int `json:"done_received"`
	ClosedDuringPriming int `json:"closed_during_priming"`
	Failed              int `json:"failed"`
}

// Report is what the manager hands to the result consumer once every worker
// has been shut down. Completed is in completion order, not submission order.
type Report struct {
	RunID     string        `json:"run_id"`
	Completed []*Completion `json:"completed"`
	PerWorker map[int]int   `json:"per_worker"`
	Stats     RunStats      `json:"stats"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Workers returns the worker ranks of the run in increasing order,
// including workers that completed no task.
func (r *Report) Workers() []int {
	ranks := make([]int, 0, r.Stats.NumWorkers)
	for w := 1; w <= r.Stats.NumWorkers; w++ {
		ranks = append(ranks, w)
	}
	for w := range r.PerWorker {
		if w > r.Stats.NumWorkers {
			ranks = append(ranks, w)
		}
	}
	sort.Ints(ranks)
	return ranks
}

// ResultsByTask indexes the completed results by task ID.
func (r *Report) ResultsByTask() map[string]*Result {
	out := make(map[string]*Result, len(r.Completed))
	for _, c := range r.Completed {
		if c.Result != nil {
			out[c.Result.TaskID] = c.Result
		}
	}
	return out
}
