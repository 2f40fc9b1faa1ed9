package types

import (
	"encoding/json"
	"time"
)

// Task is a unit of work. Input is never modified after the task is created.
type Task struct {
	ID    string          `json:"id"`
	Kind  string          `json:"kind"`
	Input json.RawMessage `json:"input,omitempty"`
}

// Result is the outcome of executing one task on a worker.
// A non-empty Error means the domain computation failed; the task still
// counts as done for scheduling purposes.
type Result struct {
	TaskID   string          `json:"task_id"`
	Worker   int             `json:"worker"`
	Output   json.RawMessage `json:"output,omitempty"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// Failed reports whether the task's execution failed.
func (r *Result) Failed() bool {
	return r != nil && r.Error != ""
}

// Completion pairs a task with the result reported for it.
type Completion struct {
	Task   *Task   `json:"task"`
	Result *Result `json:"result"`
	Worker int     `json:"worker"`
}
