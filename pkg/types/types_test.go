package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTag_String(t *testing.T) {
	assert.Equal(t, "TASK", TagTask.String())
	assert.Equal(t, "TASK_DONE", TagTaskDone.String())
	assert.Equal(t, "SHUTDOWN", TagShutdown.String())
	assert.Equal(t, "Tag(9)", Tag(9).String())
	assert.False(t, Tag(0).Valid())
}

func TestMessage_Validate(t *testing.T) {
	assert.NoError(t, NewTaskMessage(&Task{ID: "a"}).Validate())
	assert.NoError(t, NewDoneMessage(&Result{TaskID: "a"}).Validate())
	assert.NoError(t, NewShutdownMessage().Validate())

	assert.Error(t, (&Message{Tag: TagTask}).Validate())
	assert.Error(t, (&Message{Tag: TagTaskDone}).Validate())
	assert.Error(t, (&Message{Tag: Tag(42)}).Validate())

	var nilMsg *Message
	assert.Error(t, nilMsg.Validate())
}

func TestReport_Workers(t *testing.T) {
	r := &Report{
		PerWorker: map[int]int{2: 3},
		Stats:     RunStats{NumWorkers: 3},
	}
	assert.Equal(t, []int{1, 2, 3}, r.Workers())
}

func TestReport_DurationAndIndex(t *testing.T) {
	start := time.Now()
	r := &Report{
		StartTime: start,
		EndTime:   start.Add(2 * time.Second),
		Completed: []*Completion{
			{Task: &Task{ID: "b"}, Result: &Result{TaskID: "b", Error: "boom"}, Worker: 1},
			{Task: &Task{ID: "a"}, Result: &Result{TaskID: "a"}, Worker: 2},
		},
	}
	assert.Equal(t, 2*time.Second, r.Duration())

	idx := r.ResultsByTask()
	assert.Len(t, idx, 2)
	assert.True(t, idx["b"].Failed())
	assert.False(t, idx["a"].Failed())

	assert.Equal(t, time.Duration(0), (&Report{}).Duration())
}
