package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"yqhp/taskfarm/internal/transport"
	"yqhp/taskfarm/pkg/types"
)

// sent records one message the manager sent.
type sent struct {
	To     int
	Tag    types.Tag
	TaskID string
}

func (s sent) String() string {
	if s.Tag == types.TagTask {
		return fmt.Sprintf("%s->%d", s.TaskID, s.To)
	}
	return fmt.Sprintf("%s->%d", s.Tag, s.To)
}

// scriptedChannel is a coordinator endpoint whose workers complete tasks
// instantly, in an order chosen by pick. pick receives the ranks currently
// holding a task, sorted, and returns the one that reports next.
type scriptedChannel struct {
	size int
	pick func(busy []int) int

	held  map[int]*types.Task
	sent  []sent
	recvs int

	failSendTo int
	sendErr    error
	recvErr    error
	override   func(w int, task *types.Task) *types.Message
}

func newScriptedChannel(numWorkers int, pick func(busy []int) int) *scriptedChannel {
	return &scriptedChannel{
		size: numWorkers + 1,
		pick: pick,
		held: make(map[int]*types.Task),
	}
}

// arrivals replays a fixed sequence of reporting workers.
func arrivals(order ...int) func([]int) int {
	i := 0
	return func([]int) int {
		w := order[i]
		i++
		return w
	}
}

func (c *scriptedChannel) Rank() transport.Rank { return transport.Coordinator }

func (c *scriptedChannel) Size() int { return c.size }

func (c *scriptedChannel) Send(_ context.Context, to transport.Rank, msg *types.Message) error {
	w := int(to)
	if c.sendErr != nil && w == c.failSendTo {
		return c.sendErr
	}
	s := sent{To: w, Tag: msg.Tag}
	if msg.Tag == types.TagTask {
		s.TaskID = msg.Task.ID
		c.held[w] = msg.Task
	}
	c.sent = append(c.sent, s)
	return nil
}

func (c *scriptedChannel) Recv(context.Context, transport.Rank) (*types.Message, error) {
	return nil, errors.New("not used by the manager")
}

func (c *scriptedChannel) RecvAny(context.Context) (*types.Message, transport.Rank, error) {
	if c.recvErr != nil {
		return nil, 0, c.recvErr
	}
	busy := make([]int, 0, len(c.held))
	for w := range c.held {
		busy = append(busy, w)
	}
	if len(busy) == 0 {
		return nil, 0, errors.New("receive with no task in flight would block forever")
	}
	sort.Ints(busy)

	w := c.pick(busy)
	task, ok := c.held[w]
	if !ok {
		return nil, 0, fmt.Errorf("script picked idle worker %d", w)
	}
	delete(c.held, w)
	c.recvs++

	if c.override != nil {
		return c.override(w, task), transport.Rank(w), nil
	}
	return types.NewDoneMessage(&types.Result{TaskID: task.ID, Output: []byte(`"` + task.ID + `"`)}), transport.Rank(w), nil
}

func (c *scriptedChannel) Close() error { return nil }

func (c *scriptedChannel) count(tag types.Tag) int {
	n := 0
	for _, s := range c.sent {
		if s.Tag == tag {
			n++
		}
	}
	return n
}

func makeTasks(ids ...string) []*types.Task {
	tasks := make([]*types.Task, len(ids))
	for i, id := range ids {
		tasks[i] = &types.Task{ID: id, Kind: "echo"}
	}
	return tasks
}

func numberedTasks(n int) []*types.Task {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("t%03d", i)
	}
	return makeTasks(ids...)
}

func completedIDs(r *types.Report) []string {
	ids := make([]string, len(r.Completed))
	for i, c := range r.Completed {
		ids[i] = c.Task.ID
	}
	return ids
}
