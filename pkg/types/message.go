package types

import "fmt"

// Tag discriminates the three kinds of message in the protocol.
type Tag uint8

const (
	// TagTask carries a task from the coordinator to a worker.
	TagTask Tag = iota + 1
	// TagTaskDone carries a result from a worker back to the coordinator.
	TagTaskDone
	// TagShutdown tells a worker there is no more work.
	TagShutdown
)

// String returns the wire name of the tag.
func (t Tag) String() string {
	switch t {
	case TagTask:
		return "TASK"
	case TagTaskDone:
		return "TASK_DONE"
	case TagShutdown:
		return "SHUTDOWN"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the known tags.
func (t Tag) Valid() bool {
	return t >= TagTask && t <= TagShutdown
}

// Message is the envelope moved by a transport.
// Task is set for TagTask, Result for TagTaskDone, neither for TagShutdown.
type Message struct {
	Tag    Tag     `json:"tag"`
	Task   *Task   `json:"task,omitempty"`
	Result *Result `json:"result,omitempty"`
}

// NewTaskMessage builds a TASK message.
func NewTaskMessage(task *Task) *Message {
	return &Message{Tag: TagTask, Task: task}
}

// NewDoneMessage builds a TASK_DONE message.
func NewDoneMessage(result *Result) *Message {
	return &Message{Tag: TagTaskDone, Result: result}
}

// NewShutdownMessage builds a SHUTDOWN message.
func NewShutdownMessage() *Message {
	return &Message{Tag: TagShutdown}
}

// Validate checks that the payload matches the tag.
func (m *Message) Validate() error {
	if m == nil {
		return fmt.Errorf("message cannot be nil")
	}
	switch m.Tag {
	case TagTask:
		if m.Task == nil {
			return fmt.Errorf("TASK message without task")
		}
	case TagTaskDone:
		if m.Result == nil {
			return fmt.Errorf("TASK_DONE message without result")
		}
	case TagShutdown:
	default:
		return fmt.Errorf("unknown message tag: %s", m.Tag)
	}
	return nil
}
