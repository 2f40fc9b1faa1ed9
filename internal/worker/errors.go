package worker

import "fmt"

// ErrorCode 执行错误类型
type ErrorCode string

const (
	// ErrCodeNotFound 未注册的任务类型
	ErrCodeNotFound ErrorCode = "EXECUTOR_NOT_FOUND"
	// ErrCodeExecution 执行器返回错误
	ErrCodeExecution ErrorCode = "EXECUTION_ERROR"
	// ErrCodePanic 执行器发生 panic
	ErrCodePanic ErrorCode = "EXECUTOR_PANIC"
)

// ExecutorError 执行任务时的错误，编码进 Result.Error 返回给协调者
type ExecutorError struct {
	Code    ErrorCode
	Message string
	TaskID  string
	Cause   error
}

// Error implements the error interface.
func (e *ExecutorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ExecutorError) Unwrap() error {
	return e.Cause
}

// NewExecutorNotFoundError 未找到执行器
func NewExecutorNotFoundError(kind string) *ExecutorError {
	return &ExecutorError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("no executor registered for kind: %s", kind),
	}
}

// NewExecutionError 执行失败
func NewExecutionError(taskID string, cause error) *ExecutorError {
	return &ExecutorError{
		Code:    ErrCodeExecution,
		Message: fmt.Sprintf("task %s failed", taskID),
		TaskID:  taskID,
		Cause:   cause,
	}
}

// NewPanicError 执行器 panic
func NewPanicError(taskID string, v interface{}) *ExecutorError {
	return &ExecutorError{
		Code:    ErrCodePanic,
		Message: fmt.Sprintf("task %s panicked: %v", taskID, v),
		TaskID:  taskID,
	}
}
