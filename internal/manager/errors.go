package manager

import (
	"fmt"
	"strings"
)

// ErrorCode classifies a manager failure.
type ErrorCode string

const (
	// CodeConfiguration indicates an invalid run setup, detected before any send.
	CodeConfiguration ErrorCode = "CONFIG_ERROR"
	// CodeTransport indicates a send or receive failure at the channel boundary.
	CodeTransport ErrorCode = "TRANSPORT_ERROR"
	// CodeProtocol indicates a message that violates the task protocol.
	CodeProtocol ErrorCode = "PROTOCOL_ERROR"
)

// Phase names the stage of a run in which an error occurred.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhasePriming  Phase = "priming"
	PhaseDispatch Phase = "dispatch"
)

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrConfiguration = &Error{Code: CodeConfiguration}
	ErrTransport     = &Error{Code: CodeTransport}
	ErrProtocol      = &Error{Code: CodeProtocol}
)

// Error is returned by Run. Worker is 0 when the failure is not tied to a
// single worker.
type Error struct {
	Code    ErrorCode
	Phase   Phase
	Worker  int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Code)
	if e.Phase != "" {
		fmt.Fprintf(&b, " phase=%s", e.Phase)
	}
	if e.Worker > 0 {
		fmt.Fprintf(&b, " worker=%d", e.Worker)
	}
	if e.Message != "" {
		b.WriteString(" ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors of the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newConfigError(format string, args ...interface{}) *Error {
	return &Error{
		Code:    CodeConfiguration,
		Phase:   PhaseSetup,
		Message: fmt.Sprintf(format, args...),
	}
}

func newTransportError(phase Phase, worker int, op string, cause error) *Error {
	return &Error{
		Code:    CodeTransport,
		Phase:   phase,
		Worker:  worker,
		Message: op,
		Cause:   cause,
	}
}

func newProtocolError(phase Phase, worker int, format string, args ...interface{}) *Error {
	return &Error{
		Code:    CodeProtocol,
		Phase:   phase,
		Worker:  worker,
		Message: fmt.Sprintf(format, args...),
	}
}
