package eventbus

import (
	"fmt"
	"runtime"
	"strings"
)

// ListenerError is delivered to the error sink when a listener fails
type ListenerError struct {
	Event string
	Owner string
	Cause error

	// StackTrace is captured for recovered panics
	StackTrace []string
}

// Error formats as: listener <owner> on <event>: cause
func (e *ListenerError) Error() string {
	owner := e.Owner
	if owner == "" {
		owner = "<anonymous>"
	}
	return fmt.Sprintf("listener %s on %s: %v", owner, e.Event, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As
func (e *ListenerError) Unwrap() error {
	return e.Cause
}

// captureStack records the goroutine stack, skipping runtime frames
func captureStack(skip int) []string {
	const maxDepth = 32
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]string, 0, n)
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			stack = append(stack, fmt.Sprintf("%s (%s:%d)", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return stack
}
