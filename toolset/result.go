package toolset

import (
	"fmt"

	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
)

// Result is the outcome of a tool call. Message is exactly what a planner
// sees; Findings lists what the call detected.
type Result struct {
	OK       bool
	Message  string
	Findings []testrun.Finding
}

func (r Result) String() string {
	return r.Message
}

func success(format string, args ...interface{}) Result {
	return Result{OK: true, Message: fmt.Sprintf(format, args...)}
}

func failure(format string, args ...interface{}) Result {
	return Result{OK: false, Message: fmt.Sprintf(format, args...)}
}
