package sandbox

import (
	"fmt"
	"strings"
	"time"
)

// Status is the single outcome of one sandbox request.
type Status string

const (
	StatusSucceeded    Status = "succeeded"
	StatusRuntimeError Status = "runtime_error"
	StatusCompileError Status = "compile_error"
	StatusTimedOut     Status = "timed_out"
	StatusIOError      Status = "io_error"
)

// TestResult is the verdict of an attached test.
type TestResult int

const (
	TestNotRun TestResult = iota
	TestPassed
	TestFailed
)

func (r TestResult) String() string {
	switch r {
	case TestPassed:
		return "passed"
	case TestFailed:
		return "failed"
	default:
		return "not_run"
	}
}

// MarshalText encodes the result by name.
func (r TestResult) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Test pairs optional input with optional expected output. A nil slice means
// the value is absent; an empty non-nil slice is an explicit empty value.
type Test struct {
	ID                  string
	StdinLines          []string
	ExpectedStdoutLines []string
}

// Request is everything needed to run one piece of untrusted code. It is
// treated as immutable once handed to a Sandbox.
type Request struct {
	ID string
	// TimeoutSeconds bounds the whole execution. Zero is an already expired
	// deadline.
	TimeoutSeconds uint8
	// WorkspacePath must not be shared with any other in-flight request.
	WorkspacePath string
	SourceLines   []string
	Language      string
	Test          *Test
}

// Timeout returns TimeoutSeconds as a duration.
func (r Request) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

func (r Request) validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.WorkspacePath) == "" {
		return fmt.Errorf("%w: workspace path is required", ErrInvalidRequest)
	}
	return nil
}

// Response is what the request layer receives back.
type Response struct {
	ID          string
	Status      Status
	ExitCode    int
	StdoutLines []string
	StderrLines []string
	TestResult  *TestResult
	Duration    time.Duration
	// Truncated reports that an output file exceeded the read-back limit.
	Truncated bool
}

// SplitSource splits code on "\n" so that joining with "\n" restores it byte
// for byte, "\r" and trailing newlines included.
func SplitSource(code string) []string {
	return strings.Split(code, "\n")
}

// SplitOutput turns captured output into lines. A single trailing newline
// terminates the last line rather than starting an empty one.
func SplitOutput(text string) []string {
	if text == "" {
		return []string{}
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
