package browser

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrSessionNotReady = errors.New("browser session not ready")
	ErrAlreadyFlushed  = errors.New("trace already flushed for this context")
	ErrTraceNotStarted = errors.New("trace recording not started")
	ErrTimeout         = errors.New("operation timed out")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNoSession       = errors.New("no active browser session")
	ErrUnsupportedKind = errors.New("unsupported browser kind")
	ErrPageClosed      = errors.New("page closed")
)

// Stage names a step in the session chain.
type Stage string

const (
	StageEngine  Stage = "engine"
	StageContext Stage = "context"
	StageTrace   Stage = "trace"
	StagePage    Stage = "page"
)

// SessionInitError reports which provisioning stage failed.
type SessionInitError struct {
	Worker WorkerID
	Stage  Stage
	Err    error
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("session init failed for worker %s at %s stage: %v", e.Worker, e.Stage, e.Err)
}

func (e *SessionInitError) Unwrap() error {
	return e.Err
}

// StageError is one failed teardown step.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// TeardownError aggregates every stage that failed during teardown. Later
// stages still ran.
type TeardownError struct {
	Worker WorkerID
	Stages []*StageError
}

func (e *TeardownError) Error() string {
	parts := make([]string, len(e.Stages))
	for i, s := range e.Stages {
		parts[i] = s.Error()
	}
	return fmt.Sprintf("teardown of worker %s failed in %d stage(s): %s", e.Worker, len(e.Stages), strings.Join(parts, "; "))
}

func (e *TeardownError) Unwrap() []error {
	errs := make([]error, len(e.Stages))
	for i, s := range e.Stages {
		errs[i] = s
	}
	return errs
}

// Failed reports whether the given stage is among the failures.
func (e *TeardownError) Failed(stage Stage) bool {
	for _, s := range e.Stages {
		if s.Stage == stage {
			return true
		}
	}
	return false
}

// NavigationTimeoutError means the settle signal did not arrive in time.
type NavigationTimeoutError struct {
	URL     string
	Signal  string
	Timeout time.Duration
	Err     error
}

func (e *NavigationTimeoutError) Error() string {
	return fmt.Sprintf("navigation to %s did not reach %q within %v", e.URL, e.Signal, e.Timeout)
}

func (e *NavigationTimeoutError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTimeout}
	}
	return []error{ErrTimeout, e.Err}
}

// ElementWaitTimeoutError means a selector never became visible.
type ElementWaitTimeoutError struct {
	Selector string
	Elapsed  time.Duration
	Err      error
}

func (e *ElementWaitTimeoutError) Error() string {
	return fmt.Sprintf("element %q not visible after %v", e.Selector, e.Elapsed.Round(time.Millisecond))
}

func (e *ElementWaitTimeoutError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTimeout}
	}
	return []error{ErrTimeout, e.Err}
}

// InvalidArgumentError reports a bad call-time parameter.
type InvalidArgumentError struct {
	Name   string
	Value  interface{}
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s=%v: %s", e.Name, e.Value, e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// SessionNotReadyError is returned when a worker's slot is mid-transition.
type SessionNotReadyError struct {
	Worker WorkerID
	State  State
}

func (e *SessionNotReadyError) Error() string {
	return fmt.Sprintf("session for worker %s is %s", e.Worker, e.State)
}

func (e *SessionNotReadyError) Unwrap() error {
	return ErrSessionNotReady
}

// IsTimeout reports whether err is any timeout from this package or the engine.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
