// Package deploy runs the configured deploy command as a child process and
// reports how it exited.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeployInProgress is returned by a serialized deployer while another
// deploy is still running.
var ErrDeployInProgress = errors.New("deploy already in progress")

// Request carries the push details handed to the deploy command.
type Request struct {
	Ref        string
	Commit     string
	DeliveryID string
}

// Result describes a finished (or failed to start) deploy run.
type Result struct {
	RunID    string
	ExitCode int
	Output   []byte
	Duration time.Duration
}

// Deployer runs one deploy and blocks until it is finished.
type Deployer interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// ExitError reports a deploy command that ran but did not exit with 0.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	if e.Code < 0 {
		return "terminated by signal"
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// TimeoutError reports a deploy command killed after exceeding its time limit.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s", e.Timeout)
}

// LaunchError reports a deploy command that could not be started at all.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to start: %v", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
