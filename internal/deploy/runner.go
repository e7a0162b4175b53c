package deploy

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"deployhook/pkg/cmdutil"

	"github.com/google/uuid"
)

// Environment variables exported to the deploy command.
const (
	EnvRef      = "DEPLOY_REF"
	EnvCommit   = "DEPLOY_COMMIT"
	EnvDelivery = "DEPLOY_DELIVERY"
	EnvRunID    = "DEPLOY_RUN_ID"
)

// Runner executes the deploy command with a bounded wait.
type Runner struct {
	Command []string
	Dir     string
	Timeout time.Duration

	// StripEnv names parent environment variables that must not reach the child.
	StripEnv []string

	Logger *slog.Logger

	environ func() []string
}

// NewRunner creates a runner for the given command.
func NewRunner(command []string, dir string, timeout time.Duration, stripEnv []string, logger *slog.Logger) *Runner {
	return &Runner{
		Command:  command,
		Dir:      dir,
		Timeout:  timeout,
		StripEnv: stripEnv,
		Logger:   logger,
		environ:  os.Environ,
	}
}

// Run starts the deploy command and waits for it. The returned Result is
// non-nil even when err is; err is one of *ExitError, *TimeoutError or
// *LaunchError.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	runID := uuid.NewString()
	logger := r.Logger.With("run_id", runID, "delivery_id", req.DeliveryID)

	logger.Info("deploy started",
		"command", cmdutil.FormatCommand(r.Command),
		"ref", req.Ref,
		"commit", req.Commit)

	res, err := cmdutil.Run(ctx, cmdutil.ExecOptions{
		Dir:     r.Dir,
		Timeout: r.Timeout,
		Env:     r.environment(req, runID),
	}, r.Command)

	result := &Result{RunID: runID, ExitCode: -1}
	if res != nil {
		result.ExitCode = res.ExitCode
		result.Output = res.Output
		result.Duration = res.Duration
	}

	switch {
	case err == nil:
		logger.Info("deploy finished", "exit_code", result.ExitCode, "duration_ms", result.Duration.Milliseconds())
		return result, nil
	case res != nil && res.TimedOut:
		err = &TimeoutError{Timeout: r.Timeout}
	case res == nil || !res.Started:
		if inner := errors.Unwrap(err); inner != nil {
			err = inner
		}
		err = &LaunchError{Err: err}
	default:
		err = &ExitError{Code: result.ExitCode}
	}

	logger.Error("deploy failed",
		"error", err,
		"exit_code", result.ExitCode,
		"duration_ms", result.Duration.Milliseconds(),
		"output", string(result.Output))
	return result, err
}

// environment builds the child environment: the parent's minus stripped
// variables, plus the push details.
func (r *Runner) environment(req Request, runID string) []string {
	environ := r.environ
	if environ == nil {
		environ = os.Environ
	}

	parent := environ()
	env := make([]string, 0, len(parent)+4)
	for _, kv := range parent {
		name, _, _ := strings.Cut(kv, "=")
		if r.stripped(name) {
			continue
		}
		env = append(env, kv)
	}

	return append(env,
		EnvRef+"="+req.Ref,
		EnvCommit+"="+req.Commit,
		EnvDelivery+"="+req.DeliveryID,
		EnvRunID+"="+runID,
	)
}

func (r *Runner) stripped(name string) bool {
	for _, s := range r.StripEnv {
		if s == name {
			return true
		}
	}
	return false
}
