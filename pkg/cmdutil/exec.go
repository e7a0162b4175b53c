package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// killGrace is how long Run waits for output pipes to close after the
// process has been killed on timeout.
const killGrace = 5 * time.Second

// ExecOptions configures command execution.
type ExecOptions struct {
	// Dir is the working directory for the command.
	Dir string

	// Timeout is the maximum execution time.
	// If zero, no timeout is applied.
	Timeout time.Duration

	// Env contains environment variables for the command.
	// Each entry should be in the form "KEY=value". A nil Env inherits
	// the parent environment.
	Env []string
}

// Result contains the result of a command execution.
type Result struct {
	// Output is the combined stdout and stderr.
	Output []byte

	// ExitCode is the exit code of the command, or -1 if it never started
	// or was killed by a signal.
	ExitCode int

	// Started reports whether the process was launched at all.
	Started bool

	// TimedOut is set when the process was killed because Timeout elapsed.
	TimedOut bool

	// Duration is how long the command took to execute.
	Duration time.Duration
}

// Run executes a command with the given options.
// The command is provided as a slice of arguments (command and its arguments).
// Stdin is always empty. A non-nil Result is returned whenever cmdParts is
// non-empty, even alongside an error.
func Run(ctx context.Context, opts ExecOptions, cmdParts []string) (*Result, error) {
	if len(cmdParts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cmdParts[0], cmdParts[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.WaitDelay = killGrace

	start := time.Now()
	output, err := cmd.CombinedOutput()

	result := &Result{
		Output:   output,
		ExitCode: -1,
		Duration: time.Since(start),
	}

	if cmd.ProcessState != nil {
		result.Started = true
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		if opts.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
			return result, fmt.Errorf("command timed out after %s: %w", opts.Timeout, err)
		}
		return result, fmt.Errorf("command failed: %w", err)
	}

	return result, nil
}

// ParseCommandString parses a shell-quoted command string into parts.
// This is useful when commands are stored as strings with proper quoting.
//
// Example:
//
//	"/opt/deploy.sh --env \"prod eu\"" -> ["/opt/deploy.sh", "--env", "prod eu"]
func ParseCommandString(cmdStr string) ([]string, error) {
	parts, err := shellquote.Split(cmdStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command string: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command string")
	}
	return parts, nil
}

// ParseCommandList parses a command that can be either a string or a list.
// This handles the two formats from YAML configuration:
//   - String format: "/opt/app/deploy.sh --fast"
//   - List format: ["/opt/app/deploy.sh", "--fast"]
func ParseCommandList(cmd interface{}) ([]string, error) {
	switch v := cmd.(type) {
	case string:
		return ParseCommandString(v)
	case []interface{}:
		parts := make([]string, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("command list item %d is not a string: %T", i, item)
			}
			parts[i] = str
		}
		if len(parts) == 0 {
			return nil, fmt.Errorf("empty command list")
		}
		return parts, nil
	case []string:
		if len(v) == 0 {
			return nil, fmt.Errorf("empty command list")
		}
		return v, nil
	default:
		return nil, fmt.Errorf("invalid command type: %T (must be string or list)", cmd)
	}
}

// FormatCommand formats command parts into a readable string for logging.
// Example: ["deploy.sh", "--msg", "my message"] -> "deploy.sh --msg 'my message'"
func FormatCommand(cmdParts []string) string {
	if len(cmdParts) == 0 {
		return "<empty command>"
	}

	quoted := make([]string, len(cmdParts))
	for i, part := range cmdParts {
		if strings.ContainsAny(part, " \t\n\"'") {
			quoted[i] = shellquote.Join(part)
		} else {
			quoted[i] = part
		}
	}

	return strings.Join(quoted, " ")
}

// SanitizeOutput removes sensitive information from command output.
// This is useful for logging command output without exposing secrets.
func SanitizeOutput(output []byte, secrets []string) []byte {
	sanitized := string(output)
	for _, secret := range secrets {
		if secret != "" {
			sanitized = strings.ReplaceAll(sanitized, secret, "***REDACTED***")
		}
	}
	return []byte(sanitized)
}
