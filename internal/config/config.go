package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"deployhook/internal/security"
	"deployhook/pkg/cmdutil"
	"deployhook/pkg/fileutil"
)

const (
	DefaultPort          = 9000
	DefaultWebhookPath   = "/deploy"
	DefaultBranchRef     = "refs/heads/main"
	DefaultDeployTimeout = 10 * time.Minute
	DefaultLogLevel      = "info"

	// FileName is the config file looked up in the default search paths.
	FileName = "deployhook.yaml"
)

// Config is the process-wide gateway configuration. It is built once at
// startup and treated as read-only afterwards.
type Config struct {
	Secret           string
	Host             string
	Port             int
	WebhookPath      string
	DeployCommand    []string
	DeployBranchRef  string
	DeployDir        string
	DeployTimeout    time.Duration
	SerializeDeploys bool
	RateLimit        int // webhook requests per minute per client IP, 0 disables
	ExposeOutput     bool
	LogFile          string
	LogLevel         string

	// Source is the config file the values were read from, if any.
	Source string

	fileHoldsSecret bool
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Port:            DefaultPort,
		WebhookPath:     DefaultWebhookPath,
		DeployBranchRef: DefaultBranchRef,
		DeployTimeout:   DefaultDeployTimeout,
		LogLevel:        DefaultLogLevel,
	}
}

// Addr returns the listen address in host:port form. An empty host binds
// all interfaces.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SlogLevel maps LogLevel onto a slog level. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogValue implements slog.LogValuer. The secret itself is never logged.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("source", c.Source),
		slog.String("addr", c.Addr()),
		slog.String("webhook_path", c.WebhookPath),
		slog.String("branch_ref", c.DeployBranchRef),
		slog.String("deploy_command", cmdutil.FormatCommand(c.DeployCommand)),
		slog.String("deploy_dir", c.DeployDir),
		slog.Duration("deploy_timeout", c.DeployTimeout),
		slog.Bool("serialize_deploys", c.SerializeDeploys),
		slog.Int("rate_limit", c.RateLimit),
		slog.Bool("expose_output", c.ExposeOutput),
		slog.Bool("secret_set", c.Secret != ""),
	)
}

// Validate checks the configuration and reports every problem at once.
// A missing secret is fatal: there is no unauthenticated mode.
func (c *Config) Validate() error {
	var errors []string

	if c.Secret == "" {
		errors = append(errors, "  - missing required secret (set DEPLOYHOOK_SECRET or 'secret' in the config file)")
	}

	if c.Port < 1 || c.Port > 65535 {
		errors = append(errors, fmt.Sprintf("  - port must be between 1 and 65535, got %d", c.Port))
	}

	if !strings.HasPrefix(c.WebhookPath, "/") {
		errors = append(errors, fmt.Sprintf("  - webhook path must start with '/', got %q", c.WebhookPath))
	}

	if err := security.ValidateBranchRef(c.DeployBranchRef); err != nil {
		errors = append(errors, fmt.Sprintf("  - invalid branch ref: %v", err))
	}

	if c.DeployDir != "" && !fileutil.DirExists(c.DeployDir) {
		errors = append(errors, fmt.Sprintf("  - deploy directory does not exist: '%s'", c.DeployDir))
	}

	if len(c.DeployCommand) == 0 || c.DeployCommand[0] == "" {
		errors = append(errors, "  - missing required deploy command")
	} else if err := c.checkExecutable(); err != nil {
		errors = append(errors, fmt.Sprintf("  - %v", err))
	}

	if c.DeployTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("  - deploy timeout must be positive, got %s", c.DeployTimeout))
	}

	if c.RateLimit < 0 {
		errors = append(errors, fmt.Sprintf("  - rate limit cannot be negative, got %d", c.RateLimit))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("  - unknown log level %q (use debug, info, warn or error)", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("invalid configuration:\n%s", strings.Join(errors, "\n"))
	}
	return nil
}

// ExecutablePath resolves the deploy program the way the runner will.
func (c *Config) ExecutablePath() (string, error) {
	program := c.DeployCommand[0]

	if !strings.ContainsRune(program, os.PathSeparator) {
		path, err := exec.LookPath(program)
		if err != nil {
			return "", fmt.Errorf("deploy command %q not found in PATH", program)
		}
		return path, nil
	}

	// Relative paths are evaluated against the working directory of the child.
	if !filepath.IsAbs(program) && c.DeployDir != "" {
		program = filepath.Join(c.DeployDir, program)
	}
	return program, nil
}

func (c *Config) checkExecutable() error {
	path, err := c.ExecutablePath()
	if err != nil {
		return err
	}
	if !fileutil.IsExecutable(path) {
		return fmt.Errorf("deploy command is not an executable file: '%s'", path)
	}
	return nil
}

// Warnings returns non-fatal findings worth logging at startup.
func (c *Config) Warnings() []string {
	var warnings []string

	if err := security.CheckSecret(c.Secret); err != nil && c.Secret != "" {
		warnings = append(warnings, fmt.Sprintf("weak webhook secret: %v", err))
	}

	if c.Source != "" && c.fileHoldsSecret {
		if err := security.ValidateSecretFilePermissions(c.Source); err != nil {
			warnings = append(warnings, err.Error())
		}
	}

	if len(c.DeployCommand) > 0 {
		if path, err := c.ExecutablePath(); err == nil {
			if err := security.ValidateExecutablePermissions(path); err != nil {
				warnings = append(warnings, err.Error())
			}
		}
	}

	return warnings
}
