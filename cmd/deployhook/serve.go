package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"deployhook/internal/config"
	"deployhook/internal/deploy"
	"deployhook/internal/security"
	"deployhook/internal/server"
	"deployhook/pkg/cmdutil"
	"deployhook/pkg/fileutil"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// serveOptions holds the serve flags. A flag only overrides the file and
// environment when it was given explicitly.
type serveOptions struct {
	configFile       string
	secret           string
	host             string
	port             int
	path             string
	command          string
	branchRef        string
	deployDir        string
	deployTimeout    string
	serializeDeploys bool
	rateLimit        int
	exposeOutput     bool
	logFile          string
	logLevel         string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Long: `Start the HTTP server to receive GitHub push webhooks.

Configuration is read from a YAML file, DEPLOYHOOK_* environment variables
(a .env file in the working directory is loaded first) and flags, with flags
taking precedence.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	opts.addFlags(cmd.Flags())
	return cmd
}

func (o *serveOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configFile, "config", "c", "", "Path to deployhook.yaml (default: search ./, ./config/, /etc/deployhook/)")
	fs.StringVar(&o.secret, "secret", "", "Webhook secret (prefer DEPLOYHOOK_SECRET, flags are visible in ps)")
	fs.StringVar(&o.host, "host", "", "Host to bind to (default: all interfaces)")
	fs.IntVarP(&o.port, "port", "p", config.DefaultPort, "Port to listen on")
	fs.StringVar(&o.path, "path", config.DefaultWebhookPath, "Webhook URL path")
	fs.StringVar(&o.command, "command", "", "Deploy command, shell-quoted")
	fs.StringVar(&o.branchRef, "branch-ref", config.DefaultBranchRef, "Ref whose pushes trigger a deploy")
	fs.StringVar(&o.deployDir, "deploy-dir", "", "Working directory of the deploy command")
	fs.StringVar(&o.deployTimeout, "deploy-timeout", "600", "Deploy time limit in seconds or as a duration (e.g. 10m)")
	fs.BoolVar(&o.serializeDeploys, "serialize-deploys", false, "Reject a webhook with 409 while a deploy is running")
	fs.IntVar(&o.rateLimit, "rate-limit", 0, "Webhook requests per minute per client IP (0 disables)")
	fs.BoolVar(&o.exposeOutput, "expose-output", false, "Include deploy output in failure responses")
	fs.StringVar(&o.logFile, "log", "", "Also append JSON logs to this file")
	fs.StringVar(&o.logLevel, "log-level", config.DefaultLogLevel, "Log level: debug, info, warn or error")
}

// apply copies explicitly set flags onto cfg.
func (o *serveOptions) apply(fs *pflag.FlagSet, cfg *config.Config) error {
	if fs.Changed("secret") {
		cfg.Secret = o.secret
	}
	if fs.Changed("host") {
		cfg.Host = o.host
	}
	if fs.Changed("port") {
		cfg.Port = o.port
	}
	if fs.Changed("path") {
		cfg.WebhookPath = o.path
	}
	if fs.Changed("command") {
		parts, err := cmdutil.ParseCommandString(o.command)
		if err != nil {
			return fmt.Errorf("invalid --command: %w", err)
		}
		cfg.DeployCommand = parts
	}
	if fs.Changed("branch-ref") {
		cfg.DeployBranchRef = o.branchRef
	}
	if fs.Changed("deploy-dir") {
		cfg.DeployDir = o.deployDir
	}
	if fs.Changed("deploy-timeout") {
		d, err := config.ParseTimeout(o.deployTimeout)
		if err != nil {
			return fmt.Errorf("invalid --deploy-timeout: %w", err)
		}
		cfg.DeployTimeout = d
	}
	if fs.Changed("serialize-deploys") {
		cfg.SerializeDeploys = o.serializeDeploys
	}
	if fs.Changed("rate-limit") {
		cfg.RateLimit = o.rateLimit
	}
	if fs.Changed("expose-output") {
		cfg.ExposeOutput = o.exposeOutput
	}
	if fs.Changed("log") {
		cfg.LogFile = o.logFile
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	return nil
}

// loadConfig layers defaults, the config file, the environment and flags.
func loadConfig(fs *pflag.FlagSet, opts *serveOptions, lookup config.LookupFunc) (*config.Config, error) {
	cfg := config.Default()

	path := opts.configFile
	if !fs.Changed("config") {
		if v, ok := lookup(config.EnvConfigFile); ok && v != "" {
			path = v
		} else {
			path = fileutil.SearchPathsOptional(fileutil.DefaultConfigPaths(config.FileName))
		}
	}

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	if err := opts.apply(fs, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd.Flags(), opts, os.LookupEnv)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := setupLogging(cfg, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer closeLog()

	logger.Info("Starting deployhook", "version", version)
	logger.Info("Configuration loaded", "config", cfg)

	for _, warning := range cfg.Warnings() {
		logger.Warn("Configuration warning", "warning", warning)
	}

	var deployer deploy.Deployer = deploy.NewRunner(
		cfg.DeployCommand, cfg.DeployDir, cfg.DeployTimeout, config.SecretEnvVars, logger)
	if cfg.SerializeDeploys {
		deployer = deploy.Serialized(deployer)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(cfg, deployer, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Error("Server failed", "error", err)
		return err
	}

	logger.Info("Server stopped")
	return nil
}

// setupLogging builds a JSON logger writing to out and, when configured,
// appending to the log file. The returned func closes the file.
func setupLogging(cfg *config.Config, out io.Writer) (*slog.Logger, func(), error) {
	closeLog := func() {}
	writer := out

	if cfg.LogFile != "" {
		if err := security.CreateSecureDir(filepath.Dir(cfg.LogFile), security.PermDirectory); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := security.OpenAppendFile(cfg.LogFile, security.PermLogFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}

		writer = io.MultiWriter(out, file)
		closeLog = func() { _ = file.Close() }
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})

	return slog.New(handler), closeLog, nil
}
